// Package blobstore keeps gzip-compressed sounding payloads as flat files in one
// directory. Writes go to a temporary file that is synced and renamed into place, so a
// blob is either absent or complete.
package blobstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/klauspost/compress/gzip"
)

// TempSuffix marks partially written blobs.
const TempSuffix = ".tmp"

// ErrInvalidName is returned for names that would escape the store directory.
var ErrInvalidName = errors.New("invalid blob name")

// Store is a directory of compressed blobs. It is safe for concurrent use as long as
// concurrent writers use distinct names.
type Store struct {
	dir   string
	level int
	cache *expirable.LRU[string, []byte]
}

// Option configures a Store.
type Option func(*Store)

// WithCache keeps up to size decompressed payloads in memory for ttl. A size of zero
// or less disables the cache.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Store) {
		if size > 0 {
			s.cache = expirable.NewLRU[string, []byte](size, nil, ttl)
		}
	}
}

// WithLevel sets the gzip compression level.
func WithLevel(level int) Option {
	return func(s *Store) { s.level = level }
}

// New returns a store rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory %s: %w", dir, err)
	}
	s := &Store{dir: dir, level: gzip.DefaultCompression}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the on-disk path of a blob.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, name) }

// IsTemp reports whether name is a leftover from an interrupted write.
func IsTemp(name string) bool { return strings.HasSuffix(name, TempSuffix) }

func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || IsTemp(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

// Put compresses everything read from r into the blob called name, replacing any
// existing blob of that name. It returns the number of uncompressed bytes stored.
func (s *Store) Put(name string, r io.Reader) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}

	fullPath := s.Path(name)
	tmpPath := fullPath + "." + uuid.New().String()[:8] + TempSuffix

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	fail := func(err error) (int64, error) {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}

	gw, err := gzip.NewWriterLevel(f, s.level)
	if err != nil {
		return fail(fmt.Errorf("gzip writer: %w", err))
	}
	gw.Name = name

	n, err := io.Copy(gw, r)
	if err != nil {
		return fail(fmt.Errorf("write blob %s: %w", name, err))
	}
	if err := gw.Close(); err != nil {
		return fail(fmt.Errorf("flush blob %s: %w", name, err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("fsync blob %s: %w", name, err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close blob %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("rename blob %s: %w", name, err)
	}

	if s.cache != nil {
		s.cache.Remove(name)
	}
	return n, nil
}

// Open returns a reader over the decompressed payload of a blob. A missing blob
// yields an error matching fs.ErrNotExist.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if data, ok := s.cache.Get(name); ok {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", name, err)
	}
	gr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read blob %s: %w", name, err)
	}
	return &blobReader{gr: gr, f: f}, nil
}

// Get returns the decompressed payload of a blob.
func (s *Store) Get(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if data, ok := s.cache.Get(name); ok {
			return slices.Clone(data), nil
		}
	}

	rc, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", name, err)
	}
	if s.cache != nil {
		s.cache.Add(name, slices.Clone(data))
	}
	return data, nil
}

// Exists reports whether a blob is present.
func (s *Store) Exists(name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(s.Path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat blob %s: %w", name, err)
}

// Delete removes a blob. Deleting a blob that does not exist is not an error.
func (s *Store) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Remove(name)
	}
	err := os.Remove(s.Path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", name, err)
	}
	return nil
}

// RemoveTemp removes a leftover temporary file. Other names are rejected.
func (s *Store) RemoveTemp(name string) error {
	if !IsTemp(name) || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	err := os.Remove(s.Path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete temp file %s: %w", name, err)
	}
	return nil
}

// List returns the names of all regular files in the store, including leftover
// temporary files, in lexical order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

type blobReader struct {
	gr *gzip.Reader
	f  *os.File
}

func (r *blobReader) Read(p []byte) (int, error) { return r.gr.Read(p) }

func (r *blobReader) Close() error {
	gerr := r.gr.Close()
	ferr := r.f.Close()
	if gerr != nil {
		return gerr
	}
	return ferr
}
