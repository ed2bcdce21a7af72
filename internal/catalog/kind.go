package catalog

import (
	"fmt"
	"strings"
)

// FileKind is the encoding of a stored sounding payload.
type FileKind string

const (
	// KindBufkit is the textual BUFKIT format.
	KindBufkit FileKind = "BUFKIT"
	// KindBufr is the binary WMO BUFR format.
	KindBufr FileKind = "BUFR"
)

// FileKinds lists every supported encoding.
var FileKinds = []FileKind{KindBufkit, KindBufr}

// ParseFileKind converts a case-insensitive name into a FileKind.
func ParseFileKind(s string) (FileKind, error) {
	k := FileKind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range FileKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown file kind %q", s)
}

// Extension returns the file extension used when a payload of this kind is
// written out uncompressed.
func (k FileKind) Extension() string {
	switch k {
	case KindBufr:
		return ".bufr"
	default:
		return ".buf"
	}
}

func (k FileKind) String() string { return string(k) }
