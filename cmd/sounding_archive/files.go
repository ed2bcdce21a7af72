package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"sounding_archive/internal/archive"
	"sounding_archive/internal/catalog"
	"sounding_archive/internal/decoder"
	"sounding_archive/internal/events"
	"sounding_archive/internal/report"
)

// fileKeyFlags are the flags naming one stored file.
type fileKeyFlags struct {
	site, typ, initTime *string
}

func addFileKeyFlags(fs *flag.FlagSet) fileKeyFlags {
	return fileKeyFlags{
		site:     fs.String("site", "", "Site short name, e.g. KMSO"),
		typ:      fs.String("type", "", "Sounding type source, e.g. GFS"),
		initTime: fs.String("time", "", "Init time, e.g. 2017-04-01T0600Z or RFC 3339"),
	}
}

// entities looks up the stored site and sounding type.
func (k fileKeyFlags) entities(ctx context.Context, arch *archive.Archive) (catalog.Site, catalog.SoundingType, error) {
	site, err := arch.Site(ctx, *k.site)
	if err != nil {
		return catalog.Site{}, catalog.SoundingType{}, err
	}
	typ, err := arch.SoundingType(ctx, *k.typ)
	if err != nil {
		return catalog.Site{}, catalog.SoundingType{}, err
	}
	return site, typ, nil
}

func (k fileKeyFlags) resolve(ctx context.Context, arch *archive.Archive) (catalog.Site, catalog.SoundingType, time.Time, error) {
	t, err := catalog.ParseInitTime(*k.initTime)
	if err != nil {
		return catalog.Site{}, catalog.SoundingType{}, time.Time{}, err
	}
	site, typ, err := k.entities(ctx, arch)
	return site, typ, t, err
}

// register validates site, typ and loc against the archive, adding any that are new.
func register(ctx context.Context, arch *archive.Archive, site catalog.Site, typ catalog.SoundingType, loc catalog.Location) (catalog.Site, catalog.SoundingType, catalog.Location, error) {
	site, err := arch.AddSite(ctx, site)
	if err != nil {
		return site, typ, loc, err
	}
	typ, err = arch.AddSoundingType(ctx, typ)
	if err != nil {
		return site, typ, loc, err
	}
	loc, err = arch.AddLocation(ctx, loc)
	return site, typ, loc, err
}

func (a *app) addFile(ctx context.Context, arch *archive.Archive, pub events.Publisher, site catalog.Site, typ catalog.SoundingType, loc catalog.Location, t time.Time, src io.Reader) error {
	site, typ, loc, err := register(ctx, arch, site, typ, loc)
	if err != nil {
		return err
	}
	if err := arch.Add(ctx, site, typ, loc, t, src); err != nil {
		return err
	}

	name := archive.FileName(site, typ, t)
	a.metrics.FilesAdded.Inc()
	a.publish(pub, events.Event{
		Action:   events.ActionAdded,
		Archive:  arch.Root(),
		Site:     site.ShortName(),
		Type:     typ.Source(),
		InitTime: catalog.InitTime(t),
		FileName: name,
	})
	a.logger.Info("file added", "site", site.ShortName(), "type", typ.Source(), "init_time", catalog.InitTime(t), "file", name)
	return nil
}

func (a *app) runAdd(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("add")
	key := addFileKeyFlags(fs)
	kind := fs.String("kind", string(catalog.KindBufkit), "File kind for a new sounding type: BUFKIT or BUFR")
	observed := fs.Bool("observed", false, "A new sounding type is observed rather than modeled")
	hours := fs.Int("hours", 0, "Hours between soundings for a new sounding type (0 = unknown)")
	lat := fs.Float64("lat", 0, "Latitude in decimal degrees")
	lon := fs.Float64("lon", 0, "Longitude in decimal degrees")
	elev := fs.Int("elev", 0, "Elevation in meters")
	_ = fs.Parse(args)

	if err := requireFlags(fs, "site", "type", "time"); err != nil {
		return err
	}
	t, err := catalog.ParseInitTime(*key.initTime)
	if err != nil {
		return err
	}
	k, err := catalog.ParseFileKind(*kind)
	if err != nil {
		return err
	}
	loc, err := catalog.NewLocation(*lat, *lon, *elev)
	if err != nil {
		return err
	}

	var src io.Reader = os.Stdin
	if fs.NArg() > 0 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		src = f
	}

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	pub := a.publisher()
	defer func() { _ = pub.Close() }()

	typ := catalog.NewSoundingType(*key.typ, *observed, k, *hours)
	if err := a.addFile(ctx, arch, pub, catalog.NewSite(*key.site), typ, loc, t, src); err != nil {
		return err
	}
	return a.writeMetrics("")
}

func (a *app) runImport(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("import")
	manifest := fs.String("manifest", "", "CSV manifest: site,type,kind,observed,hours_between,init_time,lat,lon,elev_m,path")
	keepGoing := fs.Bool("keep-going", false, "Continue after a file fails to import")
	_ = fs.Parse(args)

	if err := requireFlags(fs, "manifest"); err != nil {
		return err
	}

	f, err := os.Open(*manifest)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	entries, err := report.ReadManifest(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	pub := a.publisher()
	defer func() { _ = pub.Close() }()

	base := filepath.Dir(*manifest)
	added, failed := 0, 0
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.importEntry(ctx, arch, pub, base, e); err != nil {
			if !*keepGoing {
				return fmt.Errorf("manifest row %d: %w", i+1, err)
			}
			a.logger.Warn("file not imported", "row", i+1, "path", e.Path, "error", err)
			failed++
			continue
		}
		added++
	}

	a.logger.Info("import finished", "added", added, "failed", failed)
	return a.writeMetrics("")
}

func (a *app) importEntry(ctx context.Context, arch *archive.Archive, pub events.Publisher, base string, e report.ManifestEntry) error {
	t, err := e.Time()
	if err != nil {
		return err
	}
	typ, err := e.SoundingType()
	if err != nil {
		return err
	}
	loc, err := e.Location()
	if err != nil {
		return err
	}

	path := e.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	return a.addFile(ctx, arch, pub, catalog.NewSite(e.Site), typ, loc, t, f)
}

func (a *app) runExport(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("export")
	key := addFileKeyFlags(fs)
	outDir := fs.String("out", "", "Directory to write the file into (default: stdout)")
	_ = fs.Parse(args)

	if err := requireFlags(fs, "site", "type", "time"); err != nil {
		return err
	}

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	site, typ, t, err := key.resolve(ctx, arch)
	if err != nil {
		return err
	}

	if *outDir != "" {
		path, err := arch.ExportTo(ctx, site, typ, t, *outDir)
		if err != nil {
			return err
		}
		a.logger.Info("file exported", "path", path)
		return nil
	}

	rc, err := arch.Export(ctx, site, typ, t)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	if _, err := io.Copy(os.Stdout, rc); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (a *app) runShow(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("show")
	key := addFileKeyFlags(fs)
	latest := fs.Bool("latest", false, "Show the most recent file instead of -time")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	_ = fs.Parse(args)

	required := []string{"site", "type"}
	if !*latest {
		required = append(required, "time")
	}
	if err := requireFlags(fs, required...); err != nil {
		return err
	}

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	var analyses []decoder.Analysis
	if *latest {
		site, typ, err := key.entities(ctx, arch)
		if err != nil {
			return err
		}
		analyses, err = arch.MostRecentFile(ctx, site, typ)
		if err != nil {
			return err
		}
	} else {
		site, typ, t, err := key.resolve(ctx, arch)
		if err != nil {
			return err
		}
		analyses, err = arch.Retrieve(ctx, site, typ, t)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(analyses)
}

func (a *app) runRemove(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("remove")
	key := addFileKeyFlags(fs)
	_ = fs.Parse(args)

	if err := requireFlags(fs, "site", "type", "time"); err != nil {
		return err
	}

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	site, typ, t, err := key.resolve(ctx, arch)
	if err != nil {
		return err
	}
	if err := arch.Remove(ctx, site, typ, t); err != nil {
		return err
	}

	pub := a.publisher()
	defer func() { _ = pub.Close() }()

	name := archive.FileName(site, typ, t)
	a.metrics.FilesRemoved.Inc()
	a.publish(pub, events.Event{
		Action:   events.ActionRemoved,
		Archive:  arch.Root(),
		Site:     site.ShortName(),
		Type:     typ.Source(),
		InitTime: catalog.InitTime(t),
		FileName: name,
	})
	a.logger.Info("file removed", "file", name)
	return a.writeMetrics("")
}
