package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"sounding_archive/internal/archive"
	"sounding_archive/internal/catalog"
	"sounding_archive/internal/inventory"
	"sounding_archive/internal/mirror"
	"sounding_archive/internal/report"
	"sounding_archive/internal/storage"
)

func (a *app) runCheck(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("check")
	pruneIndex := fs.Bool("prune-index", false, "Delete index rows whose file is missing on disk")
	pruneFiles := fs.Bool("prune-files", false, "Delete files on disk that are not in the index")
	metricsFile := fs.String("metrics-file", a.cfg.MetricsFile, "Write Prometheus textfile metrics here (env: METRICS_FILE)")
	_ = fs.Parse(args)

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	res, err := arch.Check(ctx)
	if err != nil {
		return err
	}

	for _, name := range res.MissingOnDisk {
		fmt.Printf("missing on disk:    %s\n", name)
	}
	for _, name := range res.MissingFromIndex {
		if site, source, t, err := archive.ParseFileName(name); err == nil {
			fmt.Printf("missing from index: %s (%s %s %s)\n", name, site, source, t.Format(time.RFC3339))
			continue
		}
		fmt.Printf("missing from index: %s\n", name)
	}

	if *pruneIndex && len(res.MissingOnDisk) > 0 {
		n, err := arch.RemoveFromIndex(ctx, res.MissingOnDisk)
		if err != nil {
			return err
		}
		a.logger.Info("index pruned", "rows", n)
	}
	if *pruneFiles && len(res.MissingFromIndex) > 0 {
		if err := arch.RemoveFromDataStore(ctx, res.MissingFromIndex); err != nil {
			return err
		}
		a.logger.Info("data store pruned", "files", len(res.MissingFromIndex))
	}

	count, err := arch.Count(ctx)
	if err != nil {
		return err
	}

	missing, orphaned := len(res.MissingOnDisk), len(res.MissingFromIndex)
	if *pruneIndex {
		missing = 0
	}
	if *pruneFiles {
		orphaned = 0
	}
	a.metrics.ObserveCheck(count, missing, orphaned)
	if err := a.writeMetrics(*metricsFile); err != nil {
		return err
	}

	a.logger.Info("check finished",
		"files", count,
		"missing_on_disk", len(res.MissingOnDisk),
		"missing_from_index", len(res.MissingFromIndex),
		"consistent", res.Consistent(),
	)
	return nil
}

func (a *app) runInventory(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("inventory")
	site := fs.String("site", "", "Site short name")
	asCSV := fs.Bool("csv", false, "Write CSV instead of a table")
	missing := fs.Bool("missing", false, "List the missing ranges instead of the summary")
	_ = fs.Parse(args)

	if err := requireFlags(fs, "site"); err != nil {
		return err
	}

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	inv, err := arch.Inventory(ctx, catalog.NewSite(*site))
	if err != nil {
		return err
	}

	switch {
	case *asCSV && *missing:
		return report.WriteMissingCSV(os.Stdout, inv)
	case *asCSV:
		return report.WriteInventoryCSV(os.Stdout, inv)
	default:
		return printInventory(inv, *missing)
	}
}

func printInventory(inv *inventory.Inventory, missing bool) error {
	const layout = "2006-01-02T1504Z"

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Inventory for %s %s\n", inv.Site().ShortName(), inv.Site().LongName())
	if missing {
		fmt.Fprintln(tw, "TYPE\tFROM\tTO\tSLOTS")
		for _, e := range inv.Entries() {
			step, ok := e.Type.Cadence()
			if !ok {
				continue
			}
			for _, r := range e.Missing {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", e.Type.Source(), r.First.Format(layout), r.Last.Format(layout), r.Slots(step))
			}
		}
		return tw.Flush()
	}

	fmt.Fprintln(tw, "TYPE\tFIRST\tLAST\tFILES\tGAPS\tMISSING\tLOCATIONS")
	for _, e := range inv.Entries() {
		gaps, slots := "-", "-"
		if e.HasCadence() {
			gaps, slots = fmt.Sprint(len(e.Missing)), fmt.Sprint(e.MissingSlots())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%d\n", e.Type.Source(),
			e.Range.First.Format(layout), e.Range.Last.Format(layout), e.Count, gaps, slots, len(e.Locations))
	}
	return tw.Flush()
}

func (a *app) runFiles(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("files")
	asCSV := fs.Bool("csv", false, "Write CSV instead of names")
	_ = fs.Parse(args)

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	files, err := arch.Files(ctx)
	if err != nil {
		return err
	}
	if *asCSV {
		return report.WriteFilesCSV(os.Stdout, files)
	}
	for _, f := range files {
		fmt.Println(f.FileName)
	}
	return nil
}

func (a *app) runMirror(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("mirror")
	name := fs.String("name", "", "Archive name in the shared databases (default: absolute root path)")
	initSchema := fs.Bool("init-schema", false, "Create the shared schemas before syncing")
	status := fs.Bool("status", false, "Print the latest recorded coverage instead of syncing")
	_ = fs.Parse(args)

	archiveName := *name
	if archiveName == "" {
		abs, err := filepath.Abs(*root)
		if err != nil {
			return err
		}
		archiveName = abs
	}

	db, err := storage.OpenMirror(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			a.logger.Warn("close mirror", "error", err)
		}
	}()

	if *status {
		return printCoverage(ctx, db, archiveName)
	}

	if *initSchema {
		if err := db.CreateSchemas(ctx); err != nil {
			return err
		}
	}

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	_, err = mirror.NewFromStorage(archiveName, db, mirror.WithLogger(a.logger)).Sync(ctx, arch)
	return err
}

func printCoverage(ctx context.Context, db *storage.Mirror, archiveName string) error {
	if db.CH == nil {
		return fmt.Errorf("mirror status: CLICKHOUSE_HOST is not set")
	}
	rows, err := db.CH.LatestCoverage(ctx, archiveName)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if age, ok := mirror.Age(rows, time.Now()); ok {
		fmt.Fprintf(tw, "Coverage of %s recorded %s ago\n", archiveName, age.Round(time.Second))
	}
	fmt.Fprintln(tw, "SITE\tTYPE\tFILES\tGAPS\tMISSING\tLOCATIONS")
	for _, c := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", c.Site, c.Source, c.FileCount, c.MissingRanges, c.MissingSlots, c.LocationCount)
	}
	return tw.Flush()
}
