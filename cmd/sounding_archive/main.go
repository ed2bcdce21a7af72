// Command-line entry point for the sounding archive.
//
// An archive is a directory holding a flat set of gzip-compressed sounding files and
// an sqlite index that binds each file to its site, sounding type, location and init
// time. Every command works on the archive named by -root (env: ARCHIVE_ROOT).
//
// Settings are read from the environment, after an optional .env file in the working
// directory. See internal/config for the full list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sounding_archive/internal/archive"
	"sounding_archive/internal/config"
	_ "sounding_archive/internal/decoder/bufkit" // register decoders via init()
	"sounding_archive/internal/events"
	"sounding_archive/internal/observability"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "sounding_archive - commands:")
	fmt.Fprintln(w, "  create        - create an empty archive")
	fmt.Fprintln(w, "  add           - add one file")
	fmt.Fprintln(w, "  import        - add the files listed in a CSV manifest")
	fmt.Fprintln(w, "  export        - write a stored file out uncompressed")
	fmt.Fprintln(w, "  show          - decode a stored file and print its soundings as JSON")
	fmt.Fprintln(w, "  remove        - delete a stored file")
	fmt.Fprintln(w, "  check         - compare the index with the files on disk")
	fmt.Fprintln(w, "  inventory     - summarize what is stored for a site")
	fmt.Fprintln(w, "  sites         - list sites")
	fmt.Fprintln(w, "  types         - list sounding types")
	fmt.Fprintln(w, "  files         - list stored files")
	fmt.Fprintln(w, "  site-set      - update a site's description")
	fmt.Fprintln(w, "  type-set      - update a sounding type's cadence or observed flag")
	fmt.Fprintln(w, "  location-set  - set or clear a location's time zone offset")
	fmt.Fprintln(w, "  mirror        - push the catalog and coverage to the shared databases")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  sounding_archive create [-root DIR]")
	fmt.Fprintln(w, "  sounding_archive add -site KMSO -type GFS -time 2017-04-01T0600Z -lat 46.92 -lon -114.09 -elev 972 [-hours 6] [file]")
	fmt.Fprintln(w, "  sounding_archive import -manifest files.csv")
	fmt.Fprintln(w, "  sounding_archive export -site KMSO -type GFS -time 2017-04-01T0600Z [-out DIR]")
	fmt.Fprintln(w, "  sounding_archive check [-prune-index] [-prune-files] [-metrics-file PATH]")
	fmt.Fprintln(w, "  sounding_archive inventory -site KMSO [-csv] [-missing]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'sounding_archive COMMAND -h' for the flags of a command.")
}

// app holds what every command needs once flags are parsed.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := strings.ToLower(os.Args[1])
	args := os.Args[2:]
	switch cmd {
	case "create":
		err = a.runCreate(ctx, args)
	case "add":
		err = a.runAdd(ctx, args)
	case "import":
		err = a.runImport(ctx, args)
	case "export":
		err = a.runExport(ctx, args)
	case "show":
		err = a.runShow(ctx, args)
	case "remove":
		err = a.runRemove(ctx, args)
	case "check":
		err = a.runCheck(ctx, args)
	case "inventory":
		err = a.runInventory(ctx, args)
	case "sites":
		err = a.runSites(ctx, args)
	case "types":
		err = a.runTypes(ctx, args)
	case "files":
		err = a.runFiles(ctx, args)
	case "site-set":
		err = a.runSiteSet(ctx, args)
	case "type-set":
		err = a.runTypeSet(ctx, args)
	case "location-set":
		err = a.runLocationSet(ctx, args)
	case "mirror":
		err = a.runMirror(ctx, args)
	case "-h", "--help", "help":
		usage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		logger.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set carrying the -root flag shared by every command.
func (a *app) newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	root := fs.String("root", a.cfg.ArchiveRoot, "Archive root directory (env: ARCHIVE_ROOT)")
	return fs, root
}

func (a *app) archiveOptions() []archive.Option {
	opts := []archive.Option{archive.WithCompressionLevel(a.cfg.CompressionLevel)}
	if a.cfg.BlobCacheSize > 0 {
		opts = append(opts, archive.WithBlobCache(a.cfg.BlobCacheSize, a.cfg.BlobCacheTTL))
	}
	return opts
}

func (a *app) connect(ctx context.Context, root string) (*archive.Archive, error) {
	arch, err := archive.Connect(ctx, root, a.archiveOptions()...)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("archive connected", "root", root)
	return arch, nil
}

// publisher returns the event publisher configured by NATS_URL. Events are advisory:
// when the server cannot be reached the command continues without them.
func (a *app) publisher() events.Publisher {
	if a.cfg.NATSURL == "" {
		return events.Nop{}
	}
	p, err := events.Connect(a.cfg.NATSURL, a.cfg.NATSSubject)
	if err != nil {
		a.logger.Warn("events disabled", "url", a.cfg.NATSURL, "error", err)
		return events.Nop{}
	}
	return p
}

func (a *app) publish(p events.Publisher, ev events.Event) {
	if err := p.Publish(ev); err != nil {
		a.logger.Warn("event not published", "file", ev.FileName, "error", err)
	}
}

// writeMetrics writes the textfile named by path, or by METRICS_FILE when path is
// empty.
func (a *app) writeMetrics(path string) error {
	if path == "" {
		path = a.cfg.MetricsFile
	}
	if path == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		return err
	}
	a.logger.Debug("metrics written", "path", path)
	return nil
}

func (a *app) runCreate(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("create")
	_ = fs.Parse(args)

	arch, err := archive.Create(ctx, *root, a.archiveOptions()...)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	a.logger.Info("archive created", "root", *root)
	return nil
}

func closeArchive(logger *slog.Logger, arch *archive.Archive) {
	if err := arch.Close(); err != nil {
		logger.Warn("close archive", "error", err)
	}
}

var errUsage = errors.New("missing required flags")

// requireFlags returns errUsage naming the flags left empty.
func requireFlags(fs *flag.FlagSet, names ...string) error {
	var missing []string
	for _, n := range names {
		if f := fs.Lookup(n); f != nil && strings.TrimSpace(f.Value.String()) == "" {
			missing = append(missing, "-"+n)
		}
	}
	if len(missing) > 0 {
		fs.Usage()
		return fmt.Errorf("%s: %w: %s", fs.Name(), errUsage, strings.Join(missing, ", "))
	}
	return nil
}
