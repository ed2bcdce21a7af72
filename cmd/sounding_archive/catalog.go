package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"sounding_archive/internal/catalog"
	"sounding_archive/internal/decoder"
)

func (a *app) runSites(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("sites")
	incomplete := fs.Bool("incomplete", false, "Only list sites missing a long name or state")
	_ = fs.Parse(args)

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	sites, err := arch.Sites(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SITE\tNAME\tSTATE\tMOBILE\tNOTES")
	for _, s := range sites {
		if *incomplete && !s.Incomplete() {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", s.ShortName(), s.LongName(), s.State(), s.IsMobile(), s.Notes())
	}
	return tw.Flush()
}

func (a *app) runTypes(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("types")
	site := fs.String("site", "", "Only list types with files at this site")
	_ = fs.Parse(args)

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	var types []catalog.SoundingType
	if *site != "" {
		types, err = arch.SoundingTypesForSite(ctx, catalog.NewSite(*site))
	} else {
		types, err = arch.SoundingTypes(ctx)
	}
	if err != nil {
		return err
	}

	decodable := make(map[catalog.FileKind]bool)
	for _, k := range decoder.Default().Kinds() {
		decodable[k] = true
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tKIND\tOBSERVED\tHOURS\tDECODER")
	for _, t := range types {
		hours := "-"
		if t.HoursBetween() > 0 {
			hours = strconv.Itoa(t.HoursBetween())
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%t\n", t.Source(), t.FileKind(), t.IsObserved(), hours, decodable[t.FileKind()])
	}
	return tw.Flush()
}

// setFlags returns the names of the flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func (a *app) runSiteSet(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("site-set")
	short := fs.String("site", "", "Site short name")
	name := fs.String("name", "", "Long name")
	state := fs.String("state", "", "State or province abbreviation, e.g. MT")
	notes := fs.String("notes", "", "Free-text notes")
	mobile := fs.Bool("mobile", false, "Site is a mobile platform")
	create := fs.Bool("create", false, "Add the site if it is not in the archive")
	_ = fs.Parse(args)

	if err := requireFlags(fs, "site"); err != nil {
		return err
	}

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	site := catalog.NewSite(*short)
	if *create {
		site, err = arch.AddSite(ctx, site)
	} else {
		site, err = arch.Site(ctx, *short)
	}
	if err != nil {
		return err
	}

	set := setFlags(fs)
	if set["name"] {
		site = site.WithLongName(*name)
	}
	if set["state"] {
		var sp catalog.StateProv
		if *state != "" {
			if sp, err = catalog.ParseStateProv(*state); err != nil {
				return fmt.Errorf("%w (one of %s)", err, joinStates(catalog.StateProvs()))
			}
		}
		site = site.WithState(sp)
	}
	if set["notes"] {
		site = site.WithNotes(*notes)
	}
	if set["mobile"] {
		site = site.WithMobile(*mobile)
	}

	site, err = arch.UpdateSite(ctx, site)
	if err != nil {
		return err
	}
	a.logger.Info("site updated", "site", site.ShortName(), "name", site.LongName(), "state", site.State(), "incomplete", site.Incomplete())
	return nil
}

func (a *app) runTypeSet(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("type-set")
	source := fs.String("type", "", "Sounding type source")
	observed := fs.Bool("observed", false, "Type is observed rather than modeled")
	hours := fs.Int("hours", 0, "Hours between soundings (0 = unknown)")
	_ = fs.Parse(args)

	if err := requireFlags(fs, "type"); err != nil {
		return err
	}

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	typ, err := arch.SoundingType(ctx, *source)
	if err != nil {
		return err
	}

	set := setFlags(fs)
	obs, hrs := typ.IsObserved(), typ.HoursBetween()
	if set["observed"] {
		obs = *observed
	}
	if set["hours"] {
		hrs = *hours
	}

	typ, err = arch.UpdateSoundingType(ctx, catalog.NewSoundingType(typ.Source(), obs, typ.FileKind(), hrs))
	if err != nil {
		return err
	}
	a.logger.Info("sounding type updated", "type", typ.Source(), "observed", typ.IsObserved(), "hours_between", typ.HoursBetween())
	return nil
}

func (a *app) runLocationSet(ctx context.Context, args []string) error {
	fs, root := a.newFlagSet("location-set")
	lat := fs.Float64("lat", 0, "Latitude in decimal degrees")
	lon := fs.Float64("lon", 0, "Longitude in decimal degrees")
	elev := fs.Int("elev", 0, "Elevation in meters")
	tz := fs.Int("tz", 0, "UTC offset in seconds")
	clearTZ := fs.Bool("clear-tz", false, "Remove the stored UTC offset")
	_ = fs.Parse(args)

	set := setFlags(fs)
	if !set["tz"] && !*clearTZ {
		fs.Usage()
		return fmt.Errorf("location-set: %w: -tz or -clear-tz", errUsage)
	}

	loc, err := catalog.NewLocation(*lat, *lon, *elev)
	if err != nil {
		return err
	}
	if !*clearTZ {
		loc = loc.WithTZOffset(*tz)
	}

	arch, err := a.connect(ctx, *root)
	if err != nil {
		return err
	}
	defer closeArchive(a.logger, arch)

	loc, err = arch.UpdateLocation(ctx, loc)
	if err != nil {
		return err
	}
	offset, ok := loc.TZOffset()
	a.logger.Info("location updated", "location", loc.String(), "tz_offset", offset, "has_tz", ok)
	return nil
}

func joinStates(states []catalog.StateProv) string {
	names := make([]string, len(states))
	for i, sp := range states {
		names[i] = sp.String()
	}
	return strings.Join(names, " ")
}
