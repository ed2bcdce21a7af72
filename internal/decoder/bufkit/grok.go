package bufkit

import "regexp"

// Format is one header line layout with named capture groups.
type Format struct {
	Name     string
	Pattern  string
	Compiled *regexp.Regexp
}

// Formats defines the header lines that open and describe each sounding.
var Formats = []Format{
	// Example: STID = KMSO  STNM = 727730  TIME = 170401/1200
	// STID is blank for some grid points.
	{
		Name:    "station",
		Pattern: `^STID\s*=\s*(?P<stid>[A-Z0-9]*)\s+STNM\s*=\s*(?P<stnm>\d+)\s+TIME\s*=\s*(?P<time>\d{6}/\d{4})`,
	},
	// Example: SLAT = 46.92  SLON = -114.08  SELV = 972.0
	{
		Name:    "coords",
		Pattern: `^SLAT\s*=\s*(?P<slat>-?[\d.]+)\s+SLON\s*=\s*(?P<slon>-?[\d.]+)\s+SELV\s*=\s*(?P<selv>-?[\d.]+)`,
	},
	// Example: STIM = 6
	{
		Name:    "lead",
		Pattern: `^STIM\s*=\s*(?P<stim>-?\d+)`,
	},
}

// paramPattern matches the NAME = value pairs of the station parameter block.
var paramPattern = regexp.MustCompile(`\b([A-Z][A-Z0-9]{2,5})\s*=\s*(-?\d+(?:\.\d+)?)`)

func init() {
	for i := range Formats {
		Formats[i].Compiled = regexp.MustCompile(Formats[i].Pattern)
	}
}

// match returns the name of the first format matching line and its captures.
func match(line string) (string, map[string]string) {
	for _, f := range Formats {
		m := f.Compiled.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		caps := make(map[string]string, len(m)-1)
		for i, name := range f.Compiled.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			caps[name] = m[i]
		}
		return f.Name, caps
	}
	return "", nil
}
