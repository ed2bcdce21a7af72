// Package bufkit reads the station headers of BUFKIT text files: one block per
// forecast hour giving the station, valid time, coordinates and the provider's
// stability indices. The profile columns are not interpreted.
package bufkit

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sounding_archive/internal/catalog"
	"sounding_archive/internal/decoder"
)

// missingValue marks absent data in BUFKIT files.
const missingValue = -9999.0

// timeLayout is the YYMMDD/HHMM format of the TIME field.
const timeLayout = "060102/1504"

// headerKeys are parsed from their own formats and kept out of the provider map.
var headerKeys = map[string]bool{
	"STID": true, "STNM": true, "TIME": true,
	"SLAT": true, "SLON": true, "SELV": true, "STIM": true,
}

// Decoder decodes BUFKIT payloads.
type Decoder struct{}

func init() {
	decoder.Register(Decoder{})
}

func (Decoder) Name() string           { return "bufkit" }
func (Decoder) Kind() catalog.FileKind { return catalog.KindBufkit }

// Decode returns one analysis per sounding block, in file order.
func (Decoder) Decode(raw []byte, description string) ([]decoder.Analysis, error) {
	var out []decoder.Analysis
	var cur *decoder.Analysis

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.Contains(line, "=") {
			continue
		}

		name, caps := match(line)
		switch name {
		case "station":
			vt, err := time.ParseInLocation(timeLayout, caps["time"], time.UTC)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: bad time %q", description, lineNo, caps["time"])
			}
			stnm, _ := strconv.Atoi(caps["stnm"])
			out = append(out, decoder.Analysis{
				Sounding: decoder.Sounding{
					Station:    caps["stid"],
					StationNum: stnm,
					ValidTime:  vt,
				},
				Provider: make(map[string]float64),
			})
			cur = &out[len(out)-1]
			continue
		}

		// Anything before the first station line is the file preamble.
		if cur == nil {
			continue
		}

		switch name {
		case "coords":
			lat, err1 := strconv.ParseFloat(caps["slat"], 64)
			lon, err2 := strconv.ParseFloat(caps["slon"], 64)
			elev, err3 := strconv.ParseFloat(caps["selv"], 64)
			if err1 != nil || err2 != nil || err3 != nil {
				return nil, fmt.Errorf("%s line %d: bad coordinates", description, lineNo)
			}
			cur.Sounding.Latitude = lat
			cur.Sounding.Longitude = lon
			cur.Sounding.Elevation = elev
			cur.Sounding.HasCoords = true
		case "lead":
			hours, err := strconv.Atoi(caps["stim"])
			if err != nil {
				return nil, fmt.Errorf("%s line %d: bad lead time", description, lineNo)
			}
			cur.Sounding.LeadTime = time.Duration(hours) * time.Hour
		default:
			for _, m := range paramPattern.FindAllStringSubmatch(line, -1) {
				if headerKeys[m[1]] {
					continue
				}
				v, err := strconv.ParseFloat(m[2], 64)
				if err != nil || v == missingValue {
					continue
				}
				cur.Provider[m[1]] = v
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", description, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no soundings found", description)
	}
	return out, nil
}
