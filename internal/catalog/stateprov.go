package catalog

import (
	"fmt"
	"strings"
)

// StateProv is a US state, district or territory abbreviation. The zero value means
// no state is recorded.
type StateProv string

// Supported abbreviations, including commonwealths and territories.
const (
	AL StateProv = "AL"
	AK StateProv = "AK"
	AZ StateProv = "AZ"
	AR StateProv = "AR"
	CA StateProv = "CA"
	CO StateProv = "CO"
	CT StateProv = "CT"
	DE StateProv = "DE"
	FL StateProv = "FL"
	GA StateProv = "GA"
	HI StateProv = "HI"
	ID StateProv = "ID"
	IL StateProv = "IL"
	IN StateProv = "IN"
	IA StateProv = "IA"
	KS StateProv = "KS"
	KY StateProv = "KY"
	LA StateProv = "LA"
	ME StateProv = "ME"
	MD StateProv = "MD"
	MA StateProv = "MA"
	MI StateProv = "MI"
	MN StateProv = "MN"
	MS StateProv = "MS"
	MO StateProv = "MO"
	MT StateProv = "MT"
	NE StateProv = "NE"
	NV StateProv = "NV"
	NH StateProv = "NH"
	NJ StateProv = "NJ"
	NM StateProv = "NM"
	NY StateProv = "NY"
	NC StateProv = "NC"
	ND StateProv = "ND"
	OH StateProv = "OH"
	OK StateProv = "OK"
	OR StateProv = "OR"
	PA StateProv = "PA"
	RI StateProv = "RI"
	SC StateProv = "SC"
	SD StateProv = "SD"
	TN StateProv = "TN"
	TX StateProv = "TX"
	UT StateProv = "UT"
	VT StateProv = "VT"
	VA StateProv = "VA"
	WA StateProv = "WA"
	WV StateProv = "WV"
	WI StateProv = "WI"
	WY StateProv = "WY"

	AS StateProv = "AS" // American Samoa
	DC StateProv = "DC"
	FM StateProv = "FM" // Federated States of Micronesia
	MH StateProv = "MH" // Marshall Islands
	MP StateProv = "MP" // Northern Mariana Islands
	PW StateProv = "PW" // Palau
	PR StateProv = "PR"
	VI StateProv = "VI"
)

var allStateProvs = []StateProv{
	AL, AK, AZ, AR, CA, CO, CT, DE, FL, GA, HI, ID, IL, IN, IA, KS, KY, LA, ME, MD,
	MA, MI, MN, MS, MO, MT, NE, NV, NH, NJ, NM, NY, NC, ND, OH, OK, OR, PA, RI, SC,
	SD, TN, TX, UT, VT, VA, WA, WV, WI, WY,
	AS, DC, FM, MH, MP, PW, PR, VI,
}

// StateProvs returns every supported abbreviation.
func StateProvs() []StateProv {
	out := make([]StateProv, len(allStateProvs))
	copy(out, allStateProvs)
	return out
}

// ParseStateProv converts an abbreviation into a StateProv. An empty string yields the
// zero value without error.
func ParseStateProv(s string) (StateProv, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	for _, sp := range allStateProvs {
		if string(sp) == s {
			return sp, nil
		}
	}
	return "", fmt.Errorf("unknown state/province %q", s)
}

func (s StateProv) String() string { return string(s) }
