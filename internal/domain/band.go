package domain

import "strings"

// Band is an amateur band name like "20m" or "70cm".
type Band string

// BandUnknown marks frequencies outside every allocation we know about.
const BandUnknown Band = "unknown"

type bandRange struct {
	band Band
	lo   float64 // kHz, inclusive
	hi   float64 // kHz, inclusive
}

// bandPlan covers the HF/VHF/UHF allocations the spot networks actually
// report on. Ranges are in kHz.
var bandPlan = []bandRange{
	{"160m", 1800, 2000},
	{"80m", 3500, 4000},
	{"60m", 5330, 5410},
	{"40m", 7000, 7300},
	{"30m", 10100, 10150},
	{"20m", 14000, 14350},
	{"17m", 18068, 18168},
	{"15m", 21000, 21450},
	{"12m", 24890, 24990},
	{"10m", 28000, 29700},
	{"6m", 50000, 54000},
	{"2m", 144000, 148000},
	{"70cm", 420000, 450000},
}

// BandForFrequency maps a frequency in kHz to its band, or BandUnknown.
func BandForFrequency(khz float64) Band {
	for _, r := range bandPlan {
		if khz >= r.lo && khz <= r.hi {
			return r.band
		}
	}
	return BandUnknown
}

// Bands returns the known bands in frequency order.
func Bands() []Band {
	out := make([]Band, len(bandPlan))
	for i, r := range bandPlan {
		out[i] = r.band
	}
	return out
}

// NormalizeMode folds the mode labels the networks emit into a small
// stable set. Sideband variants collapse to SSB; digital modes keep
// their own names since activity differs sharply between them.
func NormalizeMode(mode string) string {
	m := strings.ToUpper(strings.TrimSpace(mode))
	switch m {
	case "":
		return "UNKNOWN"
	case "USB", "LSB", "PHONE", "SSB":
		return "SSB"
	case "CW":
		return "CW"
	case "FM", "NFM":
		return "FM"
	default:
		return m
	}
}

// GridField returns the 2-character maidenhead field of a locator, used
// as the coarse geography bucket for path diversity. Empty or malformed
// locators return "".
func GridField(locator string) string {
	l := strings.ToUpper(strings.TrimSpace(locator))
	if len(l) < 2 {
		return ""
	}
	if l[0] < 'A' || l[0] > 'R' || l[1] < 'A' || l[1] > 'R' {
		return ""
	}
	return l[:2]
}
