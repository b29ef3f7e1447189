package geo

import "strings"

// DefaultRegion is used when a property's city is not in the lookup table.
const DefaultRegion = "Other"

// cityRegions maps lowercase city names to the coarse region label shown to dispatchers.
var cityRegions = map[string]string{
	"colombo":      "Western",
	"dehiwala":     "Western",
	"moratuwa":     "Western",
	"negombo":      "Western",
	"gampaha":      "Western",
	"kalutara":     "Western",
	"kandy":        "Central",
	"matale":       "Central",
	"nuwara eliya": "Central",
	"galle":        "Southern",
	"matara":       "Southern",
	"hambantota":   "Southern",
	"jaffna":       "Northern",
	"vavuniya":     "Northern",
	"trincomalee":  "Eastern",
	"batticaloa":   "Eastern",
	"kurunegala":   "North Western",
	"puttalam":     "North Western",
	"anuradhapura": "North Central",
	"polonnaruwa":  "North Central",
	"badulla":      "Uva",
	"monaragala":   "Uva",
	"ratnapura":    "Sabaragamuwa",
	"kegalle":      "Sabaragamuwa",
}

// RegionFor returns the region label for a property. An explicit city wins;
// otherwise the comma separated parts of the address are scanned from the end,
// where the city usually sits.
func RegionFor(address, city string) string {
	if r, ok := cityRegions[normalizeCity(city)]; ok {
		return r
	}
	parts := strings.Split(address, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		if r, ok := cityRegions[normalizeCity(parts[i])]; ok {
			return r
		}
	}
	return DefaultRegion
}

func normalizeCity(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	// Trailing postal codes ("Colombo 07") do not change the region.
	if i := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
