package models

import "strings"

// Threshold holds the regulatory information and alert levels in µg/m³.
type Threshold struct {
	Information float64 `json:"information"`
	Alert       float64 `json:"alerte"`
}

// Thresholds indexes pollution thresholds by normalized pollutant code.
var Thresholds = map[string]Threshold{
	"NO2":  {Information: 200, Alert: 400},
	"O3":   {Information: 180, Alert: 240},
	"PM10": {Information: 50, Alert: 80},
	"PM25": {Information: 35, Alert: 50},
	"SO2":  {Information: 300, Alert: 500},
}

var regionsByPrefix = map[string]string{
	"21":  "Bourgogne-Franche-Comté",
	"76":  "Normandie",
	"972": "Martinique",
	"33":  "Nouvelle-Aquitaine",
	"75":  "Île-de-France",
}

var regionsByOrganism = map[string]string{
	"ATMO BFC":                "Bourgogne-Franche-Comté",
	"ATMO NORMANDIE":          "Normandie",
	"MADININAIR":              "Martinique",
	"ATMO NOUVELLE-AQUITAINE": "Nouvelle-Aquitaine",
	"AIRPARIF":                "Île-de-France",
}

// NormalizePollutant upper-cases a pollutant code and folds the PM2.5
// spellings found across sources onto PM25.
func NormalizePollutant(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch c {
	case "PM2.5", "PM2,5", "PM2_5":
		return "PM25"
	}
	return c
}

// ThresholdFor returns the thresholds known for a pollutant code.
func ThresholdFor(code string) (Threshold, bool) {
	t, ok := Thresholds[NormalizePollutant(code)]
	return t, ok
}

// RegionForZone resolves a zone filter or code to a region label using the
// longest known prefix. Returns "" when none matches.
func RegionForZone(zone string) string {
	best := ""
	label := ""
	for prefix, name := range regionsByPrefix {
		if strings.HasPrefix(zone, prefix) && len(prefix) > len(best) {
			best = prefix
			label = name
		}
	}
	return label
}

// RegionForOrganism maps an AASQA organism name to its region label.
func RegionForOrganism(organism string) string {
	return regionsByOrganism[strings.ToUpper(strings.TrimSpace(organism))]
}
