// Package classify detects installer service specialties from website text.
package classify

import (
	"sort"
	"strings"
)

// family maps a specialty slug to the keyword variants that signal it.
type family struct {
	slug     string
	label    string
	keywords []string
}

// families is static reference data. Changing it is a content change, not
// a logic change.
var families = []family{
	{"residential_pv", "Residential Solar", []string{
		"residential solar", "home solar", "rooftop solar", "solar for your home", "house solar",
	}},
	{"commercial_pv", "Commercial Solar", []string{
		"commercial solar", "business solar", "industrial solar", "solar for business", "commercial pv", "c&i solar",
	}},
	{"utility_scale", "Utility-Scale Solar", []string{
		"utility scale", "utility-scale", "solar farm", "megawatt", "power plant",
	}},
	{"battery_backup", "Battery & Backup Power", []string{
		"battery backup", "battery storage", "energy storage", "powerwall", "enphase battery", "backup power", "home battery",
	}},
	{"ev_charger", "EV Charger Installation", []string{
		"ev charger", "ev charging", "electric vehicle charger", "car charger", "chargepoint", "level 2 charger",
	}},
	{"solar_thermal", "Solar Water Heating", []string{
		"solar thermal", "solar water heat", "solar hot water", "water heating",
	}},
	{"solar_pool", "Solar Pool Heating", []string{
		"pool heating", "solar pool", "heated pool",
	}},
	{"roofing", "Roofing", []string{
		"roof replacement", "roofing services", "re-roof", "new roof", "roof repair",
	}},
	{"ground_mount", "Ground-Mount Systems", []string{
		"ground mount", "ground-mount", "ground mounted",
	}},
	{"carport", "Solar Carports", []string{
		"carport", "solar canopy", "parking canopy",
	}},
	{"off_grid", "Off-Grid Systems", []string{
		"off grid", "off-grid", "remote power", "cabin solar",
	}},
	{"maintenance_repair", "Maintenance & Repair", []string{
		"solar repair", "panel cleaning", "system maintenance", "solar service", "inspection",
	}},
	{"monitoring", "System Monitoring", []string{
		"monitoring", "performance tracking", "production data",
	}},
	{"inverter_service", "Inverter Service", []string{
		"inverter replacement", "inverter repair", "microinverter", "solaredge", "inverter installation",
	}},
	{"energy_audit", "Energy Audits", []string{
		"energy audit", "energy assessment", "efficiency audit", "home energy",
	}},
	{"financing", "Solar Financing", []string{
		"financing", "solar loan", "lease", "ppa", "power purchase agreement", "no money down",
	}},
}

// Classify returns the specialty slugs whose keyword families match the
// given text. Matching is substring presence on lowercased input; the
// result is sorted so identical inputs always give identical output.
func Classify(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var matched []string
	for _, f := range families {
		for _, kw := range f.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, f.slug)
				break
			}
		}
	}
	sort.Strings(matched)
	return matched
}

// Slugs returns every known specialty slug, sorted.
func Slugs() []string {
	out := make([]string, 0, len(families))
	for _, f := range families {
		out = append(out, f.slug)
	}
	sort.Strings(out)
	return out
}

// Label returns the human label for a slug, or the slug itself when unknown.
func Label(slug string) string {
	for _, f := range families {
		if f.slug == slug {
			return f.label
		}
	}
	return slug
}

// Tags returns the full specialty vocabulary as seedable reference data.
func Tags() map[string]string {
	out := make(map[string]string, len(families))
	for _, f := range families {
		out[f.slug] = f.label
	}
	return out
}
