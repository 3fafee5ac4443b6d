// Package links generates outbound reference URLs for a newly created
// installer. Pure string templating, no network calls.
package links

import (
	"net/url"
	"strings"

	"github.com/sunscout/installer-cli/internal/model"
)

// Generate builds the default set of reference links for an installer.
// Called once on creation; updates never regenerate links.
func Generate(installer model.Installer) []model.ReferenceLink {
	name := strings.TrimSpace(installer.Name)
	if name == "" {
		return nil
	}

	locality := strings.TrimSpace(strings.Join(nonEmpty(installer.City, installer.State), " "))
	q := url.QueryEscape(strings.TrimSpace(name + " " + locality))

	out := []model.ReferenceLink{
		{
			InstallerID: installer.ID,
			Kind:        "maps",
			URL:         "https://www.google.com/maps/search/?api=1&query=" + q,
		},
		{
			InstallerID: installer.ID,
			Kind:        "yelp",
			URL:         "https://www.yelp.com/search?find_desc=" + url.QueryEscape(name) + "&find_loc=" + url.QueryEscape(locality),
		},
		{
			InstallerID: installer.ID,
			Kind:        "bbb",
			URL:         "https://www.bbb.org/search?find_country=USA&find_text=" + url.QueryEscape(name),
		},
		{
			InstallerID: installer.ID,
			Kind:        "directory",
			URL:         "https://www.energysage.com/supplier/search/?search=" + url.QueryEscape(name),
		},
	}

	if installer.State != "" {
		out = append(out, model.ReferenceLink{
			InstallerID: installer.ID,
			Kind:        "licensing",
			URL: "https://www.google.com/search?q=" + url.QueryEscape(
				installer.State+" contractor license lookup "+name),
		})
	}

	return out
}

func nonEmpty(parts ...string) []string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
