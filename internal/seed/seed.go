// Package seed bundles a small static model catalog used to populate the
// trending view before any network round trip, and as last-resort fallback
// data when the hub is unreachable.
package seed

import (
	_ "embed"

	"gopkg.in/yaml.v3"

	"modelcat/internal/catalog"
)

//go:embed seed.yaml
var raw []byte

// Items parses the bundled list. Every entry is tagged OriginStatic so
// consumers can tell seed data from cached or live results. The bundle is
// validated at build time by tests, so a parse failure yields an empty
// list rather than an error.
func Items() []catalog.Item {
	var doc struct {
		Models []catalog.Item `yaml:"models"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	for i := range doc.Models {
		doc.Models[i].Origin = catalog.OriginStatic
	}
	return doc.Models
}
