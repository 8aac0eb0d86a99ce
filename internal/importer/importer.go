// Package importer reads address rows from CSV and XLSX files and maps them
// onto the component vocabulary. All importers yield Record values; callers
// feed them to the canonicalizer.
package importer

import (
	"strings"

	"github.com/sells-group/address-cli/internal/model"
)

// Record is one input row: the structured components parsed from the file
// plus its 1-based line number for error reporting.
type Record struct {
	Line       int
	Components model.Components
}

// headerFields maps recognized column headers to component setters. Headers
// are matched case-insensitively with spaces treated as underscores.
var headerFields = map[string]func(*model.Components, string){
	"raw":           func(c *model.Components, v string) { c.Raw = v },
	"address":       func(c *model.Components, v string) { c.Raw = v },
	"country":       func(c *model.Components, v string) { c.Country = v },
	"country_code":  func(c *model.Components, v string) { c.CountryCode = v },
	"state":         func(c *model.Components, v string) { c.State = v },
	"state_code":    func(c *model.Components, v string) { c.StateCode = v },
	"locality":      func(c *model.Components, v string) { c.Locality = v },
	"city":          func(c *model.Components, v string) { c.Locality = v },
	"sublocality":   func(c *model.Components, v string) { c.Sublocality = v },
	"postal_code":   func(c *model.Components, v string) { c.PostalCode = v },
	"zip":           func(c *model.Components, v string) { c.PostalCode = v },
	"street_number": func(c *model.Components, v string) { c.StreetNumber = v },
	"route":         func(c *model.Components, v string) { c.Route = v },
	"street":        func(c *model.Components, v string) { c.Route = v },
	"subpremise":    func(c *model.Components, v string) { c.Subpremise = v },
	"unit":          func(c *model.Components, v string) { c.Subpremise = v },
	"formatted":     func(c *model.Components, v string) { c.Formatted = v },
}

// mapHeader resolves each column header to a setter, nil for unrecognized
// columns. A file with no recognized columns yields an all-nil mapping; the
// readers treat that as single-column raw input.
func mapHeader(header []string) []func(*model.Components, string) {
	setters := make([]func(*model.Components, string), len(header))
	for i, h := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		setters[i] = headerFields[key]
	}
	return setters
}

func anyRecognized(setters []func(*model.Components, string)) bool {
	for _, s := range setters {
		if s != nil {
			return true
		}
	}
	return false
}

// buildRecord fills a Components from one row. Cells beyond the header width
// are ignored; missing trailing cells are fine.
func buildRecord(line int, cells []string, setters []func(*model.Components, string)) Record {
	var comps model.Components
	for i, cell := range cells {
		if i >= len(setters) || setters[i] == nil {
			continue
		}
		setters[i](&comps, strings.TrimSpace(cell))
	}
	return Record{Line: line, Components: comps}
}
