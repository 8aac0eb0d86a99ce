// Package model defines the canonical address hierarchy and the flattened
// component vocabulary exchanged with callers and the geocode provider.
package model

import "strings"

// Field length limits enforced during canonicalization.
const (
	MaxCountryCodeLen = 2
	MaxStateCodeLen   = 3
)

// Country is the top level of the address hierarchy. Name is unique; Code is
// not (IT is both Italy's country code and a state code elsewhere).
type Country struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// String returns the country name, falling back to the code.
func (c *Country) String() string {
	if c == nil {
		return ""
	}
	if c.Name != "" {
		return c.Name
	}
	return c.Code
}

// State is an administrative region. Google reports it as
// administrative_area_level_1. Unique per (name, country).
type State struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Code    string   `json:"code"`
	Country *Country `json:"country,omitempty"`
}

// DisplayName returns the state name, falling back to the code.
func (s *State) DisplayName() string {
	if s == nil {
		return ""
	}
	if s.Name != "" {
		return s.Name
	}
	return s.Code
}

// String returns "name, country" with the comma omitted when either side is empty.
func (s *State) String() string {
	if s == nil {
		return ""
	}
	return joinComma(s.DisplayName(), s.Country.String())
}

// Locality is a suburb or city. Unique per (name, postal_code, state).
type Locality struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	PostalCode string `json:"postal_code"`
	State      *State `json:"state,omitempty"`
}

// String returns "name, state display[ postal_code]".
func (l *Locality) String() string {
	if l == nil {
		return ""
	}
	txt := joinComma(l.Name, l.State.String())
	if l.PostalCode != "" {
		txt += " " + l.PostalCode
	}
	return txt
}

// Address is the leaf record. Raw always holds the original input text; the
// remaining fields are populated only when the input decomposed cleanly.
type Address struct {
	ID           int64     `json:"id"`
	StreetNumber string    `json:"street_number"`
	Route        string    `json:"route"`
	Subpremise   string    `json:"subpremise"`
	Raw          string    `json:"raw"`
	Formatted    string    `json:"formatted"`
	Latitude     *float64  `json:"latitude"`
	Longitude    *float64  `json:"longitude"`
	Locality     *Locality `json:"locality,omitempty"`
}

// String returns the canonical display form: Formatted verbatim when set,
// otherwise a string built from the resolved components, otherwise Raw.
func (a *Address) String() string {
	if a.Formatted != "" {
		return a.Formatted
	}
	if a.Locality == nil {
		return a.Raw
	}
	var b strings.Builder
	b.WriteString(a.StreetNumber)
	if a.Route != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(a.Route)
	}
	if a.Subpremise != "" && b.Len() > 0 {
		// USPS prefers the actual designator (STE, APT) but accepts '#'
		// when the type is unknown.
		b.WriteString(" #")
		b.WriteString(a.Subpremise)
	}
	return joinComma(b.String(), a.Locality.String())
}

// Flatten returns the address and its ancestor chain as a Components value,
// the shape exported to external consumers.
func (a *Address) Flatten() Components {
	c := Components{
		Raw:          a.Raw,
		StreetNumber: a.StreetNumber,
		Route:        a.Route,
		Subpremise:   a.Subpremise,
		Formatted:    a.Formatted,
		Latitude:     a.Latitude,
		Longitude:    a.Longitude,
	}
	if a.Locality != nil {
		c.Locality = a.Locality.Name
		c.PostalCode = a.Locality.PostalCode
		if a.Locality.State != nil {
			c.State = a.Locality.State.Name
			c.StateCode = a.Locality.State.Code
			if a.Locality.State.Country != nil {
				c.Country = a.Locality.State.Country.Name
				c.CountryCode = a.Locality.State.Country.Code
			}
		}
	}
	return c
}

// Components is the flattened field vocabulary shared between callers, the
// canonicalizer and the geocode adapter. Lat/long are nil when absent.
type Components struct {
	Raw          string   `json:"raw"`
	Country      string   `json:"country"`
	CountryCode  string   `json:"country_code"`
	State        string   `json:"state"`
	StateCode    string   `json:"state_code"`
	Locality     string   `json:"locality"`
	Sublocality  string   `json:"sublocality"`
	PostalCode   string   `json:"postal_code"`
	StreetNumber string   `json:"street_number"`
	Route        string   `json:"route"`
	Subpremise   string   `json:"subpremise"`
	Formatted    string   `json:"formatted"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// RawOnly reports whether Raw is the only populated field, which makes the
// value eligible for geocoding.
func (c Components) RawOnly() bool {
	return c.Country == "" && c.CountryCode == "" &&
		c.State == "" && c.StateCode == "" &&
		c.Locality == "" && c.Sublocality == "" &&
		c.PostalCode == "" && c.StreetNumber == "" &&
		c.Route == "" && c.Subpremise == "" &&
		c.Formatted == "" && c.Latitude == nil && c.Longitude == nil
}

func joinComma(left, right string) string {
	switch {
	case left == "":
		return right
	case right == "":
		return left
	default:
		return left + ", " + right
	}
}
