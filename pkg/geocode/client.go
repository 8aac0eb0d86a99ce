// Package geocode provides a client for the Google Geocoding API and maps its
// response shape into the internal component vocabulary.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/address-cli/internal/model"
)

const defaultBaseURL = "https://maps.googleapis.com"

// LocationTypeRooftop is the most precise location_type tier the provider
// reports; anything coarser is a street- or region-level approximation.
const LocationTypeRooftop = "ROOFTOP"

// Client performs geocode lookups.
type Client interface {
	Lookup(ctx context.Context, query string) (*Result, error)
}

// Result is the flattened view of the provider's first result. ResultCount
// carries the total number of results so the caller can reject ambiguous
// queries; the match-quality policy lives in the resolver, not here.
type Result struct {
	Components   model.Components
	Formatted    string
	Latitude     float64
	Longitude    float64
	LocationType string
	PartialMatch bool
	ResultCount  int
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second limit for provider calls.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Google Geocoding API client. The API key is required;
// callers are expected to fail at startup when it is missing.
func NewClient(apiKey string, opts ...Option) (Client, error) {
	if apiKey == "" {
		return nil, eris.New("geocode: api key not configured")
	}
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(10, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// geocodeResponse is the JSON response from the Geocoding API.
type geocodeResponse struct {
	Results []geocodeResult `json:"results"`
	Status  string          `json:"status"`
}

type geocodeResult struct {
	AddressComponents []addressComponent `json:"address_components"`
	FormattedAddress  string             `json:"formatted_address"`
	Geometry          struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	PartialMatch bool `json:"partial_match"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Lookup issues a geocode request for the query string. It returns (nil, nil)
// when the provider has no results, and an error on transport or non-200
// responses; callers treat those as "no usable result for this attempt".
func (c *httpClient) Lookup(ctx context.Context, query string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"address": {query},
		"key":     {c.apiKey},
	}
	reqURL := c.baseURL + "/maps/api/geocode/json?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	// The provider serves cached answers for repeated queries; retry attempts
	// need a fresh evaluation of the adjusted query string.
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var gr geocodeResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	if len(gr.Results) == 0 {
		return nil, nil
	}

	first := gr.Results[0]
	lat := first.Geometry.Location.Lat
	lng := first.Geometry.Location.Lng
	result := &Result{
		Components:   flatten(first),
		Formatted:    first.FormattedAddress,
		Latitude:     lat,
		Longitude:    lng,
		LocationType: first.Geometry.LocationType,
		PartialMatch: first.PartialMatch,
		ResultCount:  len(gr.Results),
	}
	result.Components.Formatted = first.FormattedAddress
	result.Components.Latitude = &lat
	result.Components.Longitude = &lng
	return result, nil
}

// componentTypeMap renames provider component types to vocabulary fields:
// the first-level administrative area is our state, the top-level political
// unit our country.
var componentTypeMap = map[string]string{
	"administrative_area_level_1": "state_code",
	"country":                     "country_code",
}

// flatten classifies each address component and assembles the vocabulary
// fields. Unrecognized component types are ignored, never an error.
func flatten(r geocodeResult) model.Components {
	fields := map[string]string{}
	for _, comp := range r.AddressComponents {
		types := stripPolitical(comp.Types)
		if len(types) == 0 {
			continue
		}
		name := types[0]
		if mapped, ok := componentTypeMap[name]; ok {
			name = mapped
		}
		if strings.HasSuffix(name, "_code") {
			fields[strings.TrimSuffix(name, "_code")] = comp.LongName
		}
		fields[name] = comp.ShortName
	}
	return model.Components{
		Country:      fields["country"],
		CountryCode:  fields["country_code"],
		State:        fields["state"],
		StateCode:    fields["state_code"],
		Locality:     fields["locality"],
		Sublocality:  fields["sublocality"],
		PostalCode:   fields["postal_code"],
		Route:        fields["route"],
		StreetNumber: fields["street_number"],
		Subpremise:   fields["subpremise"],
	}
}

// stripPolitical drops the "political" qualifier; it says nothing about the
// component's level.
func stripPolitical(types []string) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		if t != "political" {
			out = append(out, t)
		}
	}
	return out
}
