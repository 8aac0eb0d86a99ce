package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/address-cli/internal/model"
	"github.com/sells-group/address-cli/pkg/geocode"
)

// fakeClient replays scripted lookup outcomes and records the queries made.
type fakeClient struct {
	results []*geocode.Result
	errs    []error
	queries []string
}

func (f *fakeClient) Lookup(ctx context.Context, query string) (*geocode.Result, error) {
	i := len(f.queries)
	f.queries = append(f.queries, query)
	var res *geocode.Result
	var err error
	if i < len(f.results) {
		res = f.results[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return res, err
}

func ptr(f float64) *float64 { return &f }

func newTestResolver(c geocode.Client) *Resolver {
	return New(c, WithThrottle(time.Millisecond))
}

func rooftop(comps model.Components, formatted string, partial bool) *geocode.Result {
	return &geocode.Result{
		Components:   comps,
		Formatted:    formatted,
		LocationType: geocode.LocationTypeRooftop,
		PartialMatch: partial,
		ResultCount:  1,
	}
}

func TestResolver_Eligible(t *testing.T) {
	r := newTestResolver(&fakeClient{})
	assert.False(t, r.Eligible("Melbourne"))
	assert.False(t, r.Eligible("1 Somewhere Street Melbourne"))
	assert.True(t, r.Eligible("1 Somewhere Street Melbourne VIC"))
}

func TestResolver_Resolve_Ineligible(t *testing.T) {
	client := &fakeClient{}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), "too short", Options{})
	require.NoError(t, err)
	assert.Nil(t, comps)
	assert.Empty(t, client.queries, "no lookup for ineligible input")
}

func TestResolver_Resolve_CleanMatch(t *testing.T) {
	raw := "123 Main St, South Jordan, UT 84095"
	client := &fakeClient{
		results: []*geocode.Result{rooftop(model.Components{
			StreetNumber: "123",
			Route:        "Main St",
			Locality:     "South Jordan",
			State:        "Utah",
			StateCode:    "UT",
			Country:      "United States",
			CountryCode:  "US",
			PostalCode:   "84095",
			Formatted:    "123 Main St, South Jordan, UT 84095, USA",
			Latitude:     ptr(40.56),
			Longitude:    ptr(-111.93),
		}, "123 Main St, South Jordan, UT 84095, USA", false)},
	}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), raw, Options{})
	require.NoError(t, err)
	require.NotNil(t, comps)
	assert.Equal(t, raw, comps.Raw, "raw input text is preserved")
	assert.Equal(t, "South Jordan", comps.Locality)
	assert.Len(t, client.queries, 1)
}

func TestResolver_Resolve_TooManyResults(t *testing.T) {
	raw := "123 Main St, Springfield, US 00000"
	client := &fakeClient{
		results: []*geocode.Result{{
			LocationType: geocode.LocationTypeRooftop,
			ResultCount:  3,
		}},
	}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), raw, Options{})
	assert.Nil(t, comps)
	var tooMany *TooManyResultsError
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, raw, tooMany.Raw)
}

func TestResolver_Resolve_ApproximateMatch(t *testing.T) {
	raw := "123 Main St, Springfield, US 00000"
	client := &fakeClient{
		results: []*geocode.Result{{
			LocationType: "RANGE_INTERPOLATED",
			ResultCount:  1,
		}},
	}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), raw, Options{})
	assert.Nil(t, comps)
	var approx *ApproximateMatchError
	require.ErrorAs(t, err, &approx)
}

func TestResolver_Resolve_PartialMatch(t *testing.T) {
	raw := "790 E Joralemon St, Belle Plaine, MN 56011"
	client := &fakeClient{
		results: []*geocode.Result{rooftop(model.Components{
			StreetNumber: "790",
			Route:        "East Joralemon Street",
			Locality:     "Belle Plaine",
		}, "790 E Joralemon St, Belle Plaine, MN 56011, USA", true)},
	}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), raw, Options{})
	assert.Nil(t, comps)
	var partial *PartialMatchError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, raw, partial.Raw)
}

func TestResolver_Resolve_PartialMatch_SubpremiseInRaw(t *testing.T) {
	// The provider flags a partial match but its subpremise is present in
	// the raw text; the flag is a false alarm.
	raw := "10808 S River Front Pkwy Suite 3066, South Jordan, UT"
	client := &fakeClient{
		results: []*geocode.Result{rooftop(model.Components{
			StreetNumber: "10808",
			Route:        "South River Front Parkway",
			Subpremise:   "3066",
			Latitude:     ptr(40.56),
			Longitude:    ptr(-111.93),
		}, "10808 S River Front Pkwy #3066, South Jordan, UT 84095, USA", true)},
	}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), raw, Options{})
	require.NoError(t, err)
	require.NotNil(t, comps)
	assert.Equal(t, "3066", comps.Subpremise)
	assert.Len(t, client.queries, 1)
}

func TestResolver_Resolve_RetryWithFormatted(t *testing.T) {
	raw := "10808 S River Front Pkwy # 3066, South Jordan, UT"
	first := rooftop(model.Components{
		StreetNumber: "10808",
		Route:        "South River Front Parkway",
		Subpremise:   "300",
		Latitude:     ptr(40.56),
		Longitude:    ptr(-111.93),
	}, "10808 S River Front Pkwy #300, South Jordan, UT 84095, USA", true)
	second := rooftop(model.Components{
		StreetNumber: "10808",
		Route:        "South River Front Parkway",
		Subpremise:   "3066",
		Latitude:     ptr(40.56),
		Longitude:    ptr(-111.93),
	}, "10808 S River Front Pkwy #3066, South Jordan, UT 84095, USA", false)
	client := &fakeClient{results: []*geocode.Result{first, second}}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), raw, Options{RetryWithFormatted: true})
	require.NoError(t, err)
	require.NotNil(t, comps)
	assert.Equal(t, "3066", comps.Subpremise)
	assert.Equal(t, raw, comps.Raw)

	require.Len(t, client.queries, 2)
	assert.Equal(t, "10808 S River Front Pkwy #3066, South Jordan, UT 84095, USA", client.queries[1],
		"second query is the formatted address with the raw subpremise substituted")
}

func TestResolver_Resolve_RetryStillPartial(t *testing.T) {
	raw := "10808 S River Front Pkwy # 3066, South Jordan, UT"
	first := rooftop(model.Components{
		StreetNumber: "10808",
		Subpremise:   "300",
		Latitude:     ptr(40.56),
		Longitude:    ptr(-111.93),
	}, "10808 S River Front Pkwy #300, South Jordan, UT 84095, USA", true)
	second := rooftop(model.Components{
		StreetNumber: "10808",
		Subpremise:   "412",
		Latitude:     ptr(40.56),
		Longitude:    ptr(-111.93),
	}, "10808 S River Front Pkwy #412, South Jordan, UT 84095, USA", true)
	client := &fakeClient{results: []*geocode.Result{first, second}}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), raw, Options{RetryWithFormatted: true})
	assert.Nil(t, comps)
	var partial *PartialMatchError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, raw, partial.Raw, "the first recorded diagnostic wins")
	assert.Len(t, client.queries, 2)
}

func TestResolver_Resolve_ReplaceOnly(t *testing.T) {
	raw := "10808 S River Front Pkwy #3066, South Jordan, UT"
	client := &fakeClient{
		results: []*geocode.Result{rooftop(model.Components{
			StreetNumber: "10808",
			Route:        "South River Front Parkway",
			Subpremise:   "300",
			Latitude:     ptr(40.56),
			Longitude:    ptr(-111.93),
		}, "10808 S River Front Pkwy #300, South Jordan, UT 84095, USA", true)},
	}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), raw, Options{ReplaceOnly: true})
	require.NoError(t, err)
	require.NotNil(t, comps)
	assert.Equal(t, "3066", comps.Subpremise, "raw subpremise overwrites the provider's")
	assert.Len(t, client.queries, 1)
}

func TestResolver_Resolve_ReplaceOnly_StreetNumberMismatch(t *testing.T) {
	// The overwrite is only safe when the provider resolved the same
	// street number the raw text starts with.
	raw := "10808 S River Front Pkwy #3066, South Jordan, UT"
	client := &fakeClient{
		results: []*geocode.Result{rooftop(model.Components{
			StreetNumber: "10850",
			Subpremise:   "300",
			Latitude:     ptr(40.56),
			Longitude:    ptr(-111.93),
		}, "10850 S River Front Pkwy #300, South Jordan, UT 84095, USA", true)},
	}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), raw, Options{ReplaceOnly: true})
	assert.Nil(t, comps)
	var partial *PartialMatchError
	require.ErrorAs(t, err, &partial)
}

func TestResolver_Resolve_IgnoreMissingSubpremise(t *testing.T) {
	raw := "790 E Joralemon St, Belle Plaine, MN 56011"
	client := &fakeClient{
		results: []*geocode.Result{rooftop(model.Components{
			StreetNumber: "790",
			Route:        "East Joralemon Street",
			Locality:     "Belle Plaine",
		}, "790 E Joralemon St, Belle Plaine, MN 56011, USA", true)},
	}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), raw, Options{IgnoreMissingSubpremise: true})
	require.NoError(t, err)
	require.NotNil(t, comps)
	assert.Equal(t, "Belle Plaine", comps.Locality)
}

func TestResolver_Resolve_ProviderFailure(t *testing.T) {
	// Transport failures never surface to the caller; the input is simply
	// persisted raw.
	raw := "123 Main St, South Jordan, UT 84095"
	client := &fakeClient{errs: []error{eris.New("connection refused")}}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), raw, Options{})
	require.NoError(t, err)
	assert.Nil(t, comps)
}

func TestResolver_Resolve_NoResults(t *testing.T) {
	raw := "zzz nowhere road, Atlantis, XX 00000"
	client := &fakeClient{results: []*geocode.Result{nil}}
	r := newTestResolver(client)

	comps, err := r.Resolve(context.Background(), raw, Options{})
	require.NoError(t, err)
	assert.Nil(t, comps)
}

func TestRecoverSubpremise(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"attached marker", "10808 S River Front Pkwy #3066, South Jordan", "3066"},
		{"attached with trailing comma", "10808 S River Front Pkwy #3066, UT", "3066"},
		{"detached marker past street", "10808 S River Front Pkwy # 3066, South Jordan", "3066"},
		{"detached marker too early", "10808 # 3066 S River Front Pkwy", ""},
		{"no marker", "10808 S River Front Pkwy, South Jordan", ""},
		{"alphanumeric unit", "10808 S River Front Pkwy #B12, South Jordan", "B12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recoverSubpremise(tt.raw))
		})
	}
}

func TestReplaceSubpremise(t *testing.T) {
	formatted := "10808 S River Front Pkwy #300, South Jordan, UT 84095, USA"
	assert.Equal(t,
		"10808 S River Front Pkwy #3066, South Jordan, UT 84095, USA",
		replaceSubpremise(formatted, "300", "3066"))

	// Same value means nothing to adjust.
	assert.Equal(t, "", replaceSubpremise(formatted, "300", "300"))
	assert.Equal(t, "", replaceSubpremise("", "300", "3066"))
	assert.Equal(t, "", replaceSubpremise("no unit here", "300", "3066"))
}
