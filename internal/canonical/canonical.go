// Package canonical normalizes address input into the deduplicated
// Country → State → Locality → Address hierarchy. It accepts anything a
// caller might reasonably hold — nothing, a primary key, a raw string, a
// structured component set — and returns the persisted canonical record.
package canonical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/address-cli/internal/model"
	"github.com/sells-group/address-cli/internal/resolver"
	"github.com/sells-group/address-cli/internal/store"
)

// errInconsistent signals a structured value where only part of the
// country/state/locality chain is present. It is internal: Normalize catches
// it and degrades to a raw-only record rather than surfacing an error.
var errInconsistent = errors.New("inconsistent address hierarchy")

// Canonicalizer resolves and links address values through the hierarchy store.
type Canonicalizer struct {
	store store.Store
	res   *resolver.Resolver // nil disables geocoding
	opts  resolver.Options
}

// New creates a Canonicalizer. A nil resolver disables geocoding: raw-only
// input is then persisted as-is.
func New(st store.Store, res *resolver.Resolver, opts resolver.Options) *Canonicalizer {
	return &Canonicalizer{store: st, res: res, opts: opts}
}

// Normalize converts a value into a persisted canonical Address.
//
//   - nil and "" yield (nil, nil).
//   - *model.Address is returned unchanged (already canonical).
//   - int/int64 is a primary key; the record is loaded from the store.
//   - a string is raw input: geocoded when eligible, otherwise stored as a
//     fresh raw-only row (duplicate bare-raw submissions are expected).
//   - model.Components or map[string]any go through structured resolution;
//     an inconsistent hierarchy degrades to a raw-only row.
//
// Anything else fails with InvalidValueError.
func (c *Canonicalizer) Normalize(ctx context.Context, value any) (*model.Address, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *model.Address:
		return v, nil
	case int:
		return c.store.GetAddress(ctx, int64(v))
	case int64:
		return c.store.GetAddress(ctx, v)
	case string:
		if v == "" {
			return nil, nil
		}
		return c.normalizeRaw(ctx, v)
	case model.Components:
		return c.normalizeComponents(ctx, v)
	case map[string]any:
		comps, err := componentsFromMap(v)
		if err != nil {
			return nil, err
		}
		return c.normalizeComponents(ctx, comps)
	default:
		return nil, &InvalidValueError{Value: value}
	}
}

// normalizeRaw handles bare raw strings: resolve when possible, otherwise
// always create a fresh raw-only row.
func (c *Canonicalizer) normalizeRaw(ctx context.Context, raw string) (*model.Address, error) {
	if c.res != nil {
		comps, err := c.res.Resolve(ctx, raw, c.opts)
		if err != nil {
			return nil, err
		}
		if comps != nil {
			return c.normalizeComponents(ctx, *comps)
		}
	}
	addr := &model.Address{Raw: raw}
	if err := c.store.CreateAddress(ctx, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

// normalizeComponents runs structured resolution, geocoding raw-only input
// first and degrading to a raw-only row on an inconsistent hierarchy.
func (c *Canonicalizer) normalizeComponents(ctx context.Context, comps model.Components) (*model.Address, error) {
	if comps.Raw == "" {
		return nil, nil
	}

	if c.res != nil && comps.RawOnly() {
		resolved, err := c.res.Resolve(ctx, comps.Raw, c.opts)
		if err != nil {
			return nil, err
		}
		// Ineligible or no usable result leaves the raw text unchanged;
		// persist then dedups on it.
		if resolved != nil {
			resolved.Raw = comps.Raw
			comps = *resolved
		}
	}

	addr, err := c.persist(ctx, comps)
	if errors.Is(err, errInconsistent) {
		zap.L().Debug("inconsistent hierarchy, storing raw only",
			zap.String("raw", comps.Raw),
		)
		addr = &model.Address{Raw: comps.Raw}
		if err := c.store.CreateAddress(ctx, addr); err != nil {
			return nil, err
		}
		return addr, nil
	}
	return addr, err
}

// persist is the level-by-level lookup-or-create walk. Each level is gated by
// its parent already being resolved; the store guarantees no duplicate rows
// per key tuple under concurrent callers.
func (c *Canonicalizer) persist(ctx context.Context, comps model.Components) (*model.Address, error) {
	// Sub-city districts the provider reports separately from the city
	// (NYC boroughs) stand in for the locality.
	if comps.Locality == "" && comps.Sublocality != "" {
		comps.Locality = comps.Sublocality
	}

	hasAny := comps.Country != "" || comps.State != "" || comps.Locality != ""
	hasAll := comps.Country != "" && comps.State != "" && comps.Locality != ""
	if hasAny && !hasAll {
		return nil, errInconsistent
	}

	var country *model.Country
	if comps.Country != "" {
		code, err := checkCode(comps.CountryCode, comps.Country, model.MaxCountryCodeLen, "country code")
		if err != nil {
			return nil, err
		}
		country, err = c.store.GetOrCreateCountry(ctx, comps.Country, code)
		if err != nil {
			return nil, err
		}
	}

	var state *model.State
	if comps.State != "" {
		code, err := checkCode(comps.StateCode, comps.State, model.MaxStateCodeLen, "state code")
		if err != nil {
			return nil, err
		}
		state, err = c.store.GetOrCreateState(ctx, comps.State, code, country.ID)
		if err != nil {
			return nil, err
		}
	}

	var locality *model.Locality
	if comps.Locality != "" {
		var err error
		locality, err = c.store.GetOrCreateLocality(ctx, comps.Locality, comps.PostalCode, state.ID)
		if err != nil {
			return nil, err
		}
	}

	var addr *model.Address
	var err error
	if comps.StreetNumber == "" && comps.Route == "" && comps.Locality == "" && comps.Subpremise == "" {
		// Nothing to key on besides the text itself; collapse duplicate
		// bare-raw submissions.
		addr, err = c.store.FindAddressByRaw(ctx, comps.Raw)
	} else {
		var locID *int64
		if locality != nil {
			locID = &locality.ID
		}
		addr, err = c.store.FindAddressByParts(ctx, comps.StreetNumber, comps.Route, comps.Subpremise, locID)
	}
	if err != nil {
		return nil, err
	}
	if addr != nil {
		return addr, nil
	}

	addr = &model.Address{
		StreetNumber: comps.StreetNumber,
		Route:        comps.Route,
		Subpremise:   comps.Subpremise,
		Raw:          comps.Raw,
		Formatted:    comps.Formatted,
		Latitude:     comps.Latitude,
		Longitude:    comps.Longitude,
		Locality:     locality,
	}
	// A decomposed address gets a display form; raw-only rows render their
	// raw text at display time instead of freezing it into formatted.
	if addr.Formatted == "" && addr.Locality != nil {
		addr.Formatted = addr.String()
	}
	if err := c.store.CreateAddress(ctx, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

// checkCode enforces the code length rule: a too-long code that duplicates
// the long name is silently cleared; a too-long code that differs is fatal.
func checkCode(code, name string, maxLen int, field string) (string, error) {
	if len(code) <= maxLen {
		return code, nil
	}
	if code != name {
		return "", &InvalidCodeError{Field: field, Code: code}
	}
	return "", nil
}

// componentsFromMap extracts the field vocabulary from a loosely-typed map,
// coercing latitude/longitude to floats up front so garbage numerics fail
// regardless of what else the map holds.
func componentsFromMap(m map[string]any) (model.Components, error) {
	var comps model.Components

	lat, err := ensureFloat("latitude", m["latitude"])
	if err != nil {
		return comps, err
	}
	lng, err := ensureFloat("longitude", m["longitude"])
	if err != nil {
		return comps, err
	}

	comps = model.Components{
		Raw:          getString(m, "raw"),
		Country:      getString(m, "country"),
		CountryCode:  getString(m, "country_code"),
		State:        getString(m, "state"),
		StateCode:    getString(m, "state_code"),
		Locality:     getString(m, "locality"),
		Sublocality:  getString(m, "sublocality"),
		PostalCode:   getString(m, "postal_code"),
		StreetNumber: getString(m, "street_number"),
		Route:        getString(m, "route"),
		Subpremise:   getString(m, "subpremise"),
		Formatted:    getString(m, "formatted"),
		Latitude:     lat,
		Longitude:    lng,
	}
	return comps, nil
}

func getString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

// ensureFloat coerces a latitude/longitude value. Absent values and empty
// strings are harmless nils; anything unparseable is InvalidNumericError.
func ensureFloat(field string, v any) (*float64, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &val, nil
	case float32:
		f := float64(val)
		return &f, nil
	case int:
		f := float64(val)
		return &f, nil
	case int64:
		f := float64(val)
		return &f, nil
	case *float64:
		return val, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, &InvalidNumericError{Field: field, Value: val.String()}
		}
		return &f, nil
	case string:
		if val == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, &InvalidNumericError{Field: field, Value: val}
		}
		return &f, nil
	default:
		return nil, &InvalidNumericError{Field: field, Value: fmt.Sprintf("%v", val)}
	}
}
