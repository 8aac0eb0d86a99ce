// Package resolver decides whether a raw address needs external geocoding and
// drives the bounded retry loop that reconciles the provider's structured
// answer against the subpremise present in the raw text. The provider
// frequently drops or relocates unit numbers; the loop's job is to recover
// them or surface a diagnostic the caller can act on.
package resolver

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/address-cli/internal/model"
	"github.com/sells-group/address-cli/pkg/geocode"
)

const (
	// defaultMinTokens is the heuristic minimum for "street, city,
	// state/country". Shorter queries could match an arbitrary region
	// without the provider admitting it guessed.
	defaultMinTokens = 5

	// defaultThrottle spaces out the second attempt to respect the
	// provider's rate expectations for re-queries of the same address.
	defaultThrottle = 750 * time.Millisecond

	// maxAttempts bounds the loop: the raw text, then optionally one
	// adjusted formatted-address query.
	maxAttempts = 2
)

// Options are the per-call policy switches for subpremise reconciliation.
// They are passed explicitly so concurrent callers can use differing policies.
type Options struct {
	// RetryWithFormatted re-queries with the provider's formatted address
	// after substituting the subpremise recovered from the raw text.
	RetryWithFormatted bool `yaml:"subpremise_geocode_retry_with_replace" mapstructure:"subpremise_geocode_retry_with_replace"`

	// ReplaceOnly accepts the first result but overwrites its subpremise
	// with the one recovered from the raw text, without a second query.
	// RetryWithFormatted takes precedence when both are set.
	ReplaceOnly bool `yaml:"subpremise_replace_only" mapstructure:"subpremise_replace_only"`

	// IgnoreMissingSubpremise suppresses an unresolved partial-match error
	// and returns the best-effort components instead of failing.
	IgnoreMissingSubpremise bool `yaml:"ignore_missing_subpremise" mapstructure:"ignore_missing_subpremise"`
}

// Resolver drives geocode lookups for raw-only address input.
type Resolver struct {
	client    geocode.Client
	throttle  time.Duration
	minTokens int
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithThrottle overrides the delay before the second attempt.
func WithThrottle(d time.Duration) Option {
	return func(r *Resolver) {
		r.throttle = d
	}
}

// WithMinTokens overrides the eligibility token minimum.
func WithMinTokens(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.minTokens = n
		}
	}
}

// New creates a Resolver backed by the given geocode client.
func New(client geocode.Client, opts ...Option) *Resolver {
	r := &Resolver{
		client:    client,
		throttle:  defaultThrottle,
		minTokens: defaultMinTokens,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Eligible reports whether the raw text has enough tokens to geocode safely.
func (r *Resolver) Eligible(raw string) bool {
	return len(strings.Fields(raw)) >= r.minTokens
}

// Resolve geocodes the raw text and reconciles the answer against it.
// It returns (nil, nil) when the text is ineligible or no attempt produced a
// usable result; the caller then persists the raw string unchanged. Provider
// transport failures are soft: they end the attempt, never the caller.
func (r *Resolver) Resolve(ctx context.Context, raw string, opts Options) (*model.Components, error) {
	if !r.Eligible(raw) {
		return nil, nil
	}

	queries := []string{raw}

	var pending error  // unresolved potential error carried between attempts
	var recorded error // first potential ever recorded, surfaced at loop end
	var best *model.Components

	for attempt := 0; attempt < len(queries) && attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "resolver: throttle wait")
			case <-time.After(r.throttle):
			}
		}

		res, err := r.client.Lookup(ctx, queries[attempt])
		if err != nil {
			zap.L().Warn("geocode attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		if res == nil {
			continue
		}

		if res.ResultCount > 1 {
			return nil, &TooManyResultsError{Raw: raw}
		}
		if res.LocationType != geocode.LocationTypeRooftop {
			return nil, &ApproximateMatchError{Raw: raw}
		}

		if res.PartialMatch {
			pending = &PartialMatchError{Raw: raw}
			if recorded == nil {
				recorded = pending
			}
		} else {
			pending = nil
		}

		comps := res.Components
		comps.Raw = raw
		best = &comps

		// The provider found the unit after all; its partial-match flag
		// was a false alarm.
		if comps.Subpremise != "" && strings.Contains(raw, comps.Subpremise) {
			pending = nil
		}

		if pending != nil && comps.Subpremise != "" {
			rawSub := recoverSubpremise(raw)
			if rawSub != "" {
				if opts.RetryWithFormatted && attempt == 0 {
					if adjusted := replaceSubpremise(res.Formatted, comps.Subpremise, rawSub); adjusted != "" {
						zap.L().Debug("retrying with adjusted formatted address",
							zap.String("raw", raw),
							zap.String("query", adjusted),
						)
						queries = append(queries, adjusted)
						continue
					}
				} else if opts.ReplaceOnly {
					if firstToken(raw) == comps.StreetNumber &&
						comps.Latitude != nil && comps.Longitude != nil {
						comps.Subpremise = rawSub
						best = &comps
						pending, recorded = nil, nil
						break
					}
				}
			}
		}

		if pending == nil {
			break
		}
	}

	if pending != nil {
		if opts.IgnoreMissingSubpremise {
			zap.L().Info("ignoring unresolved subpremise",
				zap.String("raw", raw),
				zap.Error(recorded),
			)
			return best, nil
		}
		return nil, recorded
	}
	return best, nil
}

// recoverSubpremise scans the raw text for a unit marker and extracts the
// value after it. A marker that ends its own token ("Main St # 300") pulls
// the following token instead, but only past the street-number positions.
func recoverSubpremise(raw string) string {
	tokens := strings.Fields(raw)
	for i, tok := range tokens {
		if !strings.HasPrefix(tok, "#") {
			continue
		}
		if val := leadingAlnum(tok[1:]); val != "" {
			return val
		}
		if i > 2 && i+1 < len(tokens) {
			return leadingAlnum(tokens[i+1])
		}
	}
	return ""
}

// leadingAlnum returns the leading run of letters and digits.
func leadingAlnum(s string) string {
	for i, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return s[:i]
		}
	}
	return s
}

// replaceSubpremise substitutes the raw text's subpremise into the provider's
// formatted address in place of the provider's own. Returns "" when no
// substitution is possible.
func replaceSubpremise(formatted, got, want string) string {
	if formatted == "" || got == "" || got == want {
		return ""
	}
	if strings.Contains(formatted, "#"+got) {
		return strings.Replace(formatted, "#"+got, "#"+want, 1)
	}
	if strings.Contains(formatted, got) {
		return strings.Replace(formatted, got, want, 1)
	}
	return ""
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
