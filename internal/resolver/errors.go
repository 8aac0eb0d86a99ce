package resolver

import "fmt"

// TooManyResultsError indicates the raw text was ambiguous enough for the
// provider to return multiple candidates. The caller must disambiguate;
// there is no automatic fix.
type TooManyResultsError struct {
	Raw string
}

func (e *TooManyResultsError) Error() string {
	return fmt.Sprintf("too many results for %s", e.Raw)
}

// PartialMatchError indicates the provider flagged its single result as a
// partial match, which commonly means a subpremise in the query could not be
// matched to a precise rooftop location.
type PartialMatchError struct {
	Raw string
}

func (e *PartialMatchError) Error() string {
	return fmt.Sprintf("only a partial match could be found for %s", e.Raw)
}

// ApproximateMatchError indicates the provider could only guess a region.
// It is fatal: subpremise recovery is never attempted against approximate data.
type ApproximateMatchError struct {
	Raw string
}

func (e *ApproximateMatchError) Error() string {
	return fmt.Sprintf("only an approximate match could be found for %s", e.Raw)
}
