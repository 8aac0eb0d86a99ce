package store

import (
	"context"

	"github.com/sells-group/address-cli/internal/model"
)

// AddressFilter specifies criteria for listing addresses.
type AddressFilter struct {
	Locality string `json:"locality,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store is the persistence interface for the deduplicated address hierarchy.
//
// The GetOrCreate methods are upserts with a return-existing conflict policy:
// each one must behave atomically under concurrent callers racing to create
// the same key tuple, so implementations insert with ON CONFLICT DO NOTHING
// and re-select when the insert loses the race.
type Store interface {
	GetOrCreateCountry(ctx context.Context, name, code string) (*model.Country, error)
	GetOrCreateState(ctx context.Context, name, code string, countryID int64) (*model.State, error)
	GetOrCreateLocality(ctx context.Context, name, postalCode string, stateID int64) (*model.Locality, error)

	// FindAddressByRaw and FindAddressByParts return (nil, nil) on a miss.
	FindAddressByRaw(ctx context.Context, raw string) (*model.Address, error)
	FindAddressByParts(ctx context.Context, streetNumber, route, subpremise string, localityID *int64) (*model.Address, error)

	// CreateAddress inserts the address and fills in its ID. The caller is
	// responsible for deriving Formatted before persisting.
	CreateAddress(ctx context.Context, addr *model.Address) error

	// GetAddress loads an address with its full ancestor chain.
	GetAddress(ctx context.Context, id int64) (*model.Address, error)
	ListAddresses(ctx context.Context, filter AddressFilter) ([]model.Address, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
