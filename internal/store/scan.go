package store

import (
	"database/sql"

	"github.com/sells-group/address-cli/internal/model"
)

// addressColumns is the joined projection shared by every address query:
// the address row plus its locality/state/country chain via LEFT JOINs.
const addressColumns = `a.id, a.street_number, a.route, a.subpremise, a.raw, a.formatted, a.latitude, a.longitude,
	l.id, l.name, l.postal_code,
	s.id, s.name, s.code,
	c.id, c.name, c.code`

const addressJoins = `
	FROM addresses a
	LEFT JOIN localities l ON l.id = a.locality_id
	LEFT JOIN states s ON s.id = l.state_id
	LEFT JOIN countries c ON c.id = s.country_id`

type scannable interface {
	Scan(dest ...any) error
}

// scanAddress reads one joined address row. Both database/sql and pgx rows
// satisfy scannable, so the sqlite and postgres stores share this.
func scanAddress(row scannable) (*model.Address, error) {
	var a model.Address
	var lat, lng sql.NullFloat64
	var locID, stateID, countryID sql.NullInt64
	var locName, locPostal, stName, stCode, cName, cCode sql.NullString

	err := row.Scan(
		&a.ID, &a.StreetNumber, &a.Route, &a.Subpremise, &a.Raw, &a.Formatted, &lat, &lng,
		&locID, &locName, &locPostal,
		&stateID, &stName, &stCode,
		&countryID, &cName, &cCode,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid {
		a.Latitude = &lat.Float64
	}
	if lng.Valid {
		a.Longitude = &lng.Float64
	}
	if locID.Valid {
		loc := &model.Locality{ID: locID.Int64, Name: locName.String, PostalCode: locPostal.String}
		if stateID.Valid {
			st := &model.State{ID: stateID.Int64, Name: stName.String, Code: stCode.String}
			if countryID.Valid {
				st.Country = &model.Country{ID: countryID.Int64, Name: cName.String, Code: cCode.String}
			}
			loc.State = st
		}
		a.Locality = loc
	}
	return &a, nil
}

// localityID returns the foreign key for an address, nil when unresolved.
func localityID(a *model.Address) *int64 {
	if a.Locality == nil {
		return nil
	}
	return &a.Locality.ID
}
