package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/address-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS countries (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	code TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS states (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	code       TEXT NOT NULL DEFAULT '',
	country_id INTEGER NOT NULL REFERENCES countries(id) ON DELETE CASCADE,
	UNIQUE (name, country_id)
);

CREATE TABLE IF NOT EXISTS localities (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	postal_code TEXT NOT NULL DEFAULT '',
	state_id    INTEGER NOT NULL REFERENCES states(id) ON DELETE CASCADE,
	UNIQUE (name, postal_code, state_id)
);

CREATE TABLE IF NOT EXISTS addresses (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	street_number TEXT NOT NULL DEFAULT '',
	route         TEXT NOT NULL DEFAULT '',
	subpremise    TEXT NOT NULL DEFAULT '',
	raw           TEXT NOT NULL CHECK (raw <> ''),
	formatted     TEXT NOT NULL DEFAULT '',
	latitude      REAL,
	longitude     REAL,
	locality_id   INTEGER REFERENCES localities(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_states_country ON states(country_id);
CREATE INDEX IF NOT EXISTS idx_localities_state ON localities(state_id);
CREATE INDEX IF NOT EXISTS idx_addresses_raw ON addresses(raw);
CREATE INDEX IF NOT EXISTS idx_addresses_parts ON addresses(street_number, route, subpremise, locality_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetOrCreateCountry(ctx context.Context, name, code string) (*model.Country, error) {
	if c, err := s.countryByName(ctx, name); c != nil || err != nil {
		return c, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO countries (name, code) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, code,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert country %s", name)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: country insert id")
		}
		return &model.Country{ID: id, Name: name, Code: code}, nil
	}

	// Lost the race; the row exists now.
	c, err := s.countryByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, eris.Errorf("sqlite: country %q missing after conflict", name)
	}
	return c, nil
}

func (s *SQLiteStore) countryByName(ctx context.Context, name string) (*model.Country, error) {
	var c model.Country
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, code FROM countries WHERE name = ?`, name,
	).Scan(&c.ID, &c.Name, &c.Code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get country %s", name)
	}
	return &c, nil
}

func (s *SQLiteStore) GetOrCreateState(ctx context.Context, name, code string, countryID int64) (*model.State, error) {
	if st, err := s.stateByKey(ctx, name, countryID); st != nil || err != nil {
		return st, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO states (name, code, country_id) VALUES (?, ?, ?) ON CONFLICT(name, country_id) DO NOTHING`,
		name, code, countryID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert state %s", name)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: state insert id")
		}
		return s.stateByID(ctx, id)
	}

	st, err := s.stateByKey(ctx, name, countryID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.Errorf("sqlite: state %q missing after conflict", name)
	}
	return st, nil
}

const sqliteStateSelect = `
	SELECT s.id, s.name, s.code, c.id, c.name, c.code
	FROM states s JOIN countries c ON c.id = s.country_id`

func (s *SQLiteStore) stateByKey(ctx context.Context, name string, countryID int64) (*model.State, error) {
	return s.scanState(s.db.QueryRowContext(ctx,
		sqliteStateSelect+` WHERE s.name = ? AND s.country_id = ?`, name, countryID,
	))
}

func (s *SQLiteStore) stateByID(ctx context.Context, id int64) (*model.State, error) {
	return s.scanState(s.db.QueryRowContext(ctx, sqliteStateSelect+` WHERE s.id = ?`, id))
}

func (s *SQLiteStore) scanState(row *sql.Row) (*model.State, error) {
	var st model.State
	var c model.Country
	err := row.Scan(&st.ID, &st.Name, &st.Code, &c.ID, &c.Name, &c.Code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan state")
	}
	st.Country = &c
	return &st, nil
}

func (s *SQLiteStore) GetOrCreateLocality(ctx context.Context, name, postalCode string, stateID int64) (*model.Locality, error) {
	if loc, err := s.localityByKey(ctx, name, postalCode, stateID); loc != nil || err != nil {
		return loc, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO localities (name, postal_code, state_id) VALUES (?, ?, ?)
		 ON CONFLICT(name, postal_code, state_id) DO NOTHING`,
		name, postalCode, stateID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert locality %s", name)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: locality insert id")
		}
		return s.localityByID(ctx, id)
	}

	loc, err := s.localityByKey(ctx, name, postalCode, stateID)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, eris.Errorf("sqlite: locality %q missing after conflict", name)
	}
	return loc, nil
}

const sqliteLocalitySelect = `
	SELECT l.id, l.name, l.postal_code, s.id, s.name, s.code, c.id, c.name, c.code
	FROM localities l
	JOIN states s ON s.id = l.state_id
	JOIN countries c ON c.id = s.country_id`

func (s *SQLiteStore) localityByKey(ctx context.Context, name, postalCode string, stateID int64) (*model.Locality, error) {
	return s.scanLocality(s.db.QueryRowContext(ctx,
		sqliteLocalitySelect+` WHERE l.name = ? AND l.postal_code = ? AND l.state_id = ?`,
		name, postalCode, stateID,
	))
}

func (s *SQLiteStore) localityByID(ctx context.Context, id int64) (*model.Locality, error) {
	return s.scanLocality(s.db.QueryRowContext(ctx, sqliteLocalitySelect+` WHERE l.id = ?`, id))
}

func (s *SQLiteStore) scanLocality(row *sql.Row) (*model.Locality, error) {
	var loc model.Locality
	var st model.State
	var c model.Country
	err := row.Scan(&loc.ID, &loc.Name, &loc.PostalCode, &st.ID, &st.Name, &st.Code, &c.ID, &c.Name, &c.Code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan locality")
	}
	st.Country = &c
	loc.State = &st
	return &loc, nil
}

func (s *SQLiteStore) FindAddressByRaw(ctx context.Context, raw string) (*model.Address, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+addressColumns+addressJoins+` WHERE a.raw = ? ORDER BY a.id LIMIT 1`, raw,
	)
	a, err := scanAddress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find address by raw")
	}
	return a, nil
}

func (s *SQLiteStore) FindAddressByParts(ctx context.Context, streetNumber, route, subpremise string, locID *int64) (*model.Address, error) {
	query := `SELECT ` + addressColumns + addressJoins +
		` WHERE a.street_number = ? AND a.route = ? AND a.subpremise = ?`
	args := []any{streetNumber, route, subpremise}
	if locID == nil {
		query += ` AND a.locality_id IS NULL`
	} else {
		query += ` AND a.locality_id = ?`
		args = append(args, *locID)
	}
	query += ` ORDER BY a.id LIMIT 1`

	a, err := scanAddress(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find address by parts")
	}
	return a, nil
}

func (s *SQLiteStore) CreateAddress(ctx context.Context, addr *model.Address) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO addresses (street_number, route, subpremise, raw, formatted, latitude, longitude, locality_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		addr.StreetNumber, addr.Route, addr.Subpremise, addr.Raw, addr.Formatted,
		addr.Latitude, addr.Longitude, localityID(addr),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert address")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: address insert id")
	}
	addr.ID = id
	return nil
}

func (s *SQLiteStore) GetAddress(ctx context.Context, id int64) (*model.Address, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+addressColumns+addressJoins+` WHERE a.id = ?`, id,
	)
	a, err := scanAddress(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: address not found: %d", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get address")
	}
	return a, nil
}

func (s *SQLiteStore) ListAddresses(ctx context.Context, filter AddressFilter) ([]model.Address, error) {
	query := `SELECT ` + addressColumns + addressJoins + ` WHERE 1=1`
	var args []any

	if filter.Locality != "" {
		query += ` AND l.name = ?`
		args = append(args, filter.Locality)
	}
	query += ` ORDER BY a.id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list addresses")
	}
	defer rows.Close()

	var addrs []model.Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan address")
		}
		addrs = append(addrs, *a)
	}
	return addrs, eris.Wrap(rows.Err(), "sqlite: list addresses iterate")
}
