package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/address-cli/internal/db"
	"github.com/sells-group/address-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS countries (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	code TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS states (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	code       TEXT NOT NULL DEFAULT '',
	country_id BIGINT NOT NULL REFERENCES countries(id) ON DELETE CASCADE,
	UNIQUE (name, country_id)
);

CREATE TABLE IF NOT EXISTS localities (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	postal_code TEXT NOT NULL DEFAULT '',
	state_id    BIGINT NOT NULL REFERENCES states(id) ON DELETE CASCADE,
	UNIQUE (name, postal_code, state_id)
);

CREATE TABLE IF NOT EXISTS addresses (
	id            BIGSERIAL PRIMARY KEY,
	street_number TEXT NOT NULL DEFAULT '',
	route         TEXT NOT NULL DEFAULT '',
	subpremise    TEXT NOT NULL DEFAULT '',
	raw           TEXT NOT NULL CHECK (raw <> ''),
	formatted     TEXT NOT NULL DEFAULT '',
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	locality_id   BIGINT REFERENCES localities(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_states_country ON states(country_id);
CREATE INDEX IF NOT EXISTS idx_localities_state ON localities(state_id);
CREATE INDEX IF NOT EXISTS idx_addresses_raw ON addresses(raw);
CREATE INDEX IF NOT EXISTS idx_addresses_parts ON addresses(street_number, route, subpremise, locality_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) GetOrCreateCountry(ctx context.Context, name, code string) (*model.Country, error) {
	if c, err := s.countryByName(ctx, name); c != nil || err != nil {
		return c, err
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO countries (name, code) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING RETURNING id`,
		name, code,
	).Scan(&id)
	if err == nil {
		return &model.Country{ID: id, Name: name, Code: code}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: insert country %s", name)
	}

	// Lost the race; the row exists now.
	c, err := s.countryByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, eris.Errorf("postgres: country %q missing after conflict", name)
	}
	return c, nil
}

func (s *PostgresStore) countryByName(ctx context.Context, name string) (*model.Country, error) {
	var c model.Country
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, code FROM countries WHERE name = $1`, name,
	).Scan(&c.ID, &c.Name, &c.Code)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get country %s", name)
	}
	return &c, nil
}

func (s *PostgresStore) GetOrCreateState(ctx context.Context, name, code string, countryID int64) (*model.State, error) {
	if st, err := s.stateByKey(ctx, name, countryID); st != nil || err != nil {
		return st, err
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO states (name, code, country_id) VALUES ($1, $2, $3)
		 ON CONFLICT (name, country_id) DO NOTHING RETURNING id`,
		name, code, countryID,
	).Scan(&id)
	if err == nil {
		return s.stateByID(ctx, id)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: insert state %s", name)
	}

	st, err := s.stateByKey(ctx, name, countryID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.Errorf("postgres: state %q missing after conflict", name)
	}
	return st, nil
}

const postgresStateSelect = `
	SELECT s.id, s.name, s.code, c.id, c.name, c.code
	FROM states s JOIN countries c ON c.id = s.country_id`

func (s *PostgresStore) stateByKey(ctx context.Context, name string, countryID int64) (*model.State, error) {
	return s.scanState(s.pool.QueryRow(ctx,
		postgresStateSelect+` WHERE s.name = $1 AND s.country_id = $2`, name, countryID,
	))
}

func (s *PostgresStore) stateByID(ctx context.Context, id int64) (*model.State, error) {
	return s.scanState(s.pool.QueryRow(ctx, postgresStateSelect+` WHERE s.id = $1`, id))
}

func (s *PostgresStore) scanState(row pgx.Row) (*model.State, error) {
	var st model.State
	var c model.Country
	err := row.Scan(&st.ID, &st.Name, &st.Code, &c.ID, &c.Name, &c.Code)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan state")
	}
	st.Country = &c
	return &st, nil
}

func (s *PostgresStore) GetOrCreateLocality(ctx context.Context, name, postalCode string, stateID int64) (*model.Locality, error) {
	if loc, err := s.localityByKey(ctx, name, postalCode, stateID); loc != nil || err != nil {
		return loc, err
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO localities (name, postal_code, state_id) VALUES ($1, $2, $3)
		 ON CONFLICT (name, postal_code, state_id) DO NOTHING RETURNING id`,
		name, postalCode, stateID,
	).Scan(&id)
	if err == nil {
		return s.localityByID(ctx, id)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: insert locality %s", name)
	}

	loc, err := s.localityByKey(ctx, name, postalCode, stateID)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, eris.Errorf("postgres: locality %q missing after conflict", name)
	}
	return loc, nil
}

const postgresLocalitySelect = `
	SELECT l.id, l.name, l.postal_code, s.id, s.name, s.code, c.id, c.name, c.code
	FROM localities l
	JOIN states s ON s.id = l.state_id
	JOIN countries c ON c.id = s.country_id`

func (s *PostgresStore) localityByKey(ctx context.Context, name, postalCode string, stateID int64) (*model.Locality, error) {
	return s.scanLocality(s.pool.QueryRow(ctx,
		postgresLocalitySelect+` WHERE l.name = $1 AND l.postal_code = $2 AND l.state_id = $3`,
		name, postalCode, stateID,
	))
}

func (s *PostgresStore) localityByID(ctx context.Context, id int64) (*model.Locality, error) {
	return s.scanLocality(s.pool.QueryRow(ctx, postgresLocalitySelect+` WHERE l.id = $1`, id))
}

func (s *PostgresStore) scanLocality(row pgx.Row) (*model.Locality, error) {
	var loc model.Locality
	var st model.State
	var c model.Country
	err := row.Scan(&loc.ID, &loc.Name, &loc.PostalCode, &st.ID, &st.Name, &st.Code, &c.ID, &c.Name, &c.Code)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan locality")
	}
	st.Country = &c
	loc.State = &st
	return &loc, nil
}

func (s *PostgresStore) FindAddressByRaw(ctx context.Context, raw string) (*model.Address, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+addressColumns+addressJoins+` WHERE a.raw = $1 ORDER BY a.id LIMIT 1`, raw,
	)
	a, err := scanAddress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find address by raw")
	}
	return a, nil
}

func (s *PostgresStore) FindAddressByParts(ctx context.Context, streetNumber, route, subpremise string, locID *int64) (*model.Address, error) {
	query := `SELECT ` + addressColumns + addressJoins +
		` WHERE a.street_number = $1 AND a.route = $2 AND a.subpremise = $3`
	args := []any{streetNumber, route, subpremise}
	if locID == nil {
		query += ` AND a.locality_id IS NULL`
	} else {
		query += ` AND a.locality_id = $4`
		args = append(args, *locID)
	}
	query += ` ORDER BY a.id LIMIT 1`

	a, err := scanAddress(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find address by parts")
	}
	return a, nil
}

func (s *PostgresStore) CreateAddress(ctx context.Context, addr *model.Address) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO addresses (street_number, route, subpremise, raw, formatted, latitude, longitude, locality_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		addr.StreetNumber, addr.Route, addr.Subpremise, addr.Raw, addr.Formatted,
		addr.Latitude, addr.Longitude, localityID(addr),
	).Scan(&addr.ID)
	return eris.Wrap(err, "postgres: insert address")
}

func (s *PostgresStore) GetAddress(ctx context.Context, id int64) (*model.Address, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+addressColumns+addressJoins+` WHERE a.id = $1`, id,
	)
	a, err := scanAddress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: address not found: %d", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get address")
	}
	return a, nil
}

func (s *PostgresStore) ListAddresses(ctx context.Context, filter AddressFilter) ([]model.Address, error) {
	query := `SELECT ` + addressColumns + addressJoins + ` WHERE 1=1`
	var args []any

	if filter.Locality != "" {
		args = append(args, filter.Locality)
		query += ` AND l.name = $1`
	}
	query += ` ORDER BY a.id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list addresses")
	}
	defer rows.Close()

	var addrs []model.Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan address")
		}
		addrs = append(addrs, *a)
	}
	return addrs, eris.Wrap(rows.Err(), "postgres: list addresses iterate")
}
