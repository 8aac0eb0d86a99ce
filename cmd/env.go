package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/address-cli/internal/canonical"
	"github.com/sells-group/address-cli/internal/resolver"
	"github.com/sells-group/address-cli/internal/store"
	"github.com/sells-group/address-cli/pkg/geocode"
)

// appEnv holds the initialized store and canonicalizer used by the resolve,
// import, serve, and list commands.
type appEnv struct {
	Store    store.Store
	Resolver *resolver.Resolver // nil when geocoding is disabled
	Canon    *canonical.Canonicalizer
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store, geocode client, and canonicalizer.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var res *resolver.Resolver
	switch {
	case cfg.Resolver.Disabled:
		zap.L().Debug("geocoding disabled by config")
	case cfg.Google.APIKey == "":
		_ = st.Close()
		return nil, eris.New("google API key is required (ADDRESS_GOOGLE_API_KEY); set resolver.disabled to run without geocoding")
	default:
		opts := []geocode.Option{geocode.WithRateLimit(cfg.Google.RateLimit)}
		if cfg.Google.BaseURL != "" {
			opts = append(opts, geocode.WithBaseURL(cfg.Google.BaseURL))
		}
		client, err := geocode.NewClient(cfg.Google.APIKey, opts...)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		res = resolver.New(client,
			resolver.WithMinTokens(cfg.Resolver.MinTokens),
			resolver.WithThrottle(time.Duration(cfg.Resolver.ThrottleMS)*time.Millisecond),
		)
	}

	return &appEnv{
		Store:    st,
		Resolver: res,
		Canon:    canonical.New(st, res, cfg.Resolver.Options),
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "addresses.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
