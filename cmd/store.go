package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/store"
)

// initStore opens and migrates the configured run store. It returns nil
// when run history is disabled.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch sc.Driver {
	case "none":
		return nil, nil
	case "sqlite", "":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "keyword.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, sc.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// requireStore is initStore for commands that cannot run without history.
func requireStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	st, err := initStore(ctx, sc)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("run history is disabled (store.driver=none)")
	}
	return st, nil
}
