package main

import (
	"database/sql"
	"flag"

	_ "modernc.org/sqlite"

	"github.com/gristlabs/gristmux/src/engine/apply"
	"github.com/gristlabs/gristmux/src/engine/query"
	"github.com/gristlabs/gristmux/src/engineconfig"
	"github.com/gristlabs/gristmux/src/enginelog"
	"github.com/gristlabs/gristmux/src/pool"
)

// storeFlags are the --db/--verbose flags shared by every subcommand that
// talks to a store.
type storeFlags struct {
	db      *string
	verbose *bool
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		db:      fs.String("db", ":memory:", "SQLite database path (or :memory:)"),
		verbose: fs.Bool("verbose", false, "Log store activity to stderr"),
	}
}

// openPool opens the sqlite database named by path and wraps it in a Pool
// of at most 4 handles that fails fast when exhausted, ready for
// Acquire/WithHandle. Grounded on the
// driver.NewDriver's dial-and-wrap (src/driver/driver.go),
// generalized from a Bolt socket dial to an embedded database/sql handle.
func openPool(path string, verbose bool) (*pool.Pool, func() error, error) {
	dsn := path
	if dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(4)

	var logger enginelog.Logger = &enginelog.NoOpLogger{}
	if verbose {
		logger = enginelog.NewConsoleLogger(enginelog.LevelDebug)
	}

	applier := apply.NewApplier(apply.DefaultMaxSmallActionRowIDs)
	broadcaster := query.NewBroadcaster()
	factory := func() *query.Engine {
		return query.NewEngine(db, applier, broadcaster, query.WithLogger(logger))
	}

	cfg := &engineconfig.PoolConfig{MaxConnections: 4, AcquisitionTimeout: 0}
	p := pool.New(factory, cfg, logger, nil, nil)
	return p, db.Close, nil
}
