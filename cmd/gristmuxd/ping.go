package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gristlabs/gristmux/src/pool"
)

// pingCommand opens the store, acquires and releases a single handle, and
// reports OK. Grounded on the cmd/cyq ping command
// (cmd/cyq/ping.go), generalized from dialing a Bolt URL to opening an
// embedded database file.
func pingCommand(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	flags := addStoreFlags(fs)

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return &exitError{code: 0}
		}
		return usageErrorf(2, "%v", err)
	}

	p, closeDB, err := openPool(*flags.db, *flags.verbose)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := p.WithHandle(context.Background(), func(h *pool.Handle) error { return nil }); err != nil {
		return err
	}

	fmt.Println("OK")
	return nil
}
