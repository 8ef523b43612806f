package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/storefront/internal/bootstrap"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "database", "storefront_database")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	err = app.Run(ctx, app.Database())
	app.Close()
	if err != nil {
		app.Logger.Error().Err(err).Msg("Service failed")
		os.Exit(1)
	}
}
