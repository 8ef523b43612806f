// Command storefront runs the products, orders and database services in one
// process over the in-process bus, each on its own port.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/storefront/internal/bootstrap"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Bus.Driver = config.DriverMemory

	app, err := bootstrap.NewFromConfig(ctx, cfg, "storefront", "storefront", os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	err = app.Run(ctx, app.Products(), app.Orders(), app.Database())
	app.Close()
	if err != nil {
		app.Logger.Error().Err(err).Msg("Storefront failed")
		os.Exit(1)
	}
}
