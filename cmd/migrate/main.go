package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/medsupply/medsupply-backend/pkg/config"
	"github.com/medsupply/medsupply-backend/pkg/database"
	"github.com/medsupply/medsupply-backend/pkg/logger"
	"github.com/medsupply/medsupply-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|redo|reset|to")
	version := flag.String("version", "", "target version for -cmd=to")
	flag.Parse()

	cfg, err := config.LoadWithValidation("inventory-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("migrate", cfg.Server.Environment, cfg.Server.LogLevel)

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	if *cmd == "to" {
		err = migrate.MigrateToVersion(ctx, db.DB.DB, *version)
	} else {
		err = migrate.Run(ctx, db.DB.DB, *cmd)
	}
	if err != nil {
		log.Fatal().Err(err).Str("cmd", *cmd).Msg("migration failed")
	}

	log.Info().Str("cmd", *cmd).Msg("migration finished")
}
