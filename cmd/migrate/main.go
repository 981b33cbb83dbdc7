package main

import (
	"flag"

	"github.com/zlnvch/easel/config"
	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/store/postgres"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of migrating up")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		logutils.Log.WithError(err).Fatal("failed to load .env")
	}
	cfg, err := config.Load()
	if err != nil {
		logutils.Log.WithError(err).Fatal("failed to load config")
	}
	logutils.SetLevel(cfg.LogLevel)
	if cfg.Database.URL == "" {
		logutils.Log.Fatal("DATABASE_URL is not set")
	}

	if *down > 0 {
		if err := postgres.RollbackMigrations(cfg.Database.URL, *down); err != nil {
			logutils.Log.WithError(err).Fatal("rollback failed")
		}
		logutils.Log.WithField("steps", *down).Info("migrations rolled back")
		return
	}

	if err := postgres.RunMigrations(cfg.Database.URL); err != nil {
		logutils.Log.WithError(err).Fatal("migration failed")
	}
	logutils.Log.Info("migrations applied")
}
