package main

import (
	"errors"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/config"
	"github.com/Rrens/onboarding-sync/internal/logging"
	"github.com/Rrens/onboarding-sync/internal/repository/postgres"
)

// options is the root command; the struct tags are read by go-flags
type options struct {
	Source string      `long:"source" description:"Migration source URL (defaults to migrations.source)"`
	Up     upCommand   `command:"up" description:"Apply all pending migrations"`
	Down   downCommand `command:"down" description:"Revert migrations"`
}

type upCommand struct{}

type downCommand struct {
	Steps int `long:"steps" default:"1" description:"Number of migrations to revert"`
}

var opts options

func (c *upCommand) Execute([]string) error {
	cfg, source, err := load()
	if err != nil {
		return err
	}
	return postgres.RunMigrations(cfg.Database.DSN(), source)
}

func (c *downCommand) Execute([]string) error {
	cfg, source, err := load()
	if err != nil {
		return err
	}
	return postgres.RollbackMigrations(cfg.Database.DSN(), source, c.Steps)
}

func load() (*config.Config, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	if cfg.Database.Driver != "postgres" {
		return nil, "", errors.New("migrations apply to the postgres store only; mongo, mysql and sqlite create their schema on connect")
	}
	if _, err := logging.Setup(cfg.Logging, cfg.IsProduction()); err != nil {
		return nil, "", err
	}
	source := opts.Source
	if source == "" {
		source = cfg.Migrations.Source
	}
	log.Info().Str("host", cfg.Database.Host).Int("port", cfg.Database.Port).Str("source", source).Msg("Connecting to database")
	return cfg, source, nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.Error().Err(err).Msg("Migration failed")
		os.Exit(1)
	}
}
