package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
)

type Config struct {
	InPath       string
	WarehouseDSN string
	EnsureTable  bool

	LogLevel  string
	LogFormat string
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath:      filepath.FromSlash("customer_data/incremental.csv"),
		EnsureTable: true,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Pipe-delimited summary file written by customer-summarizer")
	fs.StringVar(&cfg.WarehouseDSN, "warehouse-dsn", "", "Warehouse DSN (overrides WAREHOUSE_DSN / WAREHOUSE_HOST...)")
	fs.BoolVar(&cfg.EnsureTable, "ensure-table", cfg.EnsureTable, "Create the summary table before loading")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InPath = filepath.Clean(cfg.InPath)
	return cfg, nil
}
