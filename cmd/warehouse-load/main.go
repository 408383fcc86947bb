package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/theimaginaryfoundation/case-digest/digest"
	"github.com/theimaginaryfoundation/case-digest/digest/warehouse"
)

// loader is the part of *warehouse.Warehouse this tool drives.
type loader interface {
	EnsureTable(ctx context.Context) error
	BulkLoadFile(ctx context.Context, path string) (int, error)
}

func main() {
	_ = godotenv.Load()

	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	logger, err := digest.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	slog.SetDefault(logger)

	dsn := cfg.WarehouseDSN
	if dsn == "" {
		if dsn, err = warehouse.DSNFromEnv(os.Getenv); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
	}
	wh, err := warehouse.Open(dsn, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, wh, logger, os.Stdout)
	stop()
	_ = wh.Close()
	os.Exit(code)
}

func run(ctx context.Context, cfg Config, l loader, logger *slog.Logger, stdout io.Writer) int {
	if cfg.EnsureTable {
		if err := l.EnsureTable(ctx); err != nil {
			logger.Error("ensure table", "error", err.Error())
			return 1
		}
	}
	n, err := l.BulkLoadFile(ctx, cfg.InPath)
	if err != nil {
		logger.Error("bulk load", "in", cfg.InPath, "error", err.Error())
		return 1
	}
	fmt.Fprintf(stdout, "rows_loaded=%d table=%s in=%s\n", n, warehouse.Table, cfg.InPath)
	return 0
}
