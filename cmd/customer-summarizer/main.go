package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/theimaginaryfoundation/case-digest/digest"
	"github.com/theimaginaryfoundation/case-digest/digest/fileutils"
	"github.com/theimaginaryfoundation/case-digest/digest/provider"
	"github.com/theimaginaryfoundation/case-digest/digest/warehouse"
)

func main() {
	_ = godotenv.Load()

	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if cfg.ReportSchema {
		if err := writeReportSchema(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		return
	}

	applyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "missing LLAMA_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	logger, err := digest.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, logger, os.Stdout)
	stop()
	os.Exit(code)
}

// run executes one batch and returns the process exit code.
func run(ctx context.Context, cfg Config, logger *slog.Logger, stdout io.Writer) int {
	skip, err := loadSkipList(cfg.Skip, cfg.SkipFile)
	if err != nil {
		logger.Error("skip list", "error", err.Error())
		return 2
	}

	backend, err := provider.NewBackend(cfg.Backend, provider.Endpoint{
		BaseURL:            cfg.BaseURL,
		Model:              cfg.Model,
		APIKey:             cfg.APIKey,
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		logger.Error("model backend", "error", err.Error())
		return 2
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("TLS certificate verification is disabled for the model endpoint", "base_url", cfg.BaseURL)
	}

	var wh *warehouse.Warehouse
	if cfg.needsWarehouse() {
		dsn := cfg.WarehouseDSN
		if dsn == "" {
			if dsn, err = warehouse.DSNFromEnv(os.Getenv); err != nil {
				logger.Error("warehouse", "error", err.Error())
				return 2
			}
		}
		if wh, err = warehouse.Open(dsn, logger); err != nil {
			logger.Error("warehouse", "error", err.Error())
			return 2
		}
		defer wh.Close()
		if err := wh.Ping(ctx); err != nil {
			logger.Error("warehouse", "error", err.Error())
			return 1
		}
	}

	rows, err := loadCases(ctx, cfg, wh)
	if err != nil {
		logger.Error("load cases", "error", err.Error())
		return 1
	}
	customers := digest.GroupByCustomer(rows)
	logger.Info("loaded cases", "rows", len(rows), "customers", len(customers), "source", cfg.Source)

	var sink digest.RecordSink = digest.FileSink{Path: cfg.OutPath}
	if cfg.Insert {
		if err := wh.EnsureTable(ctx); err != nil {
			logger.Error("ensure table", "error", err.Error())
			return 1
		}
		sink = digest.MultiSink{sink, wh}
	}

	policy := provider.DefaultRetryPolicy()
	policy.Attempts = cfg.Retries
	policy.Backoff = cfg.Backoff
	client := provider.NewClient(backend, policy, logger.With("component", "provider"))

	summarizer := digest.NewSummarizer(client, logger.With("component", "summarizer"))
	summarizer.MaxChunks = cfg.MaxChunks

	p := &digest.Processor{
		Summarizer: summarizer,
		Prompts:    casePrompts{product: cfg.Product},
		Sink:       sink,
		Skip:       skip,
		Budget:     cfg.Budget,
		Pace:       cfg.Pace,
		Logger:     logger.With("component", "batch"),
	}
	rep, runErr := p.Run(ctx, customers)

	if cfg.ReportPath != "" {
		if err := fileutils.WriteJSONFileAtomic(cfg.ReportPath, rep, true); err != nil {
			logger.Error("write report", "error", err.Error())
			return 1
		}
	}
	fmt.Fprintf(stdout, "customers_total=%d succeeded=%d failed=%d skipped=%d out=%s\n", rep.Total, rep.Succeeded, rep.Failed, rep.Skipped, cfg.OutPath)

	if runErr != nil {
		logger.Error("batch stopped", "error", runErr.Error())
		return 1
	}
	if cfg.FailOnError && rep.Failed > 0 {
		return 1
	}
	return 0
}

func loadCases(ctx context.Context, cfg Config, wh *warehouse.Warehouse) ([]digest.CaseRow, error) {
	if cfg.Source == sourceFile {
		return digest.ReadCasesFile(cfg.InPath)
	}
	if wh == nil {
		return nil, errors.New("warehouse source requires a warehouse connection")
	}
	h, err := wh.FetchRows(ctx, cfg.Query)
	if err != nil {
		return nil, err
	}
	if cfg.SaveQueryOutput != "" {
		if err := fileutils.WriteHeaderRows(cfg.SaveQueryOutput, h.Header, h.Rows); err != nil {
			return nil, fmt.Errorf("save query output: %w", err)
		}
	}
	return digest.CaseRowsFromTable(h)
}

// loadSkipList merges a comma-separated list with a file of one customer per line.
func loadSkipList(list, path string) (digest.SkipList, error) {
	names := strings.Split(list, ",")
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("read skip-file: %w", err)
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			names = append(names, line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read skip-file: %w", err)
		}
	}
	return digest.NewSkipList(names...), nil
}

func writeReportSchema(w io.Writer) error {
	schema, err := provider.GenerateSchema[digest.Report]()
	if err != nil {
		return fmt.Errorf("report schema: %w", err)
	}
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
