package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/case-digest/digest"
	"github.com/theimaginaryfoundation/case-digest/digest/provider"
)

const (
	sourceFile      = "file"
	sourceWarehouse = "warehouse"
)

type Config struct {
	Source          string
	InPath          string
	Query           string
	SaveQueryOutput string
	OutPath         string

	Skip     string
	SkipFile string

	ReportPath   string
	ReportSchema bool
	FailOnError  bool

	Backend            string
	BaseURL            string
	Model              string
	APIKey             string
	Timeout            time.Duration
	InsecureSkipVerify bool

	Budget    int
	MaxChunks int
	Retries   int
	Backoff   time.Duration
	Pace      time.Duration
	Product   string

	LogLevel  string
	LogFormat string

	WarehouseDSN string
	Insert       bool
}

func (c Config) Validate() error {
	switch c.Source {
	case sourceFile:
		if c.InPath == "" {
			return errors.New("missing -in")
		}
	case sourceWarehouse:
		if strings.TrimSpace(c.Query) == "" {
			return errors.New("missing -query (required with -source warehouse)")
		}
	default:
		return errors.New("source must be file or warehouse")
	}
	if c.OutPath == "" {
		return errors.New("missing -out")
	}
	if c.BaseURL == "" {
		return errors.New("missing -base-url (or LLAMA_BASE_URL)")
	}
	if c.Model == "" {
		return errors.New("missing -model (or LLAMA_MODEL)")
	}
	if c.Budget < 2 {
		return errors.New("budget must be >= 2")
	}
	if c.MaxChunks <= 0 {
		return errors.New("max-chunks must be > 0")
	}
	if c.Retries <= 0 {
		return errors.New("retries must be > 0")
	}
	if c.Backoff < 0 || c.Pace < 0 {
		return errors.New("backoff and pace must be >= 0")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Source:          sourceFile,
		InPath:          filepath.FromSlash("customer_data/query_output.csv"),
		SaveQueryOutput: filepath.FromSlash("customer_data/query_output.csv"),
		OutPath:         filepath.FromSlash("customer_data/incremental.csv"),
		Backend:         provider.BackendOpenAI,
		Timeout:         provider.DefaultTimeout,
		Budget:          digest.DefaultBudget,
		MaxChunks:       digest.DefaultMaxChunks,
		Retries:         provider.DefaultAttempts,
		Backoff:         provider.DefaultBackoff,
		Pace:            digest.DefaultPace,
		Product:         "Cloudera",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.Source, "source", cfg.Source, "Where case rows come from: file or warehouse")
	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Case CSV with customer, case_description, case_creation_date columns (-source file)")
	fs.StringVar(&cfg.Query, "query", "", "SQL returning the case columns (-source warehouse)")
	fs.StringVar(&cfg.SaveQueryOutput, "save-query-output", cfg.SaveQueryOutput, "Save fetched warehouse rows as CSV here (empty disables)")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Pipe-delimited summary file, appended one row per customer")
	fs.StringVar(&cfg.Skip, "skip", "", "Comma-separated customers to skip")
	fs.StringVar(&cfg.SkipFile, "skip-file", "", "File of customers to skip, one per line (# comments allowed)")
	fs.StringVar(&cfg.ReportPath, "report", "", "Optional path for the JSON run report")
	fs.BoolVar(&cfg.ReportSchema, "report-schema", false, "Print the run report JSON Schema and exit")
	fs.BoolVar(&cfg.FailOnError, "fail-on-error", false, "Exit 1 when any customer failed")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Model client: openai or go-openai")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "OpenAI-compatible API root, e.g. https://llm.example.com/v1 (overrides LLAMA_BASE_URL)")
	fs.StringVar(&cfg.Model, "model", "", "Model name (overrides LLAMA_MODEL)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key (overrides LLAMA_API_KEY env var)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	fs.BoolVar(&cfg.InsecureSkipVerify, "insecure-skip-verify", false, "Disable TLS certificate verification for the model endpoint")
	fs.IntVar(&cfg.Budget, "budget", cfg.Budget, "Chunk budget in approximate characters (sub-chunks use half)")
	fs.IntVar(&cfg.MaxChunks, "max-chunks", cfg.MaxChunks, "Skip sub-chunk recovery above this many chunks")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Attempts per model request")
	fs.DurationVar(&cfg.Backoff, "backoff", cfg.Backoff, "Base backoff, doubled per attempt")
	fs.DurationVar(&cfg.Pace, "pace", cfg.Pace, "Pause between customers")
	fs.StringVar(&cfg.Product, "product", cfg.Product, "Product family named in the use-case, component and sales prompts")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	fs.StringVar(&cfg.WarehouseDSN, "warehouse-dsn", "", "Warehouse DSN (overrides WAREHOUSE_DSN / WAREHOUSE_HOST...)")
	fs.BoolVar(&cfg.Insert, "insert", false, "Also insert each summary row into the warehouse table")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutPath = filepath.Clean(cfg.OutPath)
	if cfg.SaveQueryOutput != "" {
		cfg.SaveQueryOutput = filepath.Clean(cfg.SaveQueryOutput)
	}
	if cfg.ReportPath != "" {
		cfg.ReportPath = filepath.Clean(cfg.ReportPath)
	}
	return cfg, nil
}

// applyEnv fills endpoint settings the flags left empty.
func applyEnv(cfg *Config, getenv func(string) string) {
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(getenv("LLAMA_API_KEY"))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = strings.TrimSpace(getenv("LLAMA_BASE_URL"))
	}
	if cfg.Model == "" {
		cfg.Model = strings.TrimSpace(getenv("LLAMA_MODEL"))
	}
}

func (c Config) needsWarehouse() bool {
	return c.Source == sourceWarehouse || c.Insert
}
