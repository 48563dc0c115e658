package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"bookscape/internal/app"
	"bookscape/internal/config"
	"bookscape/internal/ingest"
	"bookscape/internal/logger"
	"bookscape/internal/storage/books"
	"bookscape/internal/storage/reports"
)

var validate = validator.New()

// CLI is the complete command structure of bookscape
type CLI struct {
	Config string `help:"Path to the YAML config file" type:"existingfile"`

	Search   SearchCmd   `cmd:"" help:"Search the catalog and store every result"`
	Advanced AdvancedCmd `cmd:"" help:"Search with field qualifiers, store results passing the rating and page bounds"`
	Filter   FilterCmd   `cmd:"" help:"Query stored books"`
	Reports  ReportsCmd  `cmd:"" help:"List the predefined reports"`
	Report   ReportCmd   `cmd:"" help:"Run a predefined report by number or slug"`
	Stats    StatsCmd    `cmd:"" help:"Summarize the books table"`
	Failures FailuresCmd `cmd:"" help:"Show the most recent ingestion failures"`
}

// env is bound into every Run method.
type env struct {
	ctx  context.Context
	out  io.Writer
	open func(ctx context.Context) (*app.App, error)
}

type SearchCmd struct {
	Query      string `arg:"" help:"Free text search query"`
	MaxResults int    `short:"n" help:"Number of results to request (1-40)" default:"10"`
	DryRun     bool   `help:"Log normalized records instead of storing them"`
}

type AdvancedCmd struct {
	Title     string  `help:"Words of the title"`
	Author    string  `help:"Author name"`
	Genre     string  `help:"Subject or category"`
	Year      string  `help:"Publication year (YYYY)"`
	MinRating float64 `help:"Minimum average rating" default:"0"`
	MinPages  int     `help:"Minimum page count" default:"0"`
	DryRun    bool    `help:"Log normalized records instead of storing them"`
}

type FilterCmd struct {
	Title     string  `help:"Title substring"`
	Author    string  `help:"Author substring"`
	Genre     string  `help:"Category substring"`
	Year      string  `help:"Exact publication year"`
	MinRating float64 `help:"Minimum average rating" default:"0"`
	MinPages  int     `help:"Minimum page count" default:"0"`
	Limit     int     `help:"Maximum number of books returned" default:"50"`
}

type ReportsCmd struct{}

type ReportCmd struct {
	Key string `arg:"" help:"Report number (1-20) or slug"`
	CSV bool   `help:"Export to book_query_<slug>.csv instead of printing JSON"`
	Dir string `help:"Directory the CSV export is written to" default:"." type:"path"`
}

type StatsCmd struct{}

type FailuresCmd struct {
	Limit int `help:"Maximum number of failures shown" default:"100"`
}

func (c *SearchCmd) Run(e *env) error {
	a, err := e.open(e.ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Pipeline(c.DryRun).Search(e.ctx, c.Query, c.MaxResults)
	if err != nil {
		return err
	}

	return printJson(e.out, res)
}

func (c *AdvancedCmd) request() ingest.AdvancedRequest {
	return ingest.AdvancedRequest{
		Title:     c.Title,
		Author:    c.Author,
		Genre:     c.Genre,
		Year:      c.Year,
		MinRating: c.MinRating,
		MinPages:  c.MinPages,
	}
}

func (c *AdvancedCmd) Run(e *env) error {
	req := c.request()
	if err := validate.Struct(&req); err != nil {
		return fmt.Errorf("invalid search: %w", err)
	}

	a, err := e.open(e.ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Pipeline(c.DryRun).Advanced(e.ctx, req)
	if err != nil {
		return err
	}

	return printJson(e.out, res)
}

func (c *FilterCmd) Run(e *env) error {
	a, err := e.open(e.ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.Books.Query(e.ctx, books.Filter{
		Title:     c.Title,
		Author:    c.Author,
		Genre:     c.Genre,
		Year:      c.Year,
		MinRating: c.MinRating,
		MinPages:  c.MinPages,
		Limit:     c.Limit,
	})
	if err != nil {
		return err
	}

	return printJson(e.out, rows)
}

func (c *ReportsCmd) Run(e *env) error {
	for _, r := range reports.Catalog {
		if _, err := fmt.Fprintf(e.out, "%2d  %-26s %s\n", r.Id, r.Slug, r.Title); err != nil {
			return err
		}
	}
	return nil
}

func (c *ReportCmd) Run(e *env) error {
	report, err := reports.Lookup(c.Key)
	if err != nil {
		return err
	}

	a, err := e.open(e.ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tbl, err := a.Reports.Run(e.ctx, report.Slug)
	if err != nil {
		return err
	}

	if !c.CSV {
		return printJson(e.out, tbl)
	}

	name := filepath.Join(c.Dir, report.FileName())
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}

	if err = tbl.WriteCSV(f); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}

	_, err = fmt.Fprintln(e.out, "Wrote "+strconv.Itoa(len(tbl.Rows))+" rows to "+name)
	return err
}

func (c *StatsCmd) Run(e *env) error {
	a, err := e.open(e.ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	totals, err := a.Reports.Totals(e.ctx)
	if err != nil {
		return err
	}

	return printJson(e.out, totals)
}

func (c *FailuresCmd) Run(e *env) error {
	a, err := e.open(e.ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.Fails.GetFails(e.ctx, c.Limit)
	if err != nil {
		return err
	}

	return printJson(e.out, rows)
}

func printJson(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}

func parser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("bookscape"),
		kong.Description("Import book metadata from Google Books into PostgreSQL and report on it."),
		kong.UsageOnError(),
	}, options...)

	return kong.New(cli, options...)
}

// Execute runs the Kong-based CLI
func Execute() {
	_, thisFile, _, _ := runtime.Caller(0)

	var cli CLI
	k, err := parser(&cli)
	if err != nil {
		panic(err)
	}

	kctx, err := k.Parse(os.Args[1:])
	k.FatalIfErrorf(err)

	if cli.Config != "" {
		_ = os.Setenv(config.PathEnvVar, cli.Config)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config: " + err.Error())
		os.Exit(1)
	}

	err = logger.SetupSLog(cfg.Logging, os.Stderr, path.Dir(path.Dir(path.Dir(thisFile))), nil)
	if err != nil {
		slog.Error("Failed to set up logging: " + err.Error())
		os.Exit(1)
	}

	e := &env{
		ctx: context.Background(),
		out: os.Stdout,
		open: func(ctx context.Context) (*app.App, error) {
			return app.Open(ctx, cfg, slog.Default())
		},
	}

	if err = kctx.Run(e); err != nil {
		slog.Error("Command failed: " + err.Error())
		os.Exit(1)
	}
}
