package main

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/JGnft17/clawtographer/internal/config"
	"github.com/JGnft17/clawtographer/internal/db"
	"github.com/JGnft17/clawtographer/internal/errors"
	"github.com/JGnft17/clawtographer/internal/logging"
	"github.com/JGnft17/clawtographer/internal/mcp"
	"github.com/JGnft17/clawtographer/internal/ops"
	"github.com/JGnft17/clawtographer/internal/provider"
	"github.com/JGnft17/clawtographer/internal/web"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// env is the process state shared by every command.
type env struct {
	baseDir string
	db      *sql.DB
	stderr  io.Writer

	// candidates and now replace the configured providers and clock in tests.
	candidates []provider.Candidate
	now        func() time.Time
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e *env) *cli.App {
	if e == nil {
		e = &env{}
	}
	app := &cli.App{
		Name:    "clawtographer",
		Usage:   "Map a codebase with a local LLM",
		Version: Version,
		Commands: []*cli.Command{
			mapCmd(e),
			planCmd(e),
			statusCmd(e),
			runsCmd(e),
			runCmd(e),
			entryCmd(e),
			entriesCmd(e),
			purgeCmd(e),
			serveCmd(e),
			mcpCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// commonFlags are accepted by every command that loads configuration.
func commonFlags(extra ...cli.Flag) []cli.Flag {
	return append(extra,
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Extra config file (JSON or YAML) applied after global and repo config"},
		&cli.BoolFlag{Name: "verbose", Usage: "Debug logging"},
	)
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: formatJSON, Usage: "Output format: json|table"}
}

// deps loads the layered config for startDir and builds the operation handle.
// Layers: defaults, global, nearest repo config, --config, flags.
func (e *env) deps(c *cli.Context, startDir string) (*ops.Deps, error) {
	if e.db == nil {
		return nil, errors.NewInternal(fmt.Errorf("state directory not initialized"))
	}

	cfg, err := config.LoadWithRepo(e.baseDir, startDir)
	if err != nil {
		return nil, configError(err)
	}
	if path := c.String("config"); path != "" {
		file, err := config.LoadFile(path)
		if err != nil {
			return nil, configError(err)
		}
		cfg = config.Merge(cfg, file)
	}
	if c.Bool("verbose") {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logging.New(e.stderr, cfg.LogLevel, cfg.LogFormat)
	db.ConfigurePool(e.db, cfg)

	store, err := ops.OpenStore(cfg, e.db, e.baseDir)
	if err != nil {
		return nil, err
	}

	return &ops.Deps{
		DB:         e.db,
		Config:     cfg,
		Store:      store,
		Candidates: e.candidates,
		BaseDir:    e.baseDir,
		Logger:     log,
		Now:        e.now,
	}, nil
}

func configError(err error) error {
	var cErr *errors.CartoError
	if stderrors.As(err, &cErr) {
		return err
	}
	return errors.NewInvalidRequest(fmt.Sprintf("invalid config: %v", err))
}

// cwd is the start directory for repo config when a command has no target.
func cwd() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return dir
}

func absDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

// mapCmd creates the map command.
func mapCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "map",
		Usage:     "Analyze a directory and write CODEBASE_MAP.md",
		ArgsUsage: "<dir> [output_dir]",
		Flags: commonFlags(
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: ops.DefaultOutputDir, Usage: "Output directory (relative to the current directory)"},
			&cli.IntFlag{Name: "parallel", Aliases: []string{"p"}, Usage: "Maximum concurrent model calls (default: max_parallel_agents)"},
			&cli.BoolFlag{Name: "no-synthesis", Usage: "Concatenate chunk analyses instead of asking the model for an overview"},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("directory is required"))
			}
			root := c.Args().Get(0)
			outDir := c.String("output")
			if c.NArg() > 1 {
				outDir = c.Args().Get(1)
			}
			if c.Int("parallel") < 0 {
				return outputError(errors.NewInvalidRequest("--parallel must not be negative"))
			}

			d, err := e.deps(c, absDir(root))
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Map(c.Context, d, ops.MapInput{
				Root:        root,
				OutputDir:   outDir,
				NoSynthesis: c.Bool("no-synthesis"),
				Parallel:    c.Int("parallel"),
				Rerun:       rerunCommand(root, outDir),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// rerunCommand is the command line printed in the report footer.
func rerunCommand(root, outDir string) string {
	cmd := "clawtographer " + root
	if outDir != "" && outDir != ops.DefaultOutputDir {
		cmd += " " + outDir
	}
	return cmd
}

// planCmd creates the plan command.
func planCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Show how a directory would be chunked, without calling a model",
		ArgsUsage: "<dir>",
		Flags: commonFlags(
			formatFlag(),
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: ops.DefaultOutputDir, Usage: "Output directory excluded from the scan"},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("directory is required"))
			}
			format, err := parseFormat(c)
			if err != nil {
				return outputError(err)
			}
			root := c.Args().First()

			d, err := e.deps(c, absDir(root))
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Plan(c.Context, d, ops.PlanInput{Root: root, OutputDir: c.String("output")})
			if err != nil {
				return outputError(err)
			}

			if format == formatTable {
				return renderPlanTable(c.App.Writer, output)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Count cached, failed and missing chunks for a directory",
		ArgsUsage: "<dir>",
		Flags: commonFlags(
			formatFlag(),
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: ops.DefaultOutputDir, Usage: "Output directory excluded from the scan"},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("directory is required"))
			}
			format, err := parseFormat(c)
			if err != nil {
				return outputError(err)
			}
			root := c.Args().First()

			d, err := e.deps(c, absDir(root))
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Status(c.Context, d, ops.StatusInput{Root: root, OutputDir: c.String("output")})
			if err != nil {
				return outputError(err)
			}

			if format == formatTable {
				return renderStatusTable(c.App.Writer, output)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// runsCmd creates the runs command.
func runsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recorded map runs, most recent first",
		Flags: commonFlags(
			formatFlag(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum results"},
			&cli.IntFlag{Name: "offset", Usage: "Skip first N results"},
		),
		Action: func(c *cli.Context) error {
			format, err := parseFormat(c)
			if err != nil {
				return outputError(err)
			}
			d, err := e.deps(c, cwd())
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Runs(c.Context, d, ops.RunsInput{Limit: c.Int("limit"), Offset: c.Int("offset")})
			if err != nil {
				return outputError(err)
			}

			if format == formatTable {
				return renderRunsTable(c.App.Writer, output, d.Now)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// runCmd creates the run command.
func runCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Show one map run with its chunks",
		ArgsUsage: "<id>",
		Flags:     commonFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("run id is required"))
			}
			d, err := e.deps(c, cwd())
			if err != nil {
				return outputError(err)
			}

			output, err := ops.RunDetail(c.Context, d, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// entryCmd creates the entry command.
func entryCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "entry",
		Usage:     "Show one cached chunk analysis",
		ArgsUsage: "<identity>",
		Flags: commonFlags(
			&cli.BoolFlag{Name: "raw", Usage: "Print only the analysis markdown"},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("identity is required"))
			}
			d, err := e.deps(c, cwd())
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Entry(c.Context, d, c.Args().First())
			if err != nil {
				return outputError(err)
			}

			if c.Bool("raw") {
				_, err := fmt.Fprintln(c.App.Writer, output.Analysis)
				return err
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// entriesCmd creates the entries command.
func entriesCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "entries",
		Usage: "List cache entries",
		Flags: commonFlags(
			formatFlag(),
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status: pending|complete|failed"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum results"},
			&cli.IntFlag{Name: "offset", Usage: "Skip first N results"},
		),
		Action: func(c *cli.Context) error {
			format, err := parseFormat(c)
			if err != nil {
				return outputError(err)
			}
			d, err := e.deps(c, cwd())
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Entries(c.Context, d, ops.EntriesInput{
				Status: c.String("status"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			if format == formatTable {
				return renderEntriesTable(c.App.Writer, output, d.Now)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete cache entries",
		Flags: commonFlags(
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Only entries with this status: pending|complete|failed"},
			&cli.StringFlag{Name: "older-than", Usage: "Only entries last updated longer ago than this (e.g., 7d, 12h)"},
		),
		Action: func(c *cli.Context) error {
			age, err := ops.ParseAge(c.String("older-than"))
			if err != nil {
				return outputError(err)
			}
			d, err := e.deps(c, cwd())
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Purge(c.Context, d, ops.PurgeInput{Status: c.String("status"), OlderThan: age})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the read-only web viewer for runs and cached analyses",
		Flags: commonFlags(
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 7420, Usage: "Port to listen on"},
		),
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			if port < 0 || port > 65535 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid port %d", port)))
			}
			d, err := e.deps(c, cwd())
			if err != nil {
				return outputError(err)
			}

			srv := web.NewServer(d, Version, c.String("bind"), port)
			if err := web.Run(c.Context, srv, d.Logger); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio (default when stdin is piped)",
		Flags: commonFlags(),
		Action: func(c *cli.Context) error {
			d, err := e.deps(c, cwd())
			if err != nil {
				return outputError(err)
			}
			if unknown := mcp.ValidateDisabledTools(d.Config.DisabledTools); len(unknown) > 0 {
				d.Logger.Warn("unknown tools in disabled_tools", "tools", strings.Join(unknown, ", "))
			}
			if err := mcp.Run(c.Context, d, Version); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI as "[CODE] message".
func outputError(err error) error {
	if stderrors.Is(err, context.Canceled) {
		return cli.Exit("[CANCELLED] interrupted; finished chunks are cached, re-run to resume", 1)
	}
	var cErr *errors.CartoError
	if stderrors.As(err, &cErr) {
		msg := cErr.Message
		if err != error(cErr) {
			msg = err.Error()
		}
		return cli.Exit(fmt.Sprintf("[%s] %s", cErr.Code, msg), 1)
	}
	return cli.Exit(err.Error(), 1)
}

func parseFormat(c *cli.Context) (string, error) {
	switch f := strings.ToLower(c.String("format")); f {
	case "", formatJSON:
		return formatJSON, nil
	case formatTable:
		return formatTable, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (want json or table)", f))
	}
}

func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	return tbl
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func renderPlanTable(w io.Writer, p *ops.PlanOutput) error {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"#", "Identity", "Files", "Tokens", "Cache", "First file"})
	for _, ch := range p.Chunks {
		first := ""
		if len(ch.Files) > 0 {
			first = ch.Files[0]
		}
		tokens := humanize.Comma(int64(ch.Tokens))
		if ch.Oversized {
			tokens += " (oversized)"
		}
		tbl.AppendRow(table.Row{ch.Index + 1, shortID(ch.Identity), len(ch.Files), tokens, ch.Status, first})
	}
	tbl.AppendFooter(table.Row{"", "", p.FileCount, humanize.Comma(int64(p.TotalTokens)), "", fmt.Sprintf("ceiling %s (%s)", humanize.Comma(int64(p.Ceiling)), p.Estimator)})
	tbl.Render()

	if len(p.Skipped) > 0 {
		fmt.Fprintf(w, "\n%d skipped:\n", len(p.Skipped))
		for _, s := range p.Skipped {
			fmt.Fprintf(w, "  %s [%s] %s\n", s.Path, s.Code, s.Reason)
		}
	}
	return nil
}

func renderStatusTable(w io.Writer, s *ops.StatusOutput) error {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Status", "Chunks"})
	tbl.AppendRows([]table.Row{
		{"complete", s.Complete},
		{"failed", s.Failed},
		{"pending", s.Pending},
		{ops.StatusMissing, s.Missing},
	})
	tbl.AppendFooter(table.Row{"model calls needed", s.Calls})
	tbl.Render()
	fmt.Fprintf(w, "%s (%s cache)\n", s.Root, s.Backend)
	return nil
}

func renderRunsTable(w io.Writer, r *ops.RunsOutput, now func() time.Time) error {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Run", "Started", "Status", "Chunks", "Cached", "Analyzed", "Failed", "Root"})
	for _, run := range r.Items {
		tbl.AppendRow(table.Row{run.ID, ago(run.StartedAt, now), run.Status, run.ChunkCount, run.Cached, run.Analyzed, run.Failed, run.Root})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%d of %d", len(r.Items), r.Pagination.Total)})
	tbl.Render()
	return nil
}

func renderEntriesTable(w io.Writer, r *ops.EntriesOutput, now func() time.Time) error {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Identity", "Status", "Files", "Tokens", "Attempts", "Updated"})
	for _, e := range r.Items {
		status := string(e.Status)
		if e.ErrorCode != "" {
			status += " " + e.ErrorCode
		}
		tbl.AppendRow(table.Row{shortID(e.Identity), status, e.FileCount, humanize.Comma(int64(e.TokensEstimate)), e.Attempts, ago(e.UpdatedAt, now)})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%d of %d", len(r.Items), r.Pagination.Total)})
	tbl.Render()
	return nil
}

func ago(unix int64, now func() time.Time) string {
	if now == nil {
		now = time.Now
	}
	return humanize.RelTime(time.Unix(unix, 0), now(), "ago", "from now")
}
