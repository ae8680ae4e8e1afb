package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/JGnft17/clawtographer/internal/config"
	"github.com/JGnft17/clawtographer/internal/db"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"map": true, "plan": true, "status": true,
	"runs": true, "run": true, "entry": true, "entries": true,
	"purge": true, "serve": true, "mcp": true,
	"help": true, "h": true,
}

type mode int

const (
	modeMCP mode = iota
	modeCLI
	modeMapDir // first argument is a directory: shorthand for "map <dir>"
	modeBanner
	modeUnknown
)

// detectMode decides between CLI, MCP server and the directory shorthand.
// With no arguments, piped stdin means an MCP client is attached.
func detectMode(args []string, interactive bool) mode {
	if len(args) < 2 {
		if interactive {
			return modeBanner
		}
		return modeMCP
	}
	arg := args[1]
	if cliCommands[arg] || isHelpOrVersion(args) {
		return modeCLI
	}
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return modeMapDir
	}
	if interactive {
		return modeUnknown
	}
	return modeMCP
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// stateDir returns ~/.clawtographer, or $CLAWTOGRAPHER_HOME when set.
func stateDir() (string, error) {
	if dir := os.Getenv("CLAWTOGRAPHER_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, config.DirName), nil
}

func printBanner(w io.Writer) {
	fmt.Fprintln(w, `
       _                _
   ___| | __ ___      _| |_ ___   __ _ _ __ __ _ _ __ | |__   ___ _ __
  / __| |/ _' \ \ /\ / / __/ _ \ / _' | '__/ _' | '_ \| '_ \ / _ \ '__|
 | (__| | (_| |\ V  V /| || (_) | (_| | | | (_| | |_) | | | |  __/ |
  \___|_|\__,_| \_/\_/  \__\___/ \__, |_|  \__,_| .__/|_| |_|\___|_|
                                 |___/          |_|

  Map a codebase with a local LLM

  Usage: clawtographer <dir> [output_dir]
         clawtographer <command> [options]
         clawtographer --help

  MCP server mode requires piped input.`)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	m := detectMode(args, isTerminal())

	switch m {
	case modeBanner:
		printBanner(os.Stdout)
		return 0
	case modeUnknown:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", args[1])
		fmt.Fprintf(os.Stderr, "Run 'clawtographer --help' for usage.\n")
		return 1
	case modeMapDir:
		args = append([]string{args[0], "map"}, args[1:]...)
	}

	// Help and version need no state directory.
	if isHelpOrVersion(args) {
		if err := newCLIApp(nil).RunContext(ctx, args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	baseDir, err := stateDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		return 1
	}
	defer database.Close()

	e := &env{baseDir: baseDir, db: database, stderr: os.Stderr}

	if m == modeMCP {
		args = []string{args[0], "mcp"}
	}

	if err := newCLIApp(e).RunContext(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
