package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"

	"github.com/onelife/onelife/internal/config"
	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/mcp"
	"github.com/onelife/onelife/internal/settings"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"log": true, "list": true, "get": true, "delete": true,
	"report": true, "export": true, "import": true, "clear": true,
	"settings": true, "serve": true, "chat": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	// Global flags come before the subcommand.
	if arg == "--format" || arg == "-f" || strings.HasPrefix(arg, "--format=") {
		return true
	}
	return isHelpOrVersion()
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
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

func printBanner() {
	fmt.Println(`
   ___             _     _  __
  / _ \ _ __   ___| |   (_)/ _| ___
 | | | | '_ \ / _ \ |   | | |_ / _ \
 | |_| | | | |  __/ |___| |  _|  __/
  \___/|_| |_|\___|_____|_|_|  \___|

  Private life journal: expenses, tasks, mood and health

  Usage: onelife <command> [options]
         onelife --help

  MCP server mode requires piped input.`)
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// --help/--version need no store.
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	os.Exit(run())
}

func run() int {
	baseDir, err := config.Home()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine data directory: %v\n", err)
		return 1
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		return 1
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", slog.Any("tools", unknown))
	}

	opener := db.NewOpener(baseDir, cfg)
	defer opener.Close()

	env := &cliEnv{
		opener: opener,
		prefs:  settings.OpenPrefs(baseDir),
		cfg:    cfg,
		logger: logger,
	}

	if isCLIMode() {
		app := newCLIApp(env)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'onelife --help' for usage.\n")
		return 1
	}

	if err := mcp.Run(env.opener, env.prefs, env.cfg, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
