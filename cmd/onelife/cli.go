package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/onelife/onelife/internal/completion"
	"github.com/onelife/onelife/internal/config"
	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/mcp"
	"github.com/onelife/onelife/internal/ops"
	"github.com/onelife/onelife/internal/session"
	"github.com/onelife/onelife/internal/settings"
	"github.com/onelife/onelife/internal/web"
)

// cliEnv is what every command runs against. It is nil for --help and
// --version, which never reach an Action.
type cliEnv struct {
	opener *db.Opener
	prefs  *settings.Prefs
	cfg    *config.Config
	logger *slog.Logger
}

func (e *cliEnv) db(ctx context.Context) (*sql.DB, error) {
	return e.opener.Open(ctx)
}

// newSession builds a chat session. current is read on every completion
// call so a running server picks up settings changed elsewhere.
func (e *cliEnv) newSession(current func() settings.Settings, withCompletion bool) *session.Session {
	opts := session.Options{
		ReportLimit: e.cfg.ReportLimit,
		Logger:      e.logger,
	}
	if withCompletion && !e.cfg.DisableCompletion {
		opts.Completer = completion.NewHTTPClient(current, e.cfg.CompletionTimeout())
	}
	return session.New(e.opener, e.prefs, opts)
}

// loadedSettings returns the stored settings, falling back to defaults.
func (e *cliEnv) loadedSettings() func() settings.Settings {
	return func() settings.Settings {
		s, err := settings.Load(e.prefs)
		if err != nil {
			e.logger.Warn("stored settings unreadable, using defaults", slog.String("error", err.Error()))
		}
		return s
	}
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *cliEnv) *cli.App {
	app := &cli.App{
		Name:    "onelife",
		Usage:   "Private life journal: expenses, tasks, mood and health",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "Output format: json|yaml"},
		},
		Commands: []*cli.Command{
			logCmd(env),
			listCmd(env),
			getCmd(env),
			deleteCmd(env),
			reportCmd(env),
			exportCmd(env),
			importCmd(env),
			clearCmd(env),
			settingsCmd(env),
			chatCmd(env),
			serveCmd(env),
			mcpCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// logCmd creates the log command.
func logCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "log",
		Usage:     "Classify a message and store it as a record (reads stdin when no message is given)",
		ArgsUsage: "[message...]",
		Action: func(c *cli.Context) error {
			message, err := messageArg(c)
			if err != nil {
				return outputError(err)
			}
			database, err := env.db(c.Context)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Log(c.Context, database, ops.LogInput{Message: message})
			if err != nil {
				return outputError(err)
			}
			return printResult(c, output)
		},
	}
}

// listCmd creates the list command.
func listCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List records, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "all|expense|todo|mood|health|note"},
			&cli.StringFlag{Name: "window", Aliases: []string{"w"}, Usage: "all|today|week|month"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum records to return"},
		},
		Action: func(c *cli.Context) error {
			database, err := env.db(c.Context)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.List(c.Context, database, ops.ListInput{
				Type:   c.String("type"),
				Window: c.String("window"),
				Limit:  c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}
			return printResult(c, output)
		},
	}
}

// getCmd creates the get command.
func getCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show one record",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := idArg(c)
			if err != nil {
				return outputError(err)
			}
			database, err := env.db(c.Context)
			if err != nil {
				return outputError(err)
			}
			rec, err := ops.Get(c.Context, database, ops.GetInput{ID: id})
			if err != nil {
				return outputError(err)
			}
			return printResult(c, rec)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Permanently delete one record",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Delete without asking"},
		},
		Action: func(c *cli.Context) error {
			id, err := idArg(c)
			if err != nil {
				return outputError(err)
			}
			database, err := env.db(c.Context)
			if err != nil {
				return outputError(err)
			}
			rec, err := ops.Get(c.Context, database, ops.GetInput{ID: id})
			if err != nil {
				return outputError(err)
			}
			if !c.Bool("yes") {
				prompt := fmt.Sprintf("Delete %s record %d (%q)?", rec.Type(), rec.ID, rec.Description)
				if !confirm(bufio.NewReader(os.Stdin), prompt) {
					return outputError(errors.NewConfirmationRequired("delete cancelled"))
				}
			}
			output, err := ops.Delete(c.Context, database, ops.DeleteInput{ID: id})
			if err != nil {
				return outputError(err)
			}
			return printResult(c, output)
		},
	}
}

// reportCmd creates the report command.
func reportCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Summarize records, e.g. onelife report \"expenses this month\"",
		ArgsUsage: "[query...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Override the record type read from the query"},
			&cli.StringFlag{Name: "window", Aliases: []string{"w"}, Usage: "Override the time window read from the query"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Records listed per type (default from config)"},
			&cli.BoolFlag{Name: "markdown", Aliases: []string{"m"}, Usage: "Print only the rendered markdown"},
		},
		Action: func(c *cli.Context) error {
			database, err := env.db(c.Context)
			if err != nil {
				return outputError(err)
			}
			limit := c.Int("limit")
			if limit <= 0 {
				limit = env.cfg.ReportLimit
			}
			output, err := ops.Report(c.Context, database, ops.ReportInput{
				Query:  strings.Join(c.Args().Slice(), " "),
				Type:   c.String("type"),
				Window: c.String("window"),
				Force:  true,
				Limit:  limit,
			})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("markdown") {
				_, err := fmt.Fprintln(os.Stdout, output.Markdown)
				return err
			}
			return printResult(c, output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write every record to a JSON backup file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Destination file (default: <home>/exports/onelife-backup-YYYY-MM-DD.json)"},
			&cli.BoolFlag{Name: "stdout", Usage: "Print the backup document instead of writing a file"},
		},
		Action: func(c *cli.Context) error {
			database, err := env.db(c.Context)
			if err != nil {
				return outputError(err)
			}
			if c.Bool("stdout") {
				doc, err := ops.ExportDocument(c.Context, database, time.Now())
				if err != nil {
					return outputError(err)
				}
				return outputJSON(doc)
			}
			output, err := ops.Export(c.Context, database, env.cfg, ops.ExportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return printResult(c, output)
		},
	}
}

// importCmd creates the import command.
func importCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Add the records of a JSON backup (use - to read stdin)",
		ArgsUsage: "<path|->",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return outputError(errors.NewInvalidRequest("backup path is required"))
			}
			database, err := env.db(c.Context)
			if err != nil {
				return outputError(err)
			}

			var output *ops.ImportOutput
			if path == "-" {
				data, readErr := readStdin(ops.MaxImportBytes)
				if readErr != nil {
					return outputError(readErr)
				}
				output, err = ops.ImportDocument(c.Context, database, []byte(data), time.Now())
			} else {
				output, err = ops.Import(c.Context, database, env.cfg, ops.ImportInput{Path: path})
			}
			if err != nil {
				return outputError(err)
			}
			return printResult(c, output)
		},
	}
}

// clearCmd creates the clear command. Each of the two confirmations is
// satisfied by a --yes flag or by answering "yes" on stdin.
func clearCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Permanently delete ALL records (asks twice)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Answer one confirmation; pass twice to answer both"},
		},
		Action: func(c *cli.Context) error {
			database, err := env.db(c.Context)
			if err != nil {
				return outputError(err)
			}

			guard := ops.NewClearGuard(ops.DefaultClearTTL)
			given := c.Count("yes")
			answers := bufio.NewReader(os.Stdin)

			step := guard.Begin()
			for {
				if given > 0 {
					given--
				} else if !confirm(answers, step.Prompt) {
					return outputError(errors.NewConfirmationRequired("clear cancelled; nothing was deleted"))
				}
				if step.Step == 2 {
					break
				}
				if step, err = guard.Confirm(step.Token); err != nil {
					return outputError(err)
				}
			}

			output, err := guard.Execute(c.Context, database, step.Token)
			if err != nil {
				return outputError(err)
			}
			return printResult(c, output)
		},
	}
}

// settingsCmd creates the settings command group.
func settingsCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change the completion endpoint settings",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the current settings (API key masked)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reveal", Usage: "Show the API key in clear"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.GetSettings(env.prefs, c.Bool("reveal"))
					if err != nil {
						return outputError(err)
					}
					return printResult(c, output)
				},
			},
			{
				Name:  "set",
				Usage: "Change one or more settings",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "endpoint-url", Usage: "Completion endpoint base URL"},
					&cli.StringFlag{Name: "model", Usage: "Model name"},
					&cli.StringFlag{Name: "api-key", Usage: "Bearer token (empty to remove)"},
					&cli.Float64Flag{Name: "temperature", Usage: "Sampling temperature, 0-2"},
					&cli.IntFlag{Name: "max-tokens", Usage: "Maximum tokens per reply"},
					&cli.BoolFlag{Name: "encryption", Usage: "Encryption preference (stored, not enforced)"},
					&cli.BoolFlag{Name: "notifications", Usage: "Notifications toggle"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.UpdateSettings(env.prefs, patchFromFlags(c))
					if err != nil {
						return outputError(err)
					}
					return printResult(c, output)
				},
			},
			{
				Name:  "reset",
				Usage: "Restore the default settings",
				Action: func(c *cli.Context) error {
					output, err := ops.ResetSettings(env.prefs)
					if err != nil {
						return outputError(err)
					}
					return printResult(c, output)
				},
			},
			{
				Name:  "test",
				Usage: "Check that the completion endpoint answers",
				Action: func(c *cli.Context) error {
					current := env.loadedSettings()
					sess := env.newSession(current, true)
					if err := sess.Check(c.Context); err != nil {
						return outputError(err)
					}
					return printResult(c, map[string]any{
						"available": true,
						"endpoint":  current().EndpointURL,
					})
				},
			},
		},
	}
}

// chatCmd creates the chat command.
func chatCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Chat with OneLife; messages that describe expenses, tasks, moods or health are recorded",
		ArgsUsage: "[message...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "offline", Usage: "Record messages without calling the completion endpoint"},
			&cli.BoolFlag{Name: "json", Usage: "Print the full reply object"},
		},
		Action: func(c *cli.Context) error {
			sess := env.newSession(env.loadedSettings(), !c.Bool("offline"))

			if c.NArg() > 0 {
				return sendOne(c, sess, strings.Join(c.Args().Slice(), " "))
			}

			interactive := isTerminal()
			scanner := bufio.NewScanner(os.Stdin)
			for {
				if interactive {
					fmt.Fprint(os.Stderr, "> ")
				}
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if interactive && (line == "exit" || line == "quit") {
					break
				}
				if err := sendOne(c, sess, line); err != nil {
					return err
				}
			}
			if err := scanner.Err(); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

func sendOne(c *cli.Context, sess *session.Session, message string) error {
	reply, err := sess.Send(c.Context, message)
	if err != nil {
		return outputError(err)
	}
	if c.Bool("json") {
		return printResult(c, reply)
	}
	_, err = fmt.Fprintln(os.Stdout, reply.Text)
	return err
}

// serveCmd creates the serve command.
func serveCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web app and JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default from config web_addr)"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := c.String("addr")
			if addr == "" {
				addr = env.cfg.WebAddr
			}

			var current atomic.Pointer[settings.Settings]
			initial := env.loadedSettings()()
			current.Store(&initial)

			sess := env.newSession(func() settings.Settings { return *current.Load() }, true)
			srv, err := web.NewServer(web.Options{
				Opener:  env.opener,
				Session: sess,
				Config:  env.cfg,
				Version: Version,
				Logger:  env.logger,
			}, addr)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return web.Run(gctx, srv, env.logger)
			})
			g.Go(func() error {
				err := settings.Watch(gctx, env.prefs, env.logger, func(s settings.Settings) {
					current.Store(&s)
					env.logger.Info("settings reloaded", slog.String("endpoint", s.EndpointURL))
				})
				if err != nil {
					env.logger.Warn("settings watcher unavailable", slog.String("error", err.Error()))
				}
				return nil
			})
			if sess.CompletionEnabled() {
				g.Go(func() error {
					if err := sess.Check(gctx); err != nil {
						env.logger.Warn("completion endpoint unavailable; messages are still recorded",
							slog.String("error", err.Error()))
					}
					return nil
				})
			}
			return g.Wait()
		},
	}
}

// mcpCmd creates the mcp command, the explicit form of piped-stdin mode.
func mcpCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the OneLife tools over MCP stdio",
		Action: func(_ *cli.Context) error {
			return mcp.Run(env.opener, env.prefs, env.cfg, Version)
		},
	}
}

// Helper functions

// maxMessageBytes bounds a message read from stdin.
const maxMessageBytes = 64 << 10

// output_ writes v to stdout in the format selected by --format.
func printResult(c *cli.Context, v any) error {
	switch strings.ToLower(c.String("format")) {
	case "", "json":
		return outputJSON(v)
	case "yaml", "yml":
		return outputYAML(v)
	default:
		return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (want json or yaml)", c.String("format"))))
	}
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputYAML writes v as block-style YAML. It goes through the JSON form so
// field names and custom encodings match the JSON output.
func outputYAML(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		blockStyle(child)
	}
}

// outputError formats error for CLI.
func outputError(err error) error {
	if appErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// messageArg joins the positional arguments, or reads stdin when piped.
func messageArg(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if !stdinHasData() {
		return "", errors.NewInvalidRequest("message is required")
	}
	return readStdin(maxMessageBytes)
}

func idArg(c *cli.Context) (int64, error) {
	raw := c.Args().First()
	if raw == "" {
		return 0, errors.NewInvalidRequest("record id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid record id %q", raw))
	}
	return id, nil
}

// patchFromFlags builds a settings patch from the flags that were set.
func patchFromFlags(c *cli.Context) settings.Patch {
	var p settings.Patch
	if c.IsSet("endpoint-url") {
		v := c.String("endpoint-url")
		p.EndpointURL = &v
	}
	if c.IsSet("model") {
		v := c.String("model")
		p.Model = &v
	}
	if c.IsSet("api-key") {
		v := c.String("api-key")
		p.APIKey = &v
	}
	if c.IsSet("temperature") {
		v := c.Float64("temperature")
		p.Temperature = &v
	}
	if c.IsSet("max-tokens") {
		v := c.Int("max-tokens")
		p.MaxTokens = &v
	}
	if c.IsSet("encryption") {
		v := c.Bool("encryption")
		p.Encryption = &v
	}
	if c.IsSet("notifications") {
		v := c.Bool("notifications")
		p.Notifications = &v
	}
	return p
}

// confirm writes prompt to stderr and reports whether the answer is yes.
func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(os.Stderr)
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin, up to limit bytes.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("input exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}
