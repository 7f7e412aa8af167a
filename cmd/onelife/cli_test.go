package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/onelife/onelife/internal/config"
	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/ops"
	"github.com/onelife/onelife/internal/record"
	"github.com/onelife/onelife/internal/settings"
)

// setupTestEnv creates a temporary store for testing.
func setupTestEnv(t *testing.T) *cliEnv {
	t.Helper()
	baseDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true
	cfg.DisableCompletion = true

	opener := db.NewOpener(baseDir, cfg)
	t.Cleanup(func() { opener.Close() })

	return &cliEnv{
		opener: opener,
		prefs:  settings.OpenPrefs(baseDir),
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// runCLI runs the app with stdin as input and returns what it wrote to stdout.
func runCLI(t *testing.T, env *cliEnv, stdin string, args ...string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create stdout pipe: %v", err)
	}
	os.Stdout = w

	oldStdin := os.Stdin
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create stdin pipe: %v", err)
	}
	os.Stdin = stdinR
	go func() {
		_, _ = stdinW.WriteString(stdin)
		stdinW.Close()
	}()

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = buf.ReadFrom(r)
		close(done)
	}()

	runErr := newCLIApp(env).Run(append([]string{"onelife"}, args...))

	w.Close()
	<-done
	os.Stdout = oldStdout
	os.Stdin = oldStdin
	stdinR.Close()

	return buf.String(), runErr
}

func decodeOutput(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
}

func logRecord(t *testing.T, env *cliEnv, message string) *record.Record {
	t.Helper()
	out, err := runCLI(t, env, "", "log", message)
	if err != nil {
		t.Fatalf("log %q failed: %v", message, err)
	}
	var output ops.LogOutput
	decodeOutput(t, out, &output)
	if !output.Logged {
		t.Fatalf("expected %q to be logged", message)
	}
	return output.Record
}

func TestIDArg(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expected    int64
		expectError bool
	}{
		{name: "valid", args: []string{"42"}, expected: 42},
		{name: "missing", args: nil, expectError: true},
		{name: "zero", args: []string{"0"}, expectError: true},
		{name: "negative", args: []string{"-3"}, expectError: true},
		{name: "not a number", args: []string{"abc"}, expectError: true},
	}

	env := setupTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"get", "--"}, tt.args...)
			_, err := runCLI(t, env, "", args...)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			msg := err.Error()
			if tt.expectError && !strings.Contains(msg, "[INVALID_REQUEST]") {
				t.Errorf("expected INVALID_REQUEST, got %q", msg)
			}
			if !tt.expectError && !strings.Contains(msg, "[NOT_FOUND]") {
				t.Errorf("expected NOT_FOUND for id %d, got %q", tt.expected, msg)
			}
		})
	}
}

// TestCLILog tests the log command.
func TestCLILog(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("expense from args", func(t *testing.T) {
		rec := logRecord(t, env, "I spent $35 on lunch")
		if rec.Type() != record.TypeExpense {
			t.Errorf("expected expense, got %s", rec.Type())
		}
		exp, ok := rec.Body.(record.Expense)
		if !ok {
			t.Fatalf("expected Expense body, got %T", rec.Body)
		}
		if exp.Category != "Food & Dining" {
			t.Errorf("expected Food & Dining, got %q", exp.Category)
		}
	})

	t.Run("message from stdin", func(t *testing.T) {
		out, err := runCLI(t, env, "Feeling tired today\n", "log")
		if err != nil {
			t.Fatalf("log failed: %v", err)
		}
		var output ops.LogOutput
		decodeOutput(t, out, &output)
		if !output.Logged || output.Record.Type() != record.TypeMood {
			t.Errorf("expected a mood record, got %+v", output)
		}
		if !strings.HasPrefix(output.Confirmation, "Mood logged: Tired") {
			t.Errorf("unexpected confirmation %q", output.Confirmation)
		}
	})

	t.Run("no match is not an error", func(t *testing.T) {
		out, err := runCLI(t, env, "", "log", "hello", "there")
		if err != nil {
			t.Fatalf("log failed: %v", err)
		}
		var output ops.LogOutput
		decodeOutput(t, out, &output)
		if output.Logged {
			t.Error("expected logged=false")
		}
	})

	t.Run("empty message", func(t *testing.T) {
		_, err := runCLI(t, env, "   ", "log")
		if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
			t.Errorf("expected INVALID_REQUEST, got %v", err)
		}
	})
}

// TestCLIList tests the list command and the output formats.
func TestCLIList(t *testing.T) {
	env := setupTestEnv(t)
	logRecord(t, env, "I spent $35 on lunch")
	logRecord(t, env, "Paid $12.50 for a taxi")
	logRecord(t, env, "Feeling happy today")

	t.Run("json", func(t *testing.T) {
		out, err := runCLI(t, env, "", "list", "--type=expenses")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		var output ops.ListOutput
		decodeOutput(t, out, &output)
		if output.Total != 2 || len(output.Records) != 2 {
			t.Errorf("expected 2 expenses, got total=%d len=%d", output.Total, len(output.Records))
		}
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := runCLI(t, env, "", "--format=yaml", "list")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		for _, want := range []string{"total: 3", "has_more: false", "type: mood", "amount: 12.5"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected yaml output to contain %q\nOutput: %s", want, out)
			}
		}
		if strings.Contains(out, "{") {
			t.Errorf("expected block-style yaml, got:\n%s", out)
		}
	})

	t.Run("limit", func(t *testing.T) {
		out, err := runCLI(t, env, "", "list", "--limit=1")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		var output ops.ListOutput
		decodeOutput(t, out, &output)
		if len(output.Records) != 1 || !output.HasMore {
			t.Errorf("expected 1 record with has_more, got len=%d has_more=%v", len(output.Records), output.HasMore)
		}
	})

	t.Run("bad type", func(t *testing.T) {
		_, err := runCLI(t, env, "", "list", "--type=invoice")
		if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
			t.Errorf("expected INVALID_REQUEST, got %v", err)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := runCLI(t, env, "", "--format=xml", "list")
		if err == nil || !strings.Contains(err.Error(), "unknown format") {
			t.Errorf("expected unknown format error, got %v", err)
		}
	})
}

// TestCLIGetDelete tests the get and delete commands.
func TestCLIGetDelete(t *testing.T) {
	env := setupTestEnv(t)
	rec := logRecord(t, env, "Remind me to call the dentist tomorrow")
	id := strconv.FormatInt(rec.ID, 10)

	out, err := runCLI(t, env, "", "get", id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var got record.Record
	decodeOutput(t, out, &got)
	if got.ID != rec.ID || got.Type() != record.TypeTodo {
		t.Errorf("expected todo %d, got %d %s", rec.ID, got.ID, got.Type())
	}

	_, err = runCLI(t, env, "n\n", "delete", id)
	if err == nil || !strings.Contains(err.Error(), "[CONFIRMATION_REQUIRED]") {
		t.Fatalf("expected declined delete to fail, got %v", err)
	}

	out, err = runCLI(t, env, "yes\n", "delete", id)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	var deleted ops.DeleteOutput
	decodeOutput(t, out, &deleted)
	if !deleted.Deleted || deleted.ID != rec.ID {
		t.Errorf("unexpected delete output %+v", deleted)
	}

	_, err = runCLI(t, env, "", "delete", "--yes", id)
	if err == nil || !strings.Contains(err.Error(), "[NOT_FOUND]") {
		t.Errorf("expected NOT_FOUND on second delete, got %v", err)
	}
}

// TestCLIReport tests the report command.
func TestCLIReport(t *testing.T) {
	env := setupTestEnv(t)
	logRecord(t, env, "I spent $35 on lunch")
	logRecord(t, env, "Paid $12.50 for a taxi")
	logRecord(t, env, "Feeling happy today")

	t.Run("markdown", func(t *testing.T) {
		out, err := runCLI(t, env, "", "report", "--markdown", "show", "my", "expenses")
		if err != nil {
			t.Fatalf("report failed: %v", err)
		}
		if !strings.Contains(out, "## Expense summary") {
			t.Errorf("expected expense summary heading, got:\n%s", out)
		}
		if !strings.Contains(out, "- Total: $47.50") {
			t.Errorf("expected total $47.50, got:\n%s", out)
		}
	})

	t.Run("json with type override", func(t *testing.T) {
		out, err := runCLI(t, env, "", "report", "--type=mood")
		if err != nil {
			t.Fatalf("report failed: %v", err)
		}
		var output ops.ReportOutput
		decodeOutput(t, out, &output)
		if !strings.Contains(output.Markdown, "Happy") {
			t.Errorf("expected mood report to mention Happy, got:\n%s", output.Markdown)
		}
	})

	t.Run("bad window", func(t *testing.T) {
		_, err := runCLI(t, env, "", "report", "--window=decade")
		if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
			t.Errorf("expected INVALID_REQUEST, got %v", err)
		}
	})
}

// TestCLIExportImport tests the export and import commands.
func TestCLIExportImport(t *testing.T) {
	env := setupTestEnv(t)
	logRecord(t, env, "I spent $35 on lunch")
	logRecord(t, env, "Feeling happy today")

	backup := filepath.Join(t.TempDir(), "backup.json")
	out, err := runCLI(t, env, "", "export", "--path="+backup)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var exported ops.ExportOutput
	decodeOutput(t, out, &exported)
	if exported.Count != 2 || exported.Path != backup {
		t.Errorf("unexpected export output %+v", exported)
	}

	t.Run("from file", func(t *testing.T) {
		out, err := runCLI(t, env, "", "import", backup)
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		var imported ops.ImportOutput
		decodeOutput(t, out, &imported)
		if imported.Imported != 2 || imported.Failed != 0 {
			t.Errorf("expected 2 imported, got %+v", imported)
		}
	})

	t.Run("from stdin", func(t *testing.T) {
		doc, err := runCLI(t, env, "", "export", "--stdout")
		if err != nil {
			t.Fatalf("export --stdout failed: %v", err)
		}
		if !strings.Contains(doc, `"version": "1.0.0"`) {
			t.Fatalf("expected backup document, got:\n%s", doc)
		}

		out, err := runCLI(t, env, doc, "import", "-")
		if err != nil {
			t.Fatalf("import - failed: %v", err)
		}
		var imported ops.ImportOutput
		decodeOutput(t, out, &imported)
		if imported.Imported != 4 {
			t.Errorf("expected 4 imported, got %+v", imported)
		}
	})

	t.Run("malformed stdin", func(t *testing.T) {
		_, err := runCLI(t, env, `{"records": "nope"}`, "import", "-")
		if err == nil || !strings.Contains(err.Error(), "[FORMAT]") {
			t.Errorf("expected FORMAT error, got %v", err)
		}
	})

	t.Run("path required", func(t *testing.T) {
		_, err := runCLI(t, env, "", "import")
		if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
			t.Errorf("expected INVALID_REQUEST, got %v", err)
		}
	})
}

// TestCLIClear tests both confirmations of the clear command.
func TestCLIClear(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		stdin       string
		expectClear bool
	}{
		{name: "two flags", args: []string{"--yes", "--yes"}, expectClear: true},
		{name: "two answers", stdin: "yes\ny\n", expectClear: true},
		{name: "flag and answer", args: []string{"-y"}, stdin: "yes\n", expectClear: true},
		{name: "one flag, no answer", args: []string{"--yes"}},
		{name: "declined first", stdin: "no\nyes\n"},
		{name: "declined second", stdin: "yes\nno\n"},
		{name: "no input", stdin: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			logRecord(t, env, "I spent $35 on lunch")
			logRecord(t, env, "Feeling happy today")

			out, err := runCLI(t, env, tt.stdin, append([]string{"clear"}, tt.args...)...)

			if !tt.expectClear {
				if err == nil || !strings.Contains(err.Error(), "[CONFIRMATION_REQUIRED]") {
					t.Fatalf("expected CONFIRMATION_REQUIRED, got %v", err)
				}
				listOut, err := runCLI(t, env, "", "list")
				if err != nil {
					t.Fatalf("list failed: %v", err)
				}
				var list ops.ListOutput
				decodeOutput(t, listOut, &list)
				if list.Total != 2 {
					t.Errorf("expected records to survive, got total=%d", list.Total)
				}
				return
			}

			if err != nil {
				t.Fatalf("clear failed: %v", err)
			}
			var output ops.ClearOutput
			decodeOutput(t, out, &output)
			if !output.Cleared || output.Records != 2 {
				t.Errorf("unexpected clear output %+v", output)
			}
		})
	}
}

// TestCLISettings tests the settings subcommands.
func TestCLISettings(t *testing.T) {
	env := setupTestEnv(t)

	out, err := runCLI(t, env, "", "settings", "show")
	if err != nil {
		t.Fatalf("settings show failed: %v", err)
	}
	var shown ops.SettingsOutput
	decodeOutput(t, out, &shown)
	if shown.Settings != settings.Defaults() {
		t.Errorf("expected defaults, got %+v", shown.Settings)
	}

	out, err = runCLI(t, env, "", "settings", "set",
		"--endpoint-url=http://gpu-box:8000", "--model=llama", "--api-key=secret-key-123",
		"--temperature=1.2", "--notifications")
	if err != nil {
		t.Fatalf("settings set failed: %v", err)
	}
	var updated ops.SettingsOutput
	decodeOutput(t, out, &updated)
	if updated.Settings.Model != "llama" || updated.Settings.Temperature != 1.2 || !updated.Settings.Notifications {
		t.Errorf("unexpected settings %+v", updated.Settings)
	}
	if updated.Settings.APIKey == "secret-key-123" {
		t.Error("expected api key to be masked")
	}
	if updated.Settings.MaxTokens != 2048 {
		t.Errorf("expected untouched max tokens 2048, got %d", updated.Settings.MaxTokens)
	}

	out, err = runCLI(t, env, "", "settings", "show", "--reveal")
	if err != nil {
		t.Fatalf("settings show --reveal failed: %v", err)
	}
	decodeOutput(t, out, &shown)
	if shown.Settings.APIKey != "secret-key-123" || shown.Settings.EndpointURL != "http://gpu-box:8000" {
		t.Errorf("unexpected stored settings %+v", shown.Settings)
	}

	t.Run("invalid", func(t *testing.T) {
		_, err := runCLI(t, env, "", "settings", "set", "--temperature=5")
		if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
			t.Errorf("expected INVALID_REQUEST, got %v", err)
		}
	})

	t.Run("nothing to change", func(t *testing.T) {
		_, err := runCLI(t, env, "", "settings", "set")
		if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
			t.Errorf("expected INVALID_REQUEST, got %v", err)
		}
	})

	t.Run("test without completion", func(t *testing.T) {
		_, err := runCLI(t, env, "", "settings", "test")
		if err == nil || !strings.Contains(err.Error(), "[UNAVAILABLE]") {
			t.Errorf("expected UNAVAILABLE, got %v", err)
		}
	})

	t.Run("reset", func(t *testing.T) {
		out, err := runCLI(t, env, "", "settings", "reset")
		if err != nil {
			t.Fatalf("settings reset failed: %v", err)
		}
		var reset ops.SettingsOutput
		decodeOutput(t, out, &reset)
		if reset.Settings != settings.Defaults() {
			t.Errorf("expected defaults after reset, got %+v", reset.Settings)
		}
	})
}

// TestCLIChat tests the chat command without a completion endpoint.
func TestCLIChat(t *testing.T) {
	env := setupTestEnv(t)

	out, err := runCLI(t, env, "I spent $35 on lunch\n\nhello\n", "chat", "--offline")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if !strings.Contains(out, "Expense recorded: $35 (Food & Dining)") {
		t.Errorf("expected expense confirmation, got:\n%s", out)
	}
	if !strings.Contains(out, `I understand: "hello"`) {
		t.Errorf("expected fallback reply, got:\n%s", out)
	}

	t.Run("single message as json", func(t *testing.T) {
		out, err := runCLI(t, env, "", "chat", "--json", "summarize", "my", "expenses")
		if err != nil {
			t.Fatalf("chat failed: %v", err)
		}
		var reply struct {
			Kind string `json:"kind"`
			Text string `json:"text"`
		}
		decodeOutput(t, out, &reply)
		if reply.Kind != "report" {
			t.Errorf("expected report reply, got %q", reply.Kind)
		}
		if !strings.Contains(reply.Text, "$35.00") {
			t.Errorf("expected report total, got %q", reply.Text)
		}
	})
}

// TestCLIErrorHandling tests error handling in CLI commands.
func TestCLIErrorHandling(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("get not found returns error", func(t *testing.T) {
		_, err := runCLI(t, env, "", "get", "999")
		if err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("import missing file returns error", func(t *testing.T) {
		_, err := runCLI(t, env, "", "import", filepath.Join(t.TempDir(), "missing.json"))
		if err == nil || !strings.Contains(err.Error(), "[NOT_FOUND]") {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		broken := setupTestEnv(t)
		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		broken.opener = db.NewOpener(blocker, broken.cfg)
		_, err := runCLI(t, broken, "", "list")
		if err == nil || !strings.Contains(err.Error(), "[STORAGE]") {
			t.Errorf("expected STORAGE, got %v", err)
		}
	})
}

// TestIsCLIMode tests the isCLIMode function.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"onelife"}, expected: false},
		{name: "log command", args: []string{"onelife", "log"}, expected: true},
		{name: "serve command", args: []string{"onelife", "serve"}, expected: true},
		{name: "format flag first", args: []string{"onelife", "--format=yaml", "list"}, expected: true},
		{name: "help flag", args: []string{"onelife", "--help"}, expected: true},
		{name: "version flag", args: []string{"onelife", "--version"}, expected: true},
		{name: "short help flag", args: []string{"onelife", "-h"}, expected: true},
		{name: "short version flag", args: []string{"onelife", "-v"}, expected: true},
		{name: "unknown arg defaults to MCP", args: []string{"onelife", "--unknown"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isCLIMode(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"onelife"}, expected: false},
		{name: "help flag", args: []string{"onelife", "--help"}, expected: true},
		{name: "short help flag", args: []string{"onelife", "-h"}, expected: true},
		{name: "version flag", args: []string{"onelife", "--version"}, expected: true},
		{name: "help subcommand", args: []string{"onelife", "help"}, expected: true},
		{name: "log command is not help", args: []string{"onelife", "log"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isHelpOrVersion(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestReadStdinWithLimit tests the readStdin function respects size limits.
func TestReadStdinWithLimit(t *testing.T) {
	withStdin := func(t *testing.T, content string) {
		t.Helper()
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatalf("Failed to create pipe: %v", err)
		}
		go func() {
			_, _ = w.WriteString(content)
			w.Close()
		}()
		oldStdin := os.Stdin
		os.Stdin = r
		t.Cleanup(func() { os.Stdin = oldStdin })
	}

	t.Run("within limit", func(t *testing.T) {
		withStdin(t, "  small content\n")
		result, err := readStdin(1000)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if result != "small content" {
			t.Errorf("expected %q, got %q", "small content", result)
		}
	})

	t.Run("exceeds limit", func(t *testing.T) {
		withStdin(t, strings.Repeat("x", 100))
		if _, err := readStdin(50); err == nil {
			t.Error("expected error for content exceeding limit, got nil")
		}
	})
}
