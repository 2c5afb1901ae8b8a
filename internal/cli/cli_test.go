// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mementoai/memento/internal/app"
	"github.com/mementoai/memento/internal/config"
)

// =============================================================================
// PARSE TESTS
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		want    Command
		check   func(*testing.T, Args)
		wantErr bool
	}{
		{name: "no args opens tui", argv: nil, want: CmdTUI},
		{name: "alias", argv: []string{"server"}, want: CmdServe},
		{name: "case insensitive", argv: []string{"ASK", "hi"}, want: CmdAsk,
			check: func(t *testing.T, a Args) { assert.Equal(t, []string{"hi"}, a.Raw) }},
		{name: "global flags anywhere", argv: []string{"memory", "--json", "stats", "-y"}, want: CmdMemory,
			check: func(t *testing.T, a Args) {
				assert.True(t, a.JSON)
				assert.True(t, a.Yes)
				assert.Equal(t, []string{"stats"}, a.Raw)
			}},
		{name: "model flag", argv: []string{"-m", "meta/llama", "ask", "x"}, want: CmdAsk,
			check: func(t *testing.T, a Args) { assert.Equal(t, "meta/llama", a.Model) }},
		{name: "model equals", argv: []string{"ask", "--model=a/b", "x"}, want: CmdAsk,
			check: func(t *testing.T, a Args) { assert.Equal(t, "a/b", a.Model) }},
		{name: "config path", argv: []string{"--config", "/tmp/c.toml", "config"}, want: CmdConfig,
			check: func(t *testing.T, a Args) { assert.Equal(t, "/tmp/c.toml", a.ConfigPath) }},
		{name: "ephemeral", argv: []string{"ask", "--ephemeral", "x"}, want: CmdAsk,
			check: func(t *testing.T, a Args) {
				assert.True(t, a.Ephemeral)
				assert.Equal(t, []string{"x"}, a.Raw)
			}},
		{name: "version flag", argv: []string{"--version"}, want: CmdVersion},
		{name: "help flag", argv: []string{"-h"}, want: CmdHelp},
		{name: "missing flag value", argv: []string{"ask", "--model"}, wantErr: true},
		{name: "unknown command", argv: []string{"frobnicate"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, err := Parse(tt.argv)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsUsageError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
			if tt.check != nil {
				tt.check(t, args)
			}
		})
	}
}

func TestArgParser(t *testing.T) {
	p := NewArgParser([]string{"add", "--format", "md", "--open", "-", "--", "--literal"}, "open")

	assert.Equal(t, "add", p.Subcommand())
	assert.Equal(t, "md", p.Flag("format"))
	assert.Equal(t, "md", p.Flag("f", "format"))
	assert.True(t, p.BoolFlag("open"))
	assert.Equal(t, "-", p.Positional(1))
	assert.Equal(t, "--literal", p.Positional(2))
	assert.Equal(t, 3, p.PositionalCount())
	assert.Equal(t, "", p.Positional(7))
	assert.Equal(t, "x", NewArgParser(nil).FlagOrDefault("missing", "x"))
	assert.Equal(t, "- --literal", JoinPositionalArgs(p, 1))
}

func TestArgParser_EqualsAndTrailingFlag(t *testing.T) {
	p := NewArgParser([]string{"--output=a.md", "--free"})
	assert.Equal(t, "a.md", p.Flag("output"))
	assert.True(t, p.BoolFlag("free"))
	assert.Equal(t, 0, p.PositionalCount())
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestErrors(t *testing.T) {
	base := errors.New("boom")
	err := NewCommandError("memory", "add", base)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "memory")
	assert.Equal(t, ExitError, GetExitCode(err))
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Nil(t, NewCommandError("x", "y", nil))

	usage := ErrUnknownSubcommand("config", "frob", configUsage)
	assert.True(t, IsUsageError(usage))
	assert.True(t, IsUsageError(fmt.Errorf("wrapped: %w", usage)))
}

func TestDisplayError_JSON(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, errors.New("nope"), true)

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "nope", *resp.Error)
}

// =============================================================================
// RUNNER TESTS
// =============================================================================

// upstream fakes the completion endpoint. Analysis prompts get a numbered
// list; everything else gets "pong".
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			fmt.Fprint(w, `{"data":[
				{"id":"paid/model","name":"Paid","pricing":{"prompt":"0.1","completion":"0.1"}},
				{"id":"free/model","name":"Free","pricing":{"prompt":"0","completion":"0"}}]}`)
			return
		}
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		reply := "pong"
		if n := len(body.Messages); n > 0 && strings.Contains(strings.ToLower(body.Messages[n-1].Content), "action items") {
			reply = "1. Buy milk\n2. Call Bob"
		}
		out, _ := json.Marshal(reply)
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%s}}]}`, out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testRunner struct {
	*Runner
	out *bytes.Buffer
	dir string
}

func newTestRunner(t *testing.T) *testRunner {
	t.Helper()
	up := upstream(t)
	dir := t.TempDir()
	t.Setenv("MEMENTO_HOME", dir)

	out := &bytes.Buffer{}
	r := &Runner{
		In:      strings.NewReader(""),
		Out:     out,
		Err:     out,
		WorkDir: dir,
		LoadConfig: func(Args) (*config.Config, error) {
			cfg := config.Default()
			cfg.Cloud.BaseURL = up.URL
			cfg.Cloud.Stream = false
			cfg.Cloud.MaxRetries = 0
			cfg.Cloud.RequestsPerMinute = 0
			cfg.Cloud.APIKey = "sk-test-key-123456"
			cfg.Storage.Dir = dir
			cfg.Offline.ProbeURL = ""
			cfg.Notifications.Enabled = false
			return cfg, nil
		},
		Open: func(cfg *config.Config, _ Args, _ bool) (*app.App, error) {
			return app.New(cfg, app.Options{Version: "test"})
		},
	}
	return &testRunner{Runner: r, out: out, dir: dir}
}

// run parses argv and runs it, returning the output.
func (tr *testRunner) run(t *testing.T, argv ...string) (string, error) {
	t.Helper()
	tr.out.Reset()
	cmd, args, err := Parse(argv)
	require.NoError(t, err)
	err = tr.Run(context.Background(), cmd, args)
	return tr.out.String(), err
}

func TestRun_Help(t *testing.T) {
	tr := newTestRunner(t)
	out, err := tr.run(t, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "memento memory add <text>")
}

func TestRun_VersionJSON(t *testing.T) {
	tr := newTestRunner(t)
	out, err := tr.run(t, "version", "--json")
	require.NoError(t, err)

	var resp struct {
		Success bool        `json:"success"`
		Data    VersionData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, Version, resp.Data.Version)
}

func TestRun_AskStoresTurn(t *testing.T) {
	tr := newTestRunner(t)
	out, err := tr.run(t, "ask", "hello", "there")
	require.NoError(t, err)
	assert.Contains(t, out, "pong")

	out, err = tr.run(t, "export", "--output", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "hello there")
	assert.Contains(t, out, "pong")
}

func TestRun_EphemeralLeavesNoState(t *testing.T) {
	tr := newTestRunner(t)
	_, err := tr.run(t, "--ephemeral", "ask", "forget me")
	require.NoError(t, err)

	out, err := tr.run(t, "export", "--output", "-")
	require.NoError(t, err)
	assert.NotContains(t, out, "forget me")
}

func TestRun_AskFromStdin(t *testing.T) {
	tr := newTestRunner(t)
	tr.In = strings.NewReader("piped question\n")
	out, err := tr.run(t, "ask", "--json")
	require.NoError(t, err)

	var resp struct {
		Data AskData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "pong", resp.Data.Reply)
}

func TestRun_AskRequiresText(t *testing.T) {
	tr := newTestRunner(t)
	_, err := tr.run(t, "ask")
	assert.True(t, IsUsageError(err))
}

func TestRun_AskTooLong(t *testing.T) {
	tr := newTestRunner(t)
	_, err := tr.run(t, "ask", strings.Repeat("x", 2001))
	assert.True(t, IsUsageError(err))
}

func TestRun_ModelFlagSwitchesModel(t *testing.T) {
	tr := newTestRunner(t)
	_, err := tr.run(t, "-m", "free/model", "ask", "hi")
	require.NoError(t, err)

	out, err := tr.run(t, "models")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "free/model"), "free models come first")
	assert.Contains(t, lines[0], "*")
}

func TestRun_ModelsFree(t *testing.T) {
	tr := newTestRunner(t)
	out, err := tr.run(t, "models", "--free", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, "free/model")
	assert.NotContains(t, out, "paid/model")
}

func TestRun_Validate(t *testing.T) {
	tr := newTestRunner(t)
	out, err := tr.run(t, "validate", "--json")
	require.NoError(t, err)

	var resp struct {
		Data ValidateData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Valid)
	assert.NotContains(t, resp.Data.APIKey, "sk-test-key-123456")
}

func TestRun_Memory(t *testing.T) {
	tr := newTestRunner(t)

	out, err := tr.run(t, "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "No memory information stored yet.")

	_, err = tr.run(t, "memory", "add", "I", "like", "tea")
	require.NoError(t, err)
	_, err = tr.run(t, "memory", "add", "Bob is my brother")
	require.NoError(t, err)

	out, err = tr.run(t, "memory", "search", "TEA")
	require.NoError(t, err)
	assert.Contains(t, out, "I like tea")
	assert.NotContains(t, out, "Bob")

	out, err = tr.run(t, "memory", "stats", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"paragraphCount": 2`)

	out, err = tr.run(t, "memory", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "memento_memory_")

	_, err = tr.run(t, "memory", "clear")
	assert.ErrorIs(t, err, ErrNotConfirmed)

	_, err = tr.run(t, "memory", "clear", "--yes")
	require.NoError(t, err)
	out, err = tr.run(t, "memory", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "No memory information stored yet.")

	_, err = tr.run(t, "memory", "frob")
	assert.True(t, IsUsageError(err))
}

func TestRun_MemoryImport(t *testing.T) {
	tr := newTestRunner(t)
	path := filepath.Join(tr.dir, "mem.txt")
	require.NoError(t, os.WriteFile(path, []byte("Imported fact"), 0o600))

	_, err := tr.run(t, "memory", "import", path)
	require.NoError(t, err)
	out, err := tr.run(t, "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported fact")
}

func TestRun_Analysis(t *testing.T) {
	tr := newTestRunner(t)

	out, err := tr.run(t, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "No conversation to summarize.")

	out, err = tr.run(t, "actions")
	require.NoError(t, err)
	assert.Contains(t, out, "No action items found.")

	_, err = tr.run(t, "ask", "plan my day")
	require.NoError(t, err)

	out, err = tr.run(t, "actions", "--json")
	require.NoError(t, err)
	var resp struct {
		Data AnalysisData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"Buy milk", "Call Bob"}, resp.Data.Items)
}

func TestRun_ExportImportRoundTrip(t *testing.T) {
	tr := newTestRunner(t)
	_, err := tr.run(t, "ask", "remember this")
	require.NoError(t, err)

	out, err := tr.run(t, "export", "backup.json")
	require.NoError(t, err)
	path := filepath.Join(tr.dir, "backup.json")
	assert.Contains(t, out, path)
	require.FileExists(t, path)

	_, err = tr.run(t, "clear", "-y")
	require.NoError(t, err)
	out, err = tr.run(t, "export", "-")
	require.NoError(t, err)
	assert.NotContains(t, out, "remember this")

	out, err = tr.run(t, "import", path, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 messages.")
}

func TestRun_ExportMarkdown(t *testing.T) {
	tr := newTestRunner(t)
	_, err := tr.run(t, "ask", "hi")
	require.NoError(t, err)

	_, err = tr.run(t, "export", "--format", "md")
	require.NoError(t, err)
	matches, err := filepath.Glob(filepath.Join(tr.dir, "memento_export_*.md"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = tr.run(t, "export", "--format", "pdf")
	assert.True(t, IsUsageError(err))
}

func TestRun_Reset(t *testing.T) {
	tr := newTestRunner(t)
	_, err := tr.run(t, "memory", "add", "secret")
	require.NoError(t, err)

	_, err = tr.run(t, "reset")
	assert.ErrorIs(t, err, ErrNotConfirmed)

	_, err = tr.run(t, "reset", "--yes")
	require.NoError(t, err)
	out, err := tr.run(t, "memory")
	require.NoError(t, err)
	assert.NotContains(t, out, "secret")
}

func TestRun_Config(t *testing.T) {
	tr := newTestRunner(t)
	tr.LoadConfig = nil

	out, err := tr.run(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tr.dir, "config.toml"), strings.TrimSpace(out))

	_, err = tr.run(t, "config", "init")
	require.NoError(t, err)
	_, err = tr.run(t, "config", "init")
	assert.True(t, IsUsageError(err))

	_, err = tr.run(t, "config", "set", "cloud.default_model", "free/model")
	require.NoError(t, err)
	out, err = tr.run(t, "config", "get", "cloud.default_model")
	require.NoError(t, err)
	assert.Equal(t, "free/model", strings.TrimSpace(out))

	_, err = tr.run(t, "config", "set", "cloud.api_key", "sk-or-abcdefgh12345678")
	require.NoError(t, err)
	out, err = tr.run(t, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-or-abcdefgh12345678")
	assert.Contains(t, out, "sk-o...5678")

	_, err = tr.run(t, "config", "set", "storage.backend", "floppy")
	assert.Error(t, err)
	_, err = tr.run(t, "config", "set", "nope.key", "1")
	assert.True(t, IsUsageError(err))

	out, err = tr.run(t, "config", "keys")
	require.NoError(t, err)
	assert.Contains(t, out, "notifications.enabled")
}

func TestRun_ChatPiped(t *testing.T) {
	tr := newTestRunner(t)
	tr.In = strings.NewReader("/help\nhello\n/memory\n/bogus\n/quit\nnever sent\n")

	out, err := tr.run(t, "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "/clear")
	assert.Contains(t, out, "pong")
	assert.Contains(t, out, "Unknown command: /bogus")

	out, err = tr.run(t, "export", "-")
	require.NoError(t, err)
	assert.NotContains(t, out, "never sent")
}

func TestRun_TUIRequiresTerminal(t *testing.T) {
	tr := newTestRunner(t)
	_, err := tr.run(t)
	var ttyErr *TTYRequiredError
	assert.ErrorAs(t, err, &ttyErr)
}

func TestConfirm(t *testing.T) {
	r := &Runner{In: strings.NewReader("yes\n"), Out: &bytes.Buffer{}, Interactive: true}
	assert.NoError(t, r.confirm(false, "Proceed"))

	r.In = strings.NewReader("n\n")
	assert.ErrorIs(t, r.confirm(false, "Proceed"), ErrNotConfirmed)

	r.Interactive = false
	assert.ErrorIs(t, r.confirm(false, "Proceed"), ErrNotConfirmed)
	assert.NoError(t, r.confirm(true, "Proceed"))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "sk-o...5678", maskSecret("sk-or-12345678"))
}
