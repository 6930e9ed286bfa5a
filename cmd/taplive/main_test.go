package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// executeCommand runs the root command with the given args and returns stdout, stderr, and error.
func executeCommand(args ...string) (stdout string, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil { //nolint:gosec // test script must be executable
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// isolate points every taplive path at a temp dir and clears env that
// would change defaults.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("TAPLIVE_HOME", home)
	t.Setenv("TAPLIVE_DB_PATH", "")
	t.Setenv("TAPLIVE_REPORTER", "")
	t.Setenv("TAP_TIMEOUT", "")
	t.Chdir(t.TempDir())
	return home
}

func TestCLICommands(t *testing.T) {
	t.Run("root --help shows usage", func(t *testing.T) {
		out, _, err := executeCommand("--help")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !containsAll(out, "taplive", "run", "replay", "history", "version") {
			t.Errorf("expected root help to list all subcommands, got:\n%s", out)
		}
	})

	t.Run("root --version prints version", func(t *testing.T) {
		out, _, err := executeCommand("--version")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(out, "taplive ") {
			t.Errorf("expected version output to start with 'taplive', got: %s", out)
		}
	})

	t.Run("run --help shows flags", func(t *testing.T) {
		out, _, err := executeCommand("run", "--help")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !containsAll(out, "-R, --reporter", "-c, --color", "-C, --no-color", "-t, --timeout", "-j, --jobs", "--watch") {
			t.Errorf("expected run help to show reporter, colour, timeout, jobs and watch flags, got:\n%s", out)
		}
	})

	t.Run("run requires a path", func(t *testing.T) {
		if _, _, err := executeCommand("run"); err == nil {
			t.Error("expected error without paths")
		}
	})

	t.Run("run rejects unknown reporter", func(t *testing.T) {
		isolate(t)
		if _, _, err := executeCommand("run", "-R", "fancy", "."); err == nil {
			t.Error("expected error for unknown reporter")
		}
	})
}

func TestRunRecordReplayHistory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts require a POSIX shell")
	}
	isolate(t)
	dir := t.TempDir()
	writeScript(t, dir, "pass.sh", `printf 'ok 1 - adds\n1..1\n'`)
	writeScript(t, dir, "fail.sh", `printf '# Subtest: sub\n    not ok 1 - inner\n    1..1\nnot ok 1 - sub\n1..1\n'`)

	out, _, err := executeCommand("run", "-R", "plain", "-C", "--", dir)
	if !errors.Is(err, errRunFailed) {
		t.Fatalf("run error = %v, want errRunFailed", err)
	}
	if !containsAll(out, "not ok "+filepath.Join(dir, "fail.sh")+"/sub > inner", "FAIL  total 2  pass 1  fail 1") {
		t.Errorf("unexpected run output:\n%s", out)
	}
	if strings.Contains(out, "> sub\n") {
		t.Errorf("parent restatement was not suppressed:\n%s", out)
	}
	if !containsAll(out, "pass.sh", "PASS", "TOTAL") {
		t.Errorf("expected timing table in output:\n%s", out)
	}

	hist, _, err := executeCommand("history", "-C")
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	if !containsAll(hist, "FAIL", "RUN") {
		t.Errorf("unexpected history output:\n%s", hist)
	}

	replayed, _, err := executeCommand("replay", "-C", "--table=false")
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if !containsAll(replayed, "/sub > inner", "FAIL  total 2  pass 1  fail 1") {
		t.Errorf("unexpected replay output:\n%s", replayed)
	}
}

func TestRunPassingExitsZero(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts require a POSIX shell")
	}
	isolate(t)
	dir := t.TempDir()
	writeScript(t, dir, "ok.sh", `printf 'ok 1\nok 2 # SKIP no network\n1..2\n'`)

	out, _, err := executeCommand("run", "-R", "plain", "-C", "--no-record", dir)
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "PASS  total 2  pass 1  fail 0  skip 1") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, _, err := executeCommand("history"); err == nil {
		t.Error("expected history to fail without a recorded database")
	}
}

func TestRunNoPrograms(t *testing.T) {
	isolate(t)
	_, _, err := executeCommand("run", "-R", "plain", "--no-record", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "no test programs") {
		t.Errorf("run error = %v, want no test programs", err)
	}
}
