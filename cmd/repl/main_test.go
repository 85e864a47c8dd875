// Licensed under the MIT License. See LICENSE file in the project root for details.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kianostad/gencache/internal/core"
)

func newTestREPL(t *testing.T) (*REPL, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()
	d := core.New[string, string](core.WithAutoCollect(false))
	var out bytes.Buffer
	r := NewREPL(d, &out)
	t.Cleanup(func() {
		r.Close(ctx)
		d.Close(ctx)
	})
	return r, &out
}

func run(t *testing.T, r *REPL, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	r.Exec(context.Background(), line)
	return strings.TrimSpace(out.String())
}

func TestREPLSnapshotSession(t *testing.T) {
	r, out := newTestREPL(t)

	tests := []struct {
		line string
		want string
	}{
		{"set a 1", "gen 1"},
		{"snap", "snapshot 1 at gen 1"},
		{"set a 2", "gen 2"},
		{"set b hello world", "gen 3"},
		{"get a 1", "1"},
		{"get a", "2"},
		{"get b", "hello world"},
		{"get b 1", "Key not found"},
		{"keys", "a b"},
		{"keys 1", "a"},
		{"del a", "gen 4"},
		{"get a", "Key not found"},
		{"gen", "gen 4, 1 live generations, 1 snapshots"},
		{"collect", "floor 1: dropped 0 versions, removed 0 keys, 2 keys left"},
		{"release 1", "released 1"},
		{"collect", "floor 4: dropped 2 versions, removed 1 keys, 1 keys left"},
		{"gen", "gen 4, 0 live generations, 0 snapshots"},
		{"get a 1", "no snapshot 1"},
		{"clear", "gen 5"},
		{"keys", ""},
	}
	for _, tt := range tests {
		if got := run(t, r, out, tt.line); got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestREPLUsageAndErrors(t *testing.T) {
	r, out := newTestREPL(t)

	for _, line := range []string{"set", "get", "del", "release", "dump"} {
		if got := run(t, r, out, line); !strings.HasPrefix(got, "Usage:") {
			t.Errorf("%q: expected usage, got %q", line, got)
		}
	}
	if got := run(t, r, out, "release x"); got != `invalid snapshot id "x"` {
		t.Errorf("unexpected output %q", got)
	}
	if got := run(t, r, out, "frobnicate"); got != "Unknown command: frobnicate" {
		t.Errorf("unexpected output %q", got)
	}
	if !r.Exec(context.Background(), "") {
		t.Error("empty line should not stop the REPL")
	}
	if r.Exec(context.Background(), "quit") {
		t.Error("quit should stop the REPL")
	}
}

func TestREPLDumpAndStats(t *testing.T) {
	r, out := newTestREPL(t)
	path := filepath.Join(t.TempDir(), "dump.json")

	run(t, r, out, "set a 1")
	if got := run(t, r, out, "dump "+path); got != "wrote "+path {
		t.Fatalf("unexpected output %q", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"key": "a"`) {
		t.Errorf("dump misses key a: %s", data)
	}

	if got := run(t, r, out, "stats"); !strings.Contains(got, `"operations"`) {
		t.Errorf("stats output is not metrics JSON: %q", got)
	}
}

func TestREPLRun(t *testing.T) {
	r, out := newTestREPL(t)
	r.Run(context.Background(), strings.NewReader("set k v\nget k\nquit\nset never 1\n"))

	got := out.String()
	if !strings.Contains(got, "gen 1") || !strings.Contains(got, "Goodbye!") {
		t.Errorf("unexpected session output %q", got)
	}
	if strings.Contains(got, "gen 2") {
		t.Error("commands after quit must not run")
	}
}
