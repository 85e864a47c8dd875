// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main provides an interactive REPL (Read-Eval-Print Loop) over a
// generation-versioned dictionary.
//
// The REPL keeps a table of open snapshots so the effect of writes on pinned
// generations, and of releasing them on collection, can be explored by hand.
//
// # Usage
//
// Start the REPL:
//
//	go run ./cmd/repl [-config gencache.yaml]
//
// Available commands:
//
//	set <key> <value>    - Store a value in a new generation
//	get <key> [snap]     - Read the latest value, or the value in snapshot snap
//	del <key>            - Remove a key in a new generation
//	clear                - Remove every key in one generation
//	snap                 - Open a snapshot of the latest generation
//	keys [snap]          - List keys, latest or of snapshot snap
//	release <snap>       - Close snapshot snap
//	collect              - Run the collector now
//	gen                  - Show generation and snapshot counts
//	stats                - Print metrics as JSON
//	dump <file> [snap]   - Write a dump (.json, otherwise msgpack)
//	quit, exit           - Exit the REPL
//
// Example session:
//
//	> set a 1
//	gen 1
//	> snap
//	snapshot 1 at gen 1
//	> set a 2
//	gen 2
//	> get a 1
//	1
//	> get a
//	2
//	> release 1
//	released 1
//
// # Dangers and Warnings
//
//   - The dictionary is in memory only; everything is lost on exit.
//   - Snapshots left open pin their generations until released.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/kianostad/gencache/internal/config"
	"github.com/kianostad/gencache/internal/core"
)

type REPL struct {
	d      *core.Dictionary[string, string]
	out    io.Writer
	snaps  map[int]*core.Snapshot[string, string]
	nextID int
}

func NewREPL(d *core.Dictionary[string, string], out io.Writer) *REPL {
	return &REPL{
		d:      d,
		out:    out,
		snaps:  make(map[int]*core.Snapshot[string, string]),
		nextID: 1,
	}
}

func (r *REPL) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// snapshot resolves an optional snapshot id argument. Without one it opens a
// temporary snapshot that the caller must close.
func (r *REPL) snapshot(ctx context.Context, args []string) (*core.Snapshot[string, string], bool, error) {
	if len(args) == 0 {
		return r.d.CreateSnapshot(ctx), true, nil
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, false, fmt.Errorf("invalid snapshot id %q", args[0])
	}
	s, ok := r.snaps[id]
	if !ok {
		return nil, false, fmt.Errorf("no snapshot %d", id)
	}
	return s, false, nil
}

// Exec runs one command line and reports whether the REPL should continue.
func (r *REPL) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "set":
		if len(args) < 2 {
			r.printf("Usage: set <key> <value>\n")
			return true
		}
		gen := r.d.Set(ctx, args[0], strings.Join(args[1:], " "))
		r.printf("gen %d\n", gen)

	case "get":
		if len(args) < 1 || len(args) > 2 {
			r.printf("Usage: get <key> [snap]\n")
			return true
		}
		if len(args) == 1 {
			if v, ok := r.d.Get(ctx, args[0]); ok {
				r.printf("%s\n", v)
			} else {
				r.printf("Key not found\n")
			}
			return true
		}
		s, _, err := r.snapshot(ctx, args[1:])
		if err != nil {
			r.printf("%v\n", err)
			return true
		}
		if v, ok := s.Get(ctx, args[0]); ok {
			r.printf("%s\n", v)
		} else {
			r.printf("Key not found\n")
		}

	case "del":
		if len(args) != 1 {
			r.printf("Usage: del <key>\n")
			return true
		}
		r.printf("gen %d\n", r.d.Remove(ctx, args[0]))

	case "clear":
		r.printf("gen %d\n", r.d.Clear(ctx))

	case "snap":
		s := r.d.CreateSnapshot(ctx)
		id := r.nextID
		r.nextID++
		r.snaps[id] = s
		r.printf("snapshot %d at gen %d\n", id, s.Gen())

	case "keys":
		s, temp, err := r.snapshot(ctx, args)
		if err != nil {
			r.printf("%v\n", err)
			return true
		}
		keys := slices.Sorted(s.Keys(ctx))
		if temp {
			s.Close(ctx)
		}
		r.printf("%s\n", strings.Join(keys, " "))

	case "release":
		if len(args) != 1 {
			r.printf("Usage: release <snap>\n")
			return true
		}
		s, _, err := r.snapshot(ctx, args)
		if err != nil {
			r.printf("%v\n", err)
			return true
		}
		s.Close(ctx)
		id, _ := strconv.Atoi(args[0])
		delete(r.snaps, id)
		r.printf("released %d\n", id)

	case "collect":
		st := r.d.Collect(ctx)
		r.printf("floor %d: dropped %d versions, removed %d keys, %d keys left\n",
			st.Floor, st.Dropped, st.RemovedKeys, st.Keys)

	case "gen":
		r.printf("gen %d, %d live generations, %d snapshots\n",
			r.d.Generation(), r.d.GenCount(), r.d.SnapCount())

	case "stats":
		if m := r.d.Metrics(); m != nil {
			r.d.GetMetrics(ctx)
			r.printf("%s\n", m.ExportJSON())
		} else {
			r.printf("metrics disabled\n")
		}

	case "dump":
		if len(args) < 1 || len(args) > 2 {
			r.printf("Usage: dump <file> [snap]\n")
			return true
		}
		s, temp, err := r.snapshot(ctx, args[1:])
		if err != nil {
			r.printf("%v\n", err)
			return true
		}
		err = core.ExportFile(ctx, s, args[0])
		if temp {
			s.Close(ctx)
		}
		if err != nil {
			r.printf("dump failed: %v\n", err)
		} else {
			r.printf("wrote %s\n", args[0])
		}

	case "help":
		r.printf("Commands: set, get, del, clear, snap, keys, release, collect, gen, stats, dump, quit\n")

	case "quit", "exit":
		r.printf("Goodbye!\n")
		return false

	default:
		r.printf("Unknown command: %s\n", cmd)
	}
	return true
}

// Run reads commands from in until EOF or quit.
func (r *REPL) Run(ctx context.Context, in io.Reader) {
	r.printf("gencache REPL (type help for commands)\n")

	scanner := bufio.NewScanner(in)
	for {
		r.printf("> ")
		if !scanner.Scan() {
			break
		}
		if !r.Exec(ctx, strings.TrimSpace(scanner.Text())) {
			return
		}
	}
}

// Close releases every open snapshot.
func (r *REPL) Close(ctx context.Context) {
	for id, s := range r.snaps {
		s.Close(ctx)
		delete(r.snaps, id)
	}
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	d := core.New[string, string](cfg.Cache.Options(logger, nil)...)
	repl := NewREPL(d, os.Stdout)

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		d.Close(ctx)
		os.Exit(0)
	}()

	repl.Run(ctx, os.Stdin)
	repl.Close(ctx)
	d.Close(ctx)
	logger.Debug("repl exited", zap.Uint64("generation", uint64(d.Generation())))
}
