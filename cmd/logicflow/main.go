// Package main is a demonstration driver for the logicflow pipeline:
// it reads JSON action lines from stdin, runs them through a small set
// of units, and prints monitor events and store-bound actions.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/tidwall/gjson"

	"github.com/dshills/logicflow/action"
	"github.com/dshills/logicflow/config"
	"github.com/dshills/logicflow/logging"
	"github.com/dshills/logicflow/logic"
	"github.com/dshills/logicflow/luaunit"
	"github.com/dshills/logicflow/match"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

type options struct {
	configPath  string
	unitPath    string
	verbosity   int
	showVersion bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()
	if opts.showVersion {
		fmt.Printf("logicflow %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts.verbosity > cfg.Verbosity {
		cfg.Verbosity = opts.verbosity
	}

	log := logging.Setup(cfg.Verbosity, os.Stderr)

	units, closers, err := buildUnits(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	// stdout is shared by the sink and the monitor printer.
	var outMu sync.Mutex

	pipe, err := logic.New(units,
		logic.WithLogger(logging.Component(log, "pipeline")),
		logic.WithIntakeBuffer(cfg.IntakeBuffer),
		logic.WithMonitorBuffer(cfg.MonitorBuffer),
		logic.WithStallWarning(cfg.StallWarn),
		logic.WithSink(func(a action.Action) {
			outMu.Lock()
			defer outMu.Unlock()
			fmt.Printf("store <- %s %v\n", a.Type, a.Payload)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := pipe.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	sub := pipe.Monitor().Subscribe()
	go func() {
		for ev := range sub.C() {
			outMu.Lock()
			line := fmt.Sprintf("monitor %-13s %s", ev.Op, ev.Action.Type)
			if ev.Name != "" {
				line += " unit=" + ev.Name
			}
			if !ev.DispAction.IsZero() {
				line += " disp=" + ev.DispAction.Type
			}
			if ev.Err != nil {
				line += " err=" + ev.Err.Error()
			}
			fmt.Println(line)
			outMu.Unlock()
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

loop:
	for {
		select {
		case <-signals:
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			a, err := parseAction(line)
			if err != nil {
				log.Warn().Err(err).Msg("skipping input line")
				continue
			}
			if err := pipe.Dispatch(a); err != nil {
				log.Error().Err(err).Msg("dispatch failed")
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := pipe.Drain(ctx); err != nil {
		log.Warn().Err(err).Msg("drain timed out")
	}
	if err := pipe.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("stop timed out")
	}
	return 0
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.unitPath, "unit", "", "Path to a Lua unit script")
	flag.IntVar(&opts.verbosity, "v", 0, "Verbosity level (0-3)")
	flag.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	flag.Parse()
	return opts
}

// buildUnits assembles the demo unit set: an uppercasing transform, an
// echo process, and optionally a Lua-scripted unit.
func buildUnits(opts options) ([]*logic.Unit, []func(), error) {
	shout, err := logic.NewUnit(logic.UnitConfig{
		Name: "shout",
		Type: match.Exact("SAY"),
		Transform: func(vc *logic.ValidateContext) {
			a := vc.Action()
			if s, ok := a.Payload.(string); ok {
				a.Payload = strings.ToUpper(s)
			}
			vc.Next(a)
		},
	})
	if err != nil {
		return nil, nil, err
	}

	echo, err := logic.NewUnit(logic.UnitConfig{
		Name: "echo",
		Type: match.Exact("PING"),
		Process: func(pc *logic.ProcessContext) (any, error) {
			return action.New("PONG", pc.Action().Payload), nil
		},
	})
	if err != nil {
		return nil, nil, err
	}

	units := []*logic.Unit{shout, echo}
	var closers []func()

	if opts.unitPath != "" {
		script, err := luaunit.Load(luaunit.Config{Path: opts.unitPath})
		if err != nil {
			return nil, nil, err
		}
		units = append(units, script.Unit())
		closers = append(closers, script.Close)
	}
	return units, closers, nil
}

// parseAction decodes one JSON action line, e.g.
// {"type":"SAY","payload":"hello"}.
func parseAction(line string) (action.Action, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return action.Action{}, fmt.Errorf("empty line")
	}
	if !gjson.Valid(line) {
		return action.Action{}, fmt.Errorf("invalid JSON: %s", line)
	}

	typ := gjson.Get(line, "type").String()
	if typ == "" {
		return action.Action{}, fmt.Errorf("action has no type: %s", line)
	}

	a := action.New(typ, gjson.Get(line, "payload").Value())
	if meta := gjson.Get(line, "meta"); meta.IsObject() {
		m := make(map[string]any)
		meta.ForEach(func(k, v gjson.Result) bool {
			m[k.String()] = v.Value()
			return true
		})
		a.Meta = m
	}
	return a, nil
}
