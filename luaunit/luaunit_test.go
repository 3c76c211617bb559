package luaunit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dshills/logicflow/action"
	"github.com/dshills/logicflow/logic"
)

// collector records store-bound actions.
type collector struct {
	mu   sync.Mutex
	acts []action.Action
}

func (c *collector) accept(a action.Action) {
	c.mu.Lock()
	c.acts = append(c.acts, a)
	c.mu.Unlock()
}

func (c *collector) find(typ string) (action.Action, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.acts {
		if a.Type == typ {
			return a, true
		}
	}
	return action.Action{}, false
}

func (c *collector) count(typ string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, a := range c.acts {
		if a.Type == typ {
			n++
		}
	}
	return n
}

func runScripted(t *testing.T, src string, acts ...action.Action) *collector {
	t.Helper()

	script, err := Load(Config{Source: src})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(script.Close)

	sink := &collector{}
	p, err := logic.New([]*logic.Unit{script.Unit()}, logic.WithSink(sink.accept))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Stop(ctx)
	})

	for _, a := range acts {
		if err := p.Dispatch(a); err != nil {
			t.Fatalf("Dispatch(%s): %v", a.Type, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	return sink
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "no source",
			cfg:     Config{},
			wantErr: ErrNoSource,
		},
		{
			name:    "not a table",
			cfg:     Config{Source: `return 42`},
			wantErr: ErrNoTable,
		},
		{
			name:    "no type",
			cfg:     Config{Source: `return { name = "x" }`},
			wantErr: ErrNoType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("syntax error", func(t *testing.T) {
		if _, err := Load(Config{Source: `return {`}); err == nil {
			t.Error("Load accepted a broken chunk")
		}
	})
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unit.lua")
	src := `return { name = "filed", type = "PING" }`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	script, err := Load(Config{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer script.Close()

	if got := script.Unit().Name(); got != "filed" {
		t.Errorf("Name() = %q, want filed", got)
	}
}

func TestUnitTableFields(t *testing.T) {
	src := `return {
		name = "tuned",
		type = { "A", "B" },
		cancelType = "STOP",
		debounceMs = 30,
		throttleMs = 40,
		latest = true,
	}`
	script, err := Load(Config{Source: src})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer script.Close()

	u := script.Unit()
	if u.Name() != "tuned" {
		t.Errorf("Name() = %q, want tuned", u.Name())
	}
	if !u.Matches(action.New("A", nil)) || !u.Matches(action.New("B", nil)) {
		t.Error("unit does not match its declared types")
	}
	if u.Matches(action.New("C", nil)) {
		t.Error("unit matches an undeclared type")
	}
	if !u.MatchesCancel(action.New("STOP", nil)) {
		t.Error("unit does not match its cancel type")
	}
	if !u.Latest() {
		t.Error("Latest() = false, want true")
	}
}

func TestWildcardType(t *testing.T) {
	script, err := Load(Config{Source: `return { type = "*" }`})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer script.Close()

	if !script.Unit().Matches(action.New("ANYTHING", nil)) {
		t.Error("wildcard unit did not match")
	}
}

func TestConfigNameOverride(t *testing.T) {
	script, err := Load(Config{
		Name:   "override",
		Source: `return { name = "scripted", type = "A" }`,
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer script.Close()

	if got := script.Unit().Name(); got != "override" {
		t.Errorf("Name() = %q, want override", got)
	}
}

func TestScriptValidateAllow(t *testing.T) {
	src := `return {
		type = "GREET",
		validate = function(act, allow, reject)
			allow({ type = "GREET", payload = string.upper(act.payload) })
		end,
	}`
	sink := runScripted(t, src, action.New("GREET", "hi"))

	a, ok := sink.find("GREET")
	if !ok || a.Payload != "HI" {
		t.Errorf("sink = %v, want GREET with uppercased payload", sink.acts)
	}
}

func TestScriptValidateReject(t *testing.T) {
	src := `return {
		type = "GREET",
		validate = function(act, allow, reject)
			reject()
		end,
	}`
	sink := runScripted(t, src, action.New("GREET", "hi"))

	if sink.count("GREET") != 0 {
		t.Errorf("sink = %v, want the rejected action filtered", sink.acts)
	}
}

func TestScriptValidateErrorRejects(t *testing.T) {
	src := `return {
		type = "GREET",
		validate = function(act, allow, reject)
			error("script bug")
		end,
	}`
	sink := runScripted(t, src, action.New("GREET", "hi"))

	if sink.count("GREET") != 0 {
		t.Errorf("sink = %v, want nothing after a script error", sink.acts)
	}
}

func TestScriptProcessDispatches(t *testing.T) {
	src := `return {
		type = "NUM",
		process = function(act, dispatch, done)
			dispatch({ type = "NUM_DONE", payload = act.payload * 2 })
			done()
		end,
	}`
	sink := runScripted(t, src, action.New("NUM", int64(21)))

	a, ok := sink.find("NUM_DONE")
	if !ok {
		t.Fatalf("sink = %v, want NUM_DONE", sink.acts)
	}
	if a.Payload != int64(42) {
		t.Errorf("NUM_DONE payload = %v (%T), want int64 42", a.Payload, a.Payload)
	}
}

func TestScriptProcessMultipleDispatches(t *testing.T) {
	src := `return {
		type = "FAN",
		process = function(act, dispatch, done)
			dispatch({ type = "OUT", payload = 1 })
			dispatch({ type = "OUT", payload = 2 })
			done()
		end,
	}`
	sink := runScripted(t, src, action.New("FAN", nil))

	if sink.count("OUT") != 2 {
		t.Errorf("sink OUT count = %d, want 2", sink.count("OUT"))
	}
}

func TestScriptProcessErrorDispatchesFailure(t *testing.T) {
	src := `return {
		type = "NUM",
		failType = "NUM_FAILED",
		process = function(act, dispatch, done)
			error("script bug")
		end,
	}`
	sink := runScripted(t, src, action.New("NUM", 1))

	a, ok := sink.find("NUM_FAILED")
	if !ok {
		t.Fatalf("sink = %v, want NUM_FAILED", sink.acts)
	}
	if !a.Err {
		t.Error("failure action not flagged as an error")
	}
}

func TestClosedScriptRejects(t *testing.T) {
	src := `return {
		type = "GREET",
		validate = function(act, allow, reject)
			allow(act)
		end,
	}`
	script, err := Load(Config{Source: src})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	script.Close()

	sink := &collector{}
	p, err := logic.New([]*logic.Unit{script.Unit()}, logic.WithSink(sink.accept))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Stop(ctx)
	}()

	if err := p.Dispatch(action.New("GREET", nil)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if sink.count("GREET") != 0 {
		t.Errorf("sink = %v, want the action filtered once the runtime is closed", sink.acts)
	}
}
