package luaunit

import (
	"errors"
	"fmt"
	"os"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/logicflow/action"
	"github.com/dshills/logicflow/logic"
	"github.com/dshills/logicflow/match"
)

// Errors surfaced while loading a script.
var (
	// ErrNoSource is returned when neither Source nor Path is set.
	ErrNoSource = errors.New("luaunit: no script source")

	// ErrNoTable is returned when the chunk does not return a table.
	ErrNoTable = errors.New("luaunit: script must return a unit table")

	// ErrNoType is returned when the unit table declares no type binding.
	ErrNoType = errors.New("luaunit: unit table declares no type")

	// ErrClosed is returned as a process failure when the script's
	// runtime was closed while work was in flight.
	ErrClosed = errors.New("luaunit: script runtime is closed")
)

// Config locates and names a scripted unit.
type Config struct {
	// Name overrides the unit table's name field.
	Name string

	// Source is the Lua chunk text. Takes precedence over Path.
	Source string

	// Path is a file containing the Lua chunk.
	Path string

	// QueueSize bounds the executor's operation queue.
	QueueSize int
}

// ScriptUnit is a logic unit backed by a Lua script. Close releases the
// script's Lua state; in-flight invocations queued before Close still
// run.
type ScriptUnit struct {
	unit *logic.Unit
	exec *executor
}

// Unit returns the unit for registration with a pipeline.
func (s *ScriptUnit) Unit() *logic.Unit {
	return s.unit
}

// Close shuts down the script's Lua state.
func (s *ScriptUnit) Close() {
	s.exec.close()
}

// Load compiles the script, evaluates its unit table, and builds a
// logic unit whose stages run on the script's executor goroutine.
func Load(cfg Config) (*ScriptUnit, error) {
	src := cfg.Source
	if src == "" {
		if cfg.Path == "" {
			return nil, ErrNoSource
		}
		data, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("luaunit: read %s: %w", cfg.Path, err)
		}
		src = string(data)
	}

	L := lua.NewState()
	tbl, err := evalUnitTable(L, src)
	if err != nil {
		L.Close()
		return nil, err
	}

	ucfg, validateFn, processFn, err := tableToConfig(tbl)
	if err != nil {
		L.Close()
		return nil, err
	}
	if cfg.Name != "" {
		ucfg.Name = cfg.Name
	}

	exec := newExecutor(L, cfg.QueueSize)

	if validateFn != nil {
		ucfg.Validate = bridgeValidate(exec, validateFn)
	}
	if processFn != nil {
		ucfg.Process = bridgeProcess(exec, processFn)
		ucfg.ProcessOptions.Mode = logic.DispatchMultiple
	}

	u, err := logic.NewUnit(ucfg)
	if err != nil {
		exec.close()
		return nil, err
	}
	return &ScriptUnit{unit: u, exec: exec}, nil
}

// evalUnitTable runs the chunk and returns its unit table.
func evalUnitTable(L *lua.LState, src string) (*lua.LTable, error) {
	if err := L.DoString(src); err != nil {
		return nil, fmt.Errorf("luaunit: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	t, ok := ret.(*lua.LTable)
	if !ok {
		return nil, ErrNoTable
	}
	return t, nil
}

// tableToConfig reads declarative fields out of the unit table.
func tableToConfig(t *lua.LTable) (logic.UnitConfig, *lua.LFunction, *lua.LFunction, error) {
	var cfg logic.UnitConfig

	typePred, err := fieldPredicate(t, "type")
	if err != nil {
		return cfg, nil, nil, err
	}
	if typePred == nil {
		return cfg, nil, nil, ErrNoType
	}
	cfg.Type = typePred

	cancelPred, err := fieldPredicate(t, "cancelType")
	if err != nil {
		return cfg, nil, nil, err
	}
	cfg.CancelType = cancelPred

	if s, ok := t.RawGetString("name").(lua.LString); ok {
		cfg.Name = string(s)
	}
	if n, ok := t.RawGetString("debounceMs").(lua.LNumber); ok {
		cfg.Debounce = time.Duration(float64(n)) * time.Millisecond
	}
	if n, ok := t.RawGetString("throttleMs").(lua.LNumber); ok {
		cfg.Throttle = time.Duration(float64(n)) * time.Millisecond
	}
	if b, ok := t.RawGetString("latest").(lua.LBool); ok {
		cfg.Latest = bool(b)
	}
	if s, ok := t.RawGetString("successType").(lua.LString); ok {
		cfg.ProcessOptions.SuccessType = string(s)
	}
	if s, ok := t.RawGetString("failType").(lua.LString); ok {
		cfg.ProcessOptions.FailType = string(s)
	}

	validateFn, _ := t.RawGetString("validate").(*lua.LFunction)
	processFn, _ := t.RawGetString("process").(*lua.LFunction)
	return cfg, validateFn, processFn, nil
}

// fieldPredicate builds a match predicate from a string, an array of
// strings, or the "*" wildcard.
func fieldPredicate(t *lua.LTable, field string) (match.Predicate, error) {
	switch v := t.RawGetString(field).(type) {
	case lua.LString:
		if string(v) == "*" {
			return match.Any(), nil
		}
		return match.NewExact(string(v))
	case *lua.LTable:
		var types []string
		v.ForEach(func(_, item lua.LValue) {
			if s, ok := item.(lua.LString); ok {
				types = append(types, string(s))
			}
		})
		if len(types) == 0 {
			return nil, fmt.Errorf("luaunit: %s array contains no strings", field)
		}
		return match.Types(types...)
	default:
		return nil, nil
	}
}

// bridgeValidate wraps a Lua validate function as a ValidateFunc. The
// invocation is queued onto the executor; the decision fires when the
// script calls allow or reject.
func bridgeValidate(exec *executor, fn *lua.LFunction) logic.ValidateFunc {
	return func(vc *logic.ValidateContext) {
		queued := exec.do(func(L *lua.LState) {
			// resolved is only touched on the executor goroutine.
			var resolved bool
			allow := L.NewFunction(func(L *lua.LState) int {
				resolved = true
				vc.Allow(argAction(L))
				return 0
			})
			reject := L.NewFunction(func(L *lua.LState) int {
				resolved = true
				vc.Reject(argAction(L))
				return 0
			})

			L.Push(fn)
			L.Push(actionToLua(L, vc.Action()))
			L.Push(allow)
			L.Push(reject)
			if err := L.PCall(3, 0, nil); err != nil && !resolved {
				vc.Reject(action.Action{})
			}
		})
		if !queued {
			vc.Reject(action.Action{})
		}
	}
}

// bridgeProcess wraps a Lua process function as a ProcessFunc running
// in multiple-dispatch mode.
func bridgeProcess(exec *executor, fn *lua.LFunction) logic.ProcessFunc {
	return func(pc *logic.ProcessContext) (any, error) {
		queued := exec.do(func(L *lua.LState) {
			dispatch := L.NewFunction(func(L *lua.LState) int {
				if a := argAction(L); !a.IsZero() {
					pc.Dispatch(a)
				}
				return 0
			})
			done := L.NewFunction(func(L *lua.LState) int {
				pc.Done()
				return 0
			})

			L.Push(fn)
			L.Push(actionToLua(L, pc.Action()))
			L.Push(dispatch)
			L.Push(done)
			if err := L.PCall(3, 0, nil); err != nil {
				pc.Dispatch(fmt.Errorf("luaunit: %w", err))
				pc.Done()
			}
		})
		if !queued {
			return nil, ErrClosed
		}
		return nil, nil
	}
}

// argAction reads the first call argument as an action, tolerating
// calls with no argument.
func argAction(L *lua.LState) action.Action {
	if L.GetTop() >= 1 {
		return luaToAction(L.Get(1))
	}
	return action.Action{}
}
