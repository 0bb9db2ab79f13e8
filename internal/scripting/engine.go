package scripting

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine owns one sandboxed VM loaded from a script file and dispatches hook
// calls into it.
//
// Engine is safe for concurrent use; calls are serialized because an LState
// is single-threaded.
type Engine struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	path   string
	logger *zap.Logger
}

// Load creates a sandboxed VM, registers the bot module and executes path.
//
// Precondition: path must name a readable Lua file; instLimit >= 0.
// Postcondition: Returns a ready Engine or a non-nil error.
func Load(path string, instLimit int, logger *zap.Logger) (*Engine, error) {
	L := NewSandboxedState()
	registerModules(L, logger)
	if err := Limited(L, instLimit, func() error { return L.DoFile(path) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("scripting: loading %q: %w", path, err)
	}
	return &Engine{L: L, limit: instLimit, path: path, logger: logger}, nil
}

// Has reports whether the script defines a global function named hook.
func (e *Engine) Has(hook string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.L.GetGlobal(hook).Type() == lua.LTFunction
}

// CallHook calls the named Lua global function. Returns LNil if the hook is
// not defined. Lua runtime errors, including an exhausted instruction budget,
// are logged at Warn level and never propagated.
//
// Postcondition: Returns the first return value of the hook, or LNil.
func (e *Engine) CallHook(hook string, args ...lua.LValue) lua.LValue {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil
	}

	err := Limited(e.L, e.limit, func() error {
		return e.L.CallByParam(lua.P{
			Fn:      fn,
			NRet:    1,
			Protect: true,
		}, args...)
	})
	if err != nil {
		e.logger.Warn("scripting: Lua runtime error",
			zap.String("script", e.path),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil
	}

	ret := e.L.Get(-1)
	e.L.Pop(1)
	return ret
}

// CallNumber calls hook and converts its result to a number.
//
// Postcondition: ok is false when the hook is missing, fails, or returns a non-number.
func (e *Engine) CallNumber(hook string, args ...lua.LValue) (float64, bool) {
	ret := e.CallHook(hook, args...)
	n, isNum := ret.(lua.LNumber)
	if !isNum {
		if ret != lua.LNil {
			e.logger.Warn("scripting: hook returned a non-number",
				zap.String("hook", hook),
				zap.String("type", ret.Type().String()),
			)
		}
		return 0, false
	}
	return float64(n), true
}

// Close releases the VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.L.Close()
}
