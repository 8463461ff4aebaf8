// Package scripting runs user Lua hooks that shape how routes are walked and
// which server messages are kept away from the position estimator.
package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nightfall-go/mapper/internal/route"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM. A mutex serializes calls, and Reload
// builds a fresh VM before swapping it in, so a broken edit keeps the old
// scripts running.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	dir string
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every script in dir. A missing
// directory yields an engine with no hooks.
func NewEngine(dir string, log *zap.Logger) (*Engine, error) {
	e := &Engine{dir: dir, log: log}
	vm, err := e.build()
	if err != nil {
		return nil, err
	}
	e.vm = vm
	return e, nil
}

func (e *Engine) build() (*lua.LState, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("log", vm.NewFunction(e.luaLog))
	if err := e.loadDir(vm, e.dir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return vm, nil
}

// loadDir loads all .lua files in a directory, in name order.
func (e *Engine) loadDir(vm *lua.LState, dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("已載入腳本", zap.String("file", path))
	}
	return nil
}

// Reload rebuilds the VM from disk. On error the current VM stays active.
func (e *Engine) Reload() error {
	vm, err := e.build()
	if err != nil {
		return err
	}
	e.mu.Lock()
	old := e.vm
	e.vm = vm
	e.mu.Unlock()
	if old != nil {
		old.Close()
	}
	e.log.Info("腳本已重新載入", zap.String("dir", e.dir))
	return nil
}

// WalkCommands asks walk_commands(step) for the commands that carry out one
// route step, e.g. {"open door", "n"} for a door. Without the hook, or when
// it returns nothing usable, the exit's own command is used.
func (e *Engine) WalkCommands(step route.Step) []string {
	fallback := []string{step.Command}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vm == nil {
		return fallback
	}

	fn := e.vm.GetGlobal("walk_commands")
	if fn == lua.LNil {
		return fallback
	}

	t := e.vm.NewTable()
	t.RawSetString("from", lua.LNumber(step.From))
	t.RawSetString("to", lua.LNumber(step.To))
	t.RawSetString("dir", lua.LString(step.Dir.Command()))
	t.RawSetString("command", lua.LString(step.Command))
	t.RawSetString("kind", lua.LString(step.Kind))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("walk_commands 執行錯誤", zap.Error(err))
		return fallback
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	switch v := result.(type) {
	case lua.LString:
		if v == "" {
			return fallback
		}
		return []string{string(v)}
	case *lua.LTable:
		var cmds []string
		v.ForEach(func(_, val lua.LValue) {
			if s, ok := val.(lua.LString); ok && s != "" {
				cmds = append(cmds, string(s))
			}
		})
		if len(cmds) == 0 {
			return fallback
		}
		return cmds
	default:
		return fallback
	}
}

// IgnoreMessage reports whether ignore_message(text) wants the message kept
// out of position estimation.
func (e *Engine) IgnoreMessage(text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vm == nil {
		return false
	}

	fn := e.vm.GetGlobal("ignore_message")
	if fn == lua.LNil {
		return false
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(text)); err != nil {
		e.log.Error("ignore_message 執行錯誤", zap.Error(err))
		return false
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return lua.LVAsBool(result)
}

// luaLog exposes log(msg) to scripts.
func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info("腳本", zap.String("msg", L.CheckString(1)))
	return 0
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vm != nil {
		e.vm.Close()
		e.vm = nil
	}
}
