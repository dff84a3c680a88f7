//go:build !no_automation

// Package automation runs user Lua scripts that react to climate events and
// drive the AC units.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"gree-ir-home/internal/climate"
)

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// luaEventHandler is a registered Lua callback for a specific event pattern.
type luaEventHandler struct {
	eventType string
	unit      string // filter: only match this unit ID (empty = any)
	fn        *lua.LFunction
}

// scriptVM is a running Lua VM for a single script.
type scriptVM struct {
	state    *lua.LState
	commands chan func(*lua.LState) // serializes Lua access
	handlers []luaEventHandler
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers
}

// Engine manages Lua VMs and dispatches EventBus events to scripts.
type Engine struct {
	units   map[string]*climate.Controller
	events  *climate.EventBus
	manager *Manager
	logger  *slog.Logger

	mu    sync.Mutex
	vms   map[string]*scriptVM // script ID -> running VM
	unsub func()
}

// NewEngine creates a new automation engine.
func NewEngine(units []*climate.Controller, events *climate.EventBus, mgr *Manager, logger *slog.Logger) *Engine {
	byID := make(map[string]*climate.Controller, len(units))
	for _, c := range units {
		byID[c.ID()] = c
	}
	return &Engine{
		units:   byID,
		events:  events,
		manager: mgr,
		logger:  logger.With("component", "automation"),
		vms:     make(map[string]*scriptVM),
	}
}

// Start subscribes to the EventBus and loads all enabled scripts.
func (e *Engine) Start() {
	e.unsub = e.events.OnAll(func(event climate.Event) {
		e.dispatchEvent(event)
	})

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}

	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.logger.Info("automation engine started", "scripts", len(e.vms))
}

// Stop cancels all VMs and unsubscribes from EventBus.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}

	if e.unsub != nil {
		e.unsub()
	}

	e.logger.Info("automation engine stopped")
}

// ReloadScript stops the old VM (if any) and starts a new one.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}

	if !s.Meta.Enabled {
		return nil // disabled, just stop
	}

	return e.startScript(s)
}

// StopScript stops a running script VM.
func (e *Engine) StopScript(id string) {
	e.stopScript(id)
}

// RunScript executes a script in a temporary sandboxed VM for testing.
func (e *Engine) RunScript(id string) *RunResult {
	start := time.Now()

	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{OK: false, Error: "script not found: " + err.Error(), Duration: time.Since(start).String()}
	}

	return e.RunLuaCode(s.LuaCode)
}

// RunLuaCode executes arbitrary Lua code in a temporary sandboxed VM.
// It runs the top-level code, then invokes each handler the script registered
// via ac.on with a synthetic event, and captures any log output.
func (e *Engine) RunLuaCode(code string) *RunResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	defer L.Close()

	sandbox(L)
	L.SetContext(ctx)

	vm := &scriptVM{
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}

	registerACModule(L, vm, e)

	// Capture logs
	var logs []string
	var logMu sync.Mutex

	if tbl, ok := L.GetGlobal("ac").(*lua.LTable); ok {
		tbl.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
			msg := L.CheckString(1)
			logMu.Lock()
			logs = append(logs, msg)
			logMu.Unlock()
			e.logger.Info("script run log", "msg", msg)
			return 0
		}))
	}

	if err := L.DoString(code); err != nil {
		return &RunResult{OK: false, Error: runError(err), Logs: logs, Duration: time.Since(start).String()}
	}

	vm.mu.Lock()
	handlers := make([]luaEventHandler, len(vm.handlers))
	copy(handlers, vm.handlers)
	vm.mu.Unlock()

	for _, h := range handlers {
		eventTable := L.NewTable()
		eventTable.RawSetString("type", lua.LString(h.eventType))
		if h.unit != "" {
			eventTable.RawSetString("unit", lua.LString(h.unit))
		}

		if err := L.CallByParam(lua.P{
			Fn:      h.fn,
			NRet:    0,
			Protect: true,
		}, eventTable); err != nil {
			return &RunResult{OK: false, Error: runError(err), Logs: logs, Duration: time.Since(start).String()}
		}
	}

	return &RunResult{OK: true, Logs: logs, Duration: time.Since(start).String()}
}

func runError(err error) string {
	s := err.Error()
	if strings.Contains(s, "context deadline exceeded") {
		return "timeout (5s)"
	}
	return s
}

// sandbox removes dangerous libs and functions from a Lua state.
func sandbox(L *lua.LState) {
	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("debug", lua.LNil)
	L.SetGlobal("package", lua.LNil)
}

func (e *Engine) stopScript(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("script stopped", "id", id)
	}
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())

	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	sandbox(L)

	vm := &scriptVM{
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}

	registerACModule(L, vm, e)

	// Execute the script to register handlers
	if err := L.DoString(s.LuaCode); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	e.vms[s.ID] = vm
	e.mu.Unlock()

	// Command loop goroutine, exits when context is cancelled.
	go func() {
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

// dispatchEvent routes an EventBus event to all matching Lua handlers.
func (e *Engine) dispatchEvent(event climate.Event) {
	e.mu.Lock()
	vmsCopy := make(map[string]*scriptVM, len(e.vms))
	for k, v := range e.vms {
		vmsCopy[k] = v
	}
	e.mu.Unlock()

	for _, vm := range vmsCopy {
		vm.mu.Lock()
		handlers := make([]luaEventHandler, len(vm.handlers))
		copy(handlers, vm.handlers)
		vm.mu.Unlock()

		for _, h := range handlers {
			if !matchesHandler(h, event) {
				continue
			}

			fn := h.fn
			// Send to the VM's command channel for thread-safe Lua
			// execution. Check context first to avoid a stopped VM.
			select {
			case <-vm.ctx.Done():
				break
			case vm.commands <- func(L *lua.LState) {
				e.callHandler(L, fn, event)
			}:
			default:
				e.logger.Warn("script command channel full, dropping event")
			}
		}
	}
}

func matchesHandler(h luaEventHandler, event climate.Event) bool {
	if h.eventType != event.Type {
		return false
	}

	if h.unit != "" {
		data, ok := event.Data.(map[string]interface{})
		if !ok {
			return false
		}
		if unit, _ := data["unit"].(string); unit != h.unit {
			return false
		}
	}

	return true
}

func (e *Engine) callHandler(L *lua.LState, fn *lua.LFunction, event climate.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "err", r)
		}
	}()

	eventTable := L.NewTable()
	eventTable.RawSetString("type", lua.LString(event.Type))

	if data, ok := event.Data.(map[string]interface{}); ok {
		for k, v := range data {
			eventTable.RawSetString(k, goToLua(L, v))
		}
	}

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, eventTable); err != nil {
		e.logger.Error("lua handler error", "err", err)
	}
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case map[string]interface{}:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []interface{}:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
