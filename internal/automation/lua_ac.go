//go:build !no_automation

package automation

import (
	"context"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"gree-ir-home/internal/climate"
	"gree-ir-home/internal/gree"
)

// registerACModule registers the `ac` global table in a Lua state.
func registerACModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return acOn(L, vm)
	}))

	mod.RawSetString("turn_on", L.NewFunction(func(L *lua.LState) int {
		return acPower(L, e, true)
	}))

	mod.RawSetString("turn_off", L.NewFunction(func(L *lua.LState) int {
		return acPower(L, e, false)
	}))

	mod.RawSetString("set_temperature", L.NewFunction(func(L *lua.LState) int {
		return acSetTemperature(L, e)
	}))

	mod.RawSetString("set_mode", L.NewFunction(func(L *lua.LState) int {
		return acSetMode(L, e)
	}))

	mod.RawSetString("set_fan", L.NewFunction(func(L *lua.LState) int {
		return acSetFan(L, e)
	}))

	mod.RawSetString("set_swing", L.NewFunction(func(L *lua.LState) int {
		return acSetSwing(L, e)
	}))

	mod.RawSetString("get_state", L.NewFunction(func(L *lua.LState) int {
		return acGetState(L, e)
	}))

	mod.RawSetString("after", L.NewFunction(func(L *lua.LState) int {
		return acAfter(L, vm, e)
	}))

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		return acLog(L, e)
	}))

	mod.RawSetString("units", L.NewFunction(func(L *lua.LState) int {
		return acUnits(L, e)
	}))

	L.SetGlobal("ac", mod)
}

const maxHandlersPerScript = 100

// ac.on(type, filter, callback)
func acOn(L *lua.LState, vm *scriptVM) int {
	eventType := L.CheckString(1)
	filterTable := L.CheckTable(2)
	fn := L.CheckFunction(3)

	h := luaEventHandler{
		eventType: eventType,
		fn:        fn,
	}

	if v := filterTable.RawGetString("unit"); v != lua.LNil {
		h.unit = v.String()
	}

	vm.mu.Lock()
	if len(vm.handlers) >= maxHandlersPerScript {
		vm.mu.Unlock()
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	vm.mu.Unlock()

	return 0
}

// ac.turn_on/turn_off(unit_or_name)
func acPower(L *lua.LState, e *Engine, on bool) int {
	target := L.CheckString(1)
	c := resolveUnit(e, target)
	if c == nil {
		e.logger.Warn("unit not found", "target", target)
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if on {
		err = c.TurnOn(ctx)
	} else {
		err = c.TurnOff(ctx)
	}
	if err != nil {
		e.logger.Error("script power command", "err", err, "target", target, "on", on)
	}
	return 0
}

// ac.set_temperature(unit_or_name, value)
func acSetTemperature(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	value := L.CheckInt(2)

	c := resolveUnit(e, target)
	if c == nil {
		e.logger.Warn("unit not found", "target", target)
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.SetTemperature(ctx, value); err != nil {
		e.logger.Error("script set temperature", "err", err, "target", target, "value", value)
	}
	return 0
}

// ac.set_mode(unit_or_name, mode)
func acSetMode(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	token := L.CheckString(2)

	c := resolveUnit(e, target)
	if c == nil {
		e.logger.Warn("unit not found", "target", target)
		return 0
	}

	mode, err := gree.ParseMode(token)
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.SetMode(ctx, mode); err != nil {
		e.logger.Error("script set mode", "err", err, "target", target, "mode", token)
	}
	return 0
}

// ac.set_fan(unit_or_name, speed)
func acSetFan(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	token := L.CheckString(2)

	c := resolveUnit(e, target)
	if c == nil {
		e.logger.Warn("unit not found", "target", target)
		return 0
	}

	speed, err := gree.ParseFanSpeed(token)
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.SetFanSpeed(ctx, speed); err != nil {
		e.logger.Error("script set fan", "err", err, "target", target, "fan", token)
	}
	return 0
}

// ac.set_swing(unit_or_name, position)
func acSetSwing(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)
	token := L.CheckString(2)

	c := resolveUnit(e, target)
	if c == nil {
		e.logger.Warn("unit not found", "target", target)
		return 0
	}

	swing, err := gree.ParseSwing(token)
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.SetSwing(ctx, swing); err != nil {
		e.logger.Error("script set swing", "err", err, "target", target, "swing", token)
	}
	return 0
}

// ac.get_state(unit_or_name) — returns a state table or nil
func acGetState(L *lua.LState, e *Engine) int {
	target := L.CheckString(1)

	c := resolveUnit(e, target)
	if c == nil {
		L.Push(lua.LNil)
		return 1
	}

	snap := c.Snapshot()
	t := L.NewTable()
	t.RawSetString("unit", lua.LString(c.ID()))
	t.RawSetString("name", lua.LString(c.Name()))
	t.RawSetString("mode", lua.LString(snap.Mode.String()))
	t.RawSetString("power", lua.LBool(snap.Mode != gree.ModeOff))
	t.RawSetString("temperature", lua.LNumber(snap.Temperature))
	t.RawSetString("fan", lua.LString(snap.Fan.String()))
	if snap.SwingEnabled {
		t.RawSetString("swing", lua.LString(snap.Swing.String()))
	}
	if snap.CurrentTemperature != nil {
		t.RawSetString("current_temperature", lua.LNumber(*snap.CurrentTemperature))
	}

	L.Push(t)
	return 1
}

// ac.after(seconds, callback) — delayed execution
func acAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{
				Fn:      fn,
				NRet:    0,
				Protect: true,
			}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full")
		}
	}()

	return 0
}

// ac.log(msg)
func acLog(L *lua.LState, e *Engine) int {
	msg := L.CheckString(1)
	e.logger.Info("script log", "msg", msg)
	return 0
}

// ac.units() — returns a table of all units
func acUnits(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	i := 0
	for _, c := range e.units {
		i++
		u := L.NewTable()
		u.RawSetString("unit", lua.LString(c.ID()))
		u.RawSetString("name", lua.LString(c.Name()))
		tbl.RawSetInt(i, u)
	}

	L.Push(tbl)
	return 1
}

// resolveUnit finds a controller by ID or display name.
func resolveUnit(e *Engine, target string) *climate.Controller {
	if c, ok := e.units[target]; ok {
		return c
	}
	for _, c := range e.units {
		if strings.EqualFold(c.Name(), target) {
			return c
		}
	}
	return nil
}
