// Package climate owns the desired state of each air-conditioner unit and
// turns validated mutations into transmitted Gree command frames.
package climate

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gree-ir-home/internal/gree"
	"gree-ir-home/internal/store"
	"gree-ir-home/internal/transmit"
)

var (
	// ErrInvalidArgument is returned for values outside an operation's domain.
	// Rejected before any state mutation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSwingUnsupported is returned for swing operations on a unit
	// configured without the swing capability.
	ErrSwingUnsupported = errors.New("swing not supported by this unit")

	// ErrStopped is returned for operations submitted after Stop.
	ErrStopped = errors.New("controller stopped")
)

// Defaults at construction. The physical unit's actual state is unknowable,
// so these describe intent only until the first command is sent.
const (
	defaultTemperature = 24
)

// syncBaseline is the state asserted by SyncStartup. It is a fixed OFF
// baseline, deliberately not derived from the in-memory state: startup
// synchronization must produce the same frame no matter how the unit is
// configured.
var syncBaseline = gree.State{Mode: gree.ModeOff, Temperature: gree.MinTemp, Fan: gree.FanAuto}

// Recorder persists transmitted commands. Satisfied by store.Store.
type Recorder interface {
	AppendCommand(unit string, rec *store.CommandRecord) error
}

// Config describes one unit. Immutable after construction.
type Config struct {
	ID           string
	Name         string
	SwingEnabled bool
}

// Snapshot is a read-only copy of a unit's desired state.
type Snapshot struct {
	Mode               gree.Mode
	Temperature        int
	Fan                gree.FanSpeed
	Swing              gree.Swing
	SwingEnabled       bool
	CurrentTemperature *float64 // external sensor mirror, nil until first report
}

type request struct {
	ctx   context.Context
	fn    func(context.Context) error
	reply chan error
}

// Controller is the single source of truth for one unit's desired state.
// All mutations are serialized through one goroutine: at most one command is
// in flight to the blaster at a time, in arrival order, because the IR
// medium has no acknowledgement and cannot tolerate reordering.
type Controller struct {
	cfg      Config
	tx       transmit.Transmitter
	events   *EventBus
	recorder Recorder // may be nil
	logger   *slog.Logger

	requests chan request
	done     chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	state   gree.State
	current *float64
}

// New creates a controller with the default desired state (off, 24°C, fan
// auto, swing off). Call Start before submitting operations.
func New(cfg Config, tx transmit.Transmitter, events *EventBus, recorder Recorder, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		tx:       tx,
		events:   events,
		recorder: recorder,
		logger:   logger.With("component", "climate", "unit", cfg.ID),
		requests: make(chan request, 16),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		state: gree.State{
			Mode:         gree.ModeOff,
			Temperature:  defaultTemperature,
			Fan:          gree.FanAuto,
			Swing:        gree.SwingOff,
			SwingEnabled: cfg.SwingEnabled,
		},
	}
}

// ID returns the unit id.
func (c *Controller) ID() string { return c.cfg.ID }

// Name returns the display name.
func (c *Controller) Name() string { return c.cfg.Name }

// SwingEnabled reports whether the unit was configured with swing support.
func (c *Controller) SwingEnabled() bool { return c.cfg.SwingEnabled }

// Start launches the command loop.
func (c *Controller) Start() {
	go c.run()
}

// Stop shuts the command loop down. Pending operations fail with ErrStopped.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	<-c.loopDone
}

func (c *Controller) run() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.done:
			for {
				select {
				case req := <-c.requests:
					req.reply <- ErrStopped
				default:
					return
				}
			}
		case req := <-c.requests:
			req.reply <- req.fn(req.ctx)
		}
	}
}

// do submits an operation to the command loop and waits for its outcome.
func (c *Controller) do(ctx context.Context, fn func(context.Context) error) error {
	req := request{ctx: ctx, fn: fn, reply: make(chan error, 1)}
	select {
	case c.requests <- req:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// A submitted dispatch is an atomic unit: wait for it even if the
	// caller's context expires, so its outcome is never lost.
	return <-req.reply
}

// SetTemperature clamps value to the valid range and dispatches. An
// unchanged value still dispatches: re-asserting state over a feedback-free
// medium is a legitimate recovery action.
func (c *Controller) SetTemperature(ctx context.Context, value int) error {
	return c.do(ctx, func(ctx context.Context) error {
		if value < gree.MinTemp {
			value = gree.MinTemp
		}
		if value > gree.MaxTemp {
			value = gree.MaxTemp
		}
		c.mutate(func(s *gree.State) { s.Temperature = value })
		return c.dispatch(ctx)
	})
}

// SetMode switches the operating mode. ModeOff is equivalent to TurnOff.
func (c *Controller) SetMode(ctx context.Context, mode gree.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: mode %d", ErrInvalidArgument, mode)
	}
	return c.do(ctx, func(ctx context.Context) error {
		c.mutate(func(s *gree.State) { s.Mode = mode })
		return c.dispatch(ctx)
	})
}

// SetFanSpeed selects the fan speed.
func (c *Controller) SetFanSpeed(ctx context.Context, speed gree.FanSpeed) error {
	if !speed.Valid() {
		return fmt.Errorf("%w: fan speed %d", ErrInvalidArgument, speed)
	}
	return c.do(ctx, func(ctx context.Context) error {
		c.mutate(func(s *gree.State) { s.Fan = speed })
		return c.dispatch(ctx)
	})
}

// SetSwing selects the louver position. Fails with ErrSwingUnsupported on
// units configured without swing capability.
func (c *Controller) SetSwing(ctx context.Context, swing gree.Swing) error {
	if !c.cfg.SwingEnabled {
		return ErrSwingUnsupported
	}
	if !swing.Valid() {
		return fmt.Errorf("%w: swing %d", ErrInvalidArgument, swing)
	}
	return c.do(ctx, func(ctx context.Context) error {
		c.mutate(func(s *gree.State) { s.Swing = swing })
		return c.dispatch(ctx)
	})
}

// TurnOn powers the unit on, defaulting to cool when it was off. Turning on
// an already-on unit re-asserts the current state.
func (c *Controller) TurnOn(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		c.mutate(func(s *gree.State) {
			if s.Mode == gree.ModeOff {
				s.Mode = gree.ModeCool
			}
		})
		return c.dispatch(ctx)
	})
}

// TurnOff powers the unit off.
func (c *Controller) TurnOff(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		c.mutate(func(s *gree.State) { s.Mode = gree.ModeOff })
		return c.dispatch(ctx)
	})
}

// SyncStartup asserts the fixed OFF baseline without touching the in-memory
// state. Called once at boot: the hardware cannot be read, so the bridge
// establishes a known physical state instead.
func (c *Controller) SyncStartup(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		err := c.send(ctx, syncBaseline)
		c.emitStateChange()
		return err
	})
}

// SetCurrentTemperature updates the external sensor mirror. No command is
// dispatched; the value is display-only.
func (c *Controller) SetCurrentTemperature(value float64) {
	c.mu.Lock()
	c.current = &value
	c.mu.Unlock()
	c.emitStateChange()
}

// Snapshot returns a copy of the desired state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{
		Mode:         c.state.Mode,
		Temperature:  c.state.Temperature,
		Fan:          c.state.Fan,
		Swing:        c.state.Swing,
		SwingEnabled: c.state.SwingEnabled,
	}
	if c.current != nil {
		v := *c.current
		snap.CurrentTemperature = &v
	}
	return snap
}

func (c *Controller) mutate(fn func(*gree.State)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
}

// dispatch encodes the current desired state and sends it. The mutated
// state stays in place on failure: it represents intent, and the caller is
// told the new state is unconfirmed, not that the old one persists.
func (c *Controller) dispatch(ctx context.Context) error {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()

	err := c.send(ctx, state)
	c.emitStateChange()
	return err
}

func (c *Controller) send(ctx context.Context, state gree.State) error {
	frame := gree.Encode(state)
	payload := transmit.EncodePacket(frame)

	c.logger.Debug("sending command",
		"mode", state.Mode.String(),
		"temperature", state.Temperature,
		"fan", state.Fan.String(),
		"swing", state.Swing.String(),
		"frame", hex.EncodeToString(frame[:]),
		"payload", "b64:"+base64.StdEncoding.EncodeToString(payload))

	err := c.tx.Transmit(ctx, payload)
	c.record(state, frame, err)

	if err != nil {
		c.logger.Warn("transmit failed", "err", err)
		c.events.Emit(Event{Type: EventTransmitError, Data: map[string]interface{}{
			"unit":  c.cfg.ID,
			"error": err.Error(),
		}})
		return err
	}
	return nil
}

func (c *Controller) record(state gree.State, frame gree.Frame, sendErr error) {
	if c.recorder == nil {
		return
	}
	rec := &store.CommandRecord{
		Time:        time.Now(),
		Mode:        state.Mode.String(),
		Temperature: state.Temperature,
		Fan:         state.Fan.String(),
		Frame:       hex.EncodeToString(frame[:]),
		Delivered:   sendErr == nil,
	}
	if state.SwingEnabled {
		rec.Swing = state.Swing.String()
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	if err := c.recorder.AppendCommand(c.cfg.ID, rec); err != nil {
		c.logger.Warn("record command", "err", err)
	}
}

func (c *Controller) emitStateChange() {
	snap := c.Snapshot()
	data := map[string]interface{}{
		"unit":        c.cfg.ID,
		"name":        c.cfg.Name,
		"mode":        snap.Mode.String(),
		"power":       snap.Mode != gree.ModeOff,
		"temperature": snap.Temperature,
		"fan":         snap.Fan.String(),
	}
	if snap.SwingEnabled {
		data["swing"] = snap.Swing.String()
	}
	if snap.CurrentTemperature != nil {
		data["current_temperature"] = *snap.CurrentTemperature
	}
	c.events.Emit(Event{Type: EventStateChange, Data: data})
}
