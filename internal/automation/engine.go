package automation

import (
	"context"
	"net/http"
	"time"

	"github.com/switchyard-hub/switchyard/internal/infrastructure/config"
	"github.com/switchyard-hub/switchyard/internal/state"
)

// Logger is the narrow logging surface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Hub is the fan-out surface the engine drives. A toggle broadcast
// carries only the command; the hardware controller applies it and
// reports the resulting state back on its own.
type Hub interface {
	BroadcastToggle(switchID string, on bool)
	BroadcastSystem(patch state.SystemPatch)
	BroadcastState(doc state.Document)
}

const keepaliveTimeout = 10 * time.Second

// Engine runs the periodic automation loop: the night/morning ambient
// protocol, schedule and timer due-checks, and the anti-idle keepalive.
//
// All time-of-day rules are evaluated on the configured fixed UTC
// offset, never the host timezone.
type Engine struct {
	store  *state.Store
	hub    Hub
	repo   state.Repository
	logger Logger
	cfg    config.AutomationConfig
	loc    *time.Location

	httpClient *http.Client
	now        func() time.Time
}

// NewEngine wires the automation loop. SetRepository enables
// persistence of fired timers.
func NewEngine(store *state.Store, hub Hub, cfg config.AutomationConfig, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		store:      store,
		hub:        hub,
		logger:     logger,
		cfg:        cfg,
		loc:        cfg.Location(),
		httpClient: &http.Client{Timeout: keepaliveTimeout},
		now:        time.Now,
	}
}

// SetRepository enables best-effort persistence after a timer fires.
func (e *Engine) SetRepository(repo state.Repository) { e.repo = repo }

// Run evaluates the loop once per tick interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("automation engine started",
		"tick_interval", e.cfg.TickInterval,
		"utc_offset_minutes", e.cfg.UTCOffsetMinutes,
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("automation engine stopped")
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one evaluation pass. Steps are independent: a rule that
// does not fire leaves no trace, and each fired rule broadcasts its own
// effects.
func (e *Engine) tick(ctx context.Context) {
	now := e.now().In(e.loc)
	hm := now.Format("15:04")

	e.checkNightWindow(ctx, hm)
	e.checkMorningRestore(ctx, hm)
	e.checkSchedules(hm)
	e.checkTimers(ctx, now)
	e.checkKeepalive(ctx, now, hm)
}

// checkNightWindow suppresses the ambient mode inside the night window.
// Suppression only applies while switch1 is off; a lit switch1 means
// someone is still up and the ambient display stays on. Re-checked
// every tick, so a mode set manually during the night is suppressed
// again within one interval.
func (e *Engine) checkNightWindow(ctx context.Context, hm string) {
	if !inWindow(hm, e.cfg.NightStart, e.cfg.NightEnd) {
		return
	}
	if e.store.Snapshot().Switches["switch1"] {
		return
	}
	doc, changed := e.store.SuppressAmbient()
	if !changed {
		return
	}

	e.logger.Info("night window: ambient mode suppressed", "saved_mode", doc.System.SavedAmbientMode)
	zero := 0
	e.hub.BroadcastSystem(state.SystemPatch{AmbientMode: &zero})
	e.hub.BroadcastState(doc)
	e.persist(ctx, doc)
}

// checkMorningRestore brings the remembered ambient mode back at the
// end of the night window.
func (e *Engine) checkMorningRestore(ctx context.Context, hm string) {
	if hm != e.cfg.NightEnd {
		return
	}
	doc, changed := e.store.RestoreAmbient()
	if !changed {
		return
	}

	mode := doc.System.AmbientMode
	e.logger.Info("morning restore: ambient mode restored", "mode", mode)
	e.hub.BroadcastSystem(state.SystemPatch{AmbientMode: &mode})
	e.hub.BroadcastState(doc)
	e.persist(ctx, doc)
}

// checkSchedules fires daily schedules on exact HH:MM match. Only the
// command goes out; hardware applies it and reports the state change
// back, which keeps a dead controller from producing phantom state.
func (e *Engine) checkSchedules(hm string) {
	doc := e.store.Snapshot()
	for _, id := range state.SwitchIDs {
		sched, ok := doc.Schedules[id]
		if !ok || !sched.Active || sched.Time != hm {
			continue
		}
		e.logger.Info("schedule due", "switch", id, "action", sched.Action)
		e.hub.BroadcastToggle(id, sched.Action.On())
	}
}

// checkTimers fires one-shot timers whose end time falls within the
// tolerance window of now. The timer is deactivated in the same pass,
// so a fired timer can never fire twice in one process lifetime.
func (e *Engine) checkTimers(ctx context.Context, now time.Time) {
	tolerance := time.Duration(e.cfg.TimerTolerance) * time.Second
	doc := e.store.Snapshot()

	for _, id := range state.SwitchIDs {
		timer, ok := doc.Timers[id]
		if !ok || !timer.Active || timer.EndAt.IsZero() {
			continue
		}
		diff := timer.EndAt.Sub(now)
		if diff < -tolerance || diff > tolerance {
			continue
		}

		e.logger.Info("timer due", "switch", id, "action", timer.Action, "end_at", timer.EndAt)
		e.hub.BroadcastToggle(id, timer.Action.On())

		updated, err := e.store.DeactivateTimer(id)
		if err != nil {
			e.logger.Error("deactivating fired timer", "switch", id, "error", err)
			continue
		}
		e.hub.BroadcastState(updated)
		e.persist(ctx, updated)
	}
}

// checkKeepalive pokes the configured URL on whole keepalive marks,
// outside the quiet window. Failures are logged and ignored; the next
// mark retries.
func (e *Engine) checkKeepalive(ctx context.Context, now time.Time, hm string) {
	if e.cfg.KeepaliveURL == "" || e.cfg.KeepaliveEvery <= 0 {
		return
	}
	if now.Minute()%e.cfg.KeepaliveEvery != 0 {
		return
	}
	if inWindow(hm, e.cfg.QuietStart, e.cfg.QuietEnd) {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.KeepaliveURL, nil)
	if err != nil {
		e.logger.Error("building keepalive request", "error", err)
		return
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Warn("keepalive request failed", "error", err)
		return
	}
	resp.Body.Close() //nolint:errcheck
	e.logger.Debug("keepalive sent", "status", resp.StatusCode)
}

func (e *Engine) persist(ctx context.Context, doc state.Document) {
	if e.repo == nil {
		return
	}
	if err := e.repo.Save(ctx, doc); err != nil {
		e.logger.Error("persisting state document", "error", err)
	}
}

// inWindow reports whether the "HH:MM" clock value falls inside
// [start, end). A window with start after end wraps midnight.
func inWindow(hm, start, end string) bool {
	if start <= end {
		return hm >= start && hm < end
	}
	return hm >= start || hm < end
}
