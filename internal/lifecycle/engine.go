package lifecycle

import (
	"log/slog"

	"umbrella-admin/internal/audit"
	"umbrella-admin/internal/event"
	"umbrella-admin/internal/metrics"
	"umbrella-admin/internal/notify"
	"umbrella-admin/internal/repository"
	"umbrella-admin/internal/rights"
	"umbrella-admin/internal/unit"
)

// Engine holds the collaborators shared by every orchestrator. Events,
// Notifier, Metrics and Logger are optional.
type Engine struct {
	Units    *unit.Hierarchy
	Rights   *rights.Evaluator
	Backend  repository.Backend
	Recorder *audit.Recorder
	Events   event.Bus
	Notifier notify.Notifier
	Metrics  *metrics.Lifecycle
	Logger   *slog.Logger
}

func (e *Engine) validate() error {
	switch {
	case e == nil:
		return &ConfigError{Msg: "engine is nil"}
	case e.Units == nil:
		return &ConfigError{Msg: "engine has no unit hierarchy"}
	case e.Rights == nil:
		return &ConfigError{Msg: "engine has no rights evaluator"}
	case e.Backend == nil:
		return &ConfigError{Msg: "engine has no backend"}
	case e.Recorder == nil:
		return &ConfigError{Msg: "engine has no audit recorder"}
	}
	return nil
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) publish(evt event.Event) {
	if e.Events != nil {
		e.Events.Publish(evt)
	}
}
