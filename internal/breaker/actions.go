package breaker

import (
	"fmt"

	"go.uber.org/zap"
)

// ActionKind enumerates the closed set of things a tripped threshold can do.
type ActionKind string

const (
	ActionLog          ActionKind = "log"
	ActionNotify       ActionKind = "notify"
	ActionPauseTrading ActionKind = "pause_trading"
	ActionShutdown     ActionKind = "shutdown"
	ActionRebalance    ActionKind = "rebalance"
	ActionCustom       ActionKind = "custom"
)

// Action binds a kind to an optional note and, for ActionCustom, a callable.
type Action struct {
	Kind ActionKind
	Note string
	Fn   func() error // required for ActionCustom, ignored otherwise
}

// Hooks are the external collaborators behind the non-trivial action kinds.
// Any nil hook degrades to a log line; the breaker must stay functional with
// no collaborators wired at all.
type Hooks struct {
	Notify       func(message string) error
	PauseTrading func() error
	Shutdown     func() error
	Rebalance    func() error
}

// Trip describes the threshold crossing an action is reacting to.
type Trip struct {
	Level       float64
	Drawdown    float64
	Description string
}

// executor dispatches actions uniformly: every failure (error or panic) is
// caught and logged so one bad action never blocks the rest.
type executor struct {
	hooks  Hooks
	logger *zap.Logger
}

func (x *executor) execute(a Action, trip Trip) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.Error("breaker action panicked",
				zap.String("action", string(a.Kind)),
				zap.Float64("level", trip.Level),
				zap.Any("panic", r),
			)
		}
	}()

	if err := x.dispatch(a, trip); err != nil {
		x.logger.Error("breaker action failed",
			zap.String("action", string(a.Kind)),
			zap.Float64("level", trip.Level),
			zap.Error(err),
		)
	}
}

func (x *executor) dispatch(a Action, trip Trip) error {
	msg := fmt.Sprintf("circuit breaker: drawdown %.2f%% crossed -%.1f%% (%s)",
		trip.Drawdown, trip.Level, trip.Description)
	if a.Note != "" {
		msg += ": " + a.Note
	}

	switch a.Kind {
	case ActionLog:
		x.logger.Warn(msg, zap.Float64("drawdown", trip.Drawdown), zap.Float64("level", trip.Level))
		return nil
	case ActionNotify:
		if x.hooks.Notify == nil {
			x.logger.Warn("notify hook not wired", zap.String("message", msg))
			return nil
		}
		return x.hooks.Notify(msg)
	case ActionPauseTrading:
		if x.hooks.PauseTrading == nil {
			x.logger.Warn("pause_trading hook not wired")
			return nil
		}
		return x.hooks.PauseTrading()
	case ActionShutdown:
		if x.hooks.Shutdown == nil {
			x.logger.Warn("shutdown hook not wired")
			return nil
		}
		return x.hooks.Shutdown()
	case ActionRebalance:
		if x.hooks.Rebalance == nil {
			x.logger.Warn("rebalance hook not wired")
			return nil
		}
		return x.hooks.Rebalance()
	case ActionCustom:
		if a.Fn == nil {
			return fmt.Errorf("custom action has no callable")
		}
		return a.Fn()
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// ParseActions maps configured action names onto Actions. Unknown names are
// rejected so a typo in config surfaces at startup, not at trip time.
func ParseActions(names []string) ([]Action, error) {
	actions := make([]Action, 0, len(names))
	for _, name := range names {
		switch ActionKind(name) {
		case ActionLog, ActionNotify, ActionPauseTrading, ActionShutdown, ActionRebalance:
			actions = append(actions, Action{Kind: ActionKind(name)})
		default:
			return nil, fmt.Errorf("unknown breaker action %q", name)
		}
	}
	return actions, nil
}
