package team

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/crew/internal/background"
	"github.com/zjrosen/crew/internal/board"
	"github.com/zjrosen/crew/internal/log"
)

// Default idle phase: a teammate with nothing to do sleeps
// DefaultIdleTicks times DefaultIdleInterval before re-checking from the
// top of the loop.
const (
	DefaultIdleTicks    = 30
	DefaultIdleInterval = 2 * time.Second
)

// TurnRunner drives one model turn for a teammate: deliver the drained
// inputs, call the model, apply its tool calls. Returns quiescent=true
// when the model produced no further tool calls.
//
// Compaction and identity re-injection happen inside the runner; the loop
// only guarantees inputs are drained exactly once per turn.
type TurnRunner interface {
	Turn(ctx context.Context, msgs []Message, notes []background.Notification) (quiescent bool, err error)
}

// LoopConfig wires one teammate's loop.
type LoopConfig struct {
	Teammate *Teammate
	Manager  *Manager
	Runner   TurnRunner

	// Background is this loop's own manager, so finished background work
	// announces itself to this teammate and nobody else. Optional.
	Background *background.Manager

	// Board enables work claiming during the idle phase. Optional.
	Board *board.Store

	// IdleTicks and IdleInterval override the defaults (tests shrink them).
	IdleTicks    int
	IdleInterval time.Duration
}

// RunLoop is the teammate's life: process inputs until the model goes
// quiescent, then poll for messages or claimable board work, re-entering
// the loop after each empty idle phase. It exits on a shutdown_request, a
// status flip to shutdown, or cancellation. The signature matches
// background.Work so a loop runs as a detached "t" task.
func RunLoop(ctx context.Context, cfg LoopConfig) (string, error) {
	mate := cfg.Teammate
	ticks := cfg.IdleTicks
	if ticks <= 0 {
		ticks = DefaultIdleTicks
	}
	interval := cfg.IdleInterval
	if interval <= 0 {
		interval = DefaultIdleInterval
	}

	var (
		msgs  []Message
		notes []background.Notification
	)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		quiescent, err := cfg.Runner.Turn(ctx, msgs, notes)
		if err != nil {
			return "", err
		}

		// Shutdown exits promptly after the current model call.
		if req, ok := shutdownRequest(msgs); ok {
			cfg.respondShutdown(req)
			mate.SetStatus(StatusShutdown)
			return "shutdown requested by " + req.Sender, nil
		}
		if mate.Status() == StatusShutdown {
			return "shutdown", nil
		}

		if !quiescent {
			msgs, notes = cfg.collect()
			continue
		}

		// Idle phase: inbox first, then the board.
		mate.SetStatus(StatusIdle)
		msgs, notes = cfg.waitForWork(ctx, ticks, interval)
		if msgs == nil && notes == nil {
			if mate.Status() == StatusShutdown {
				return "shutdown", nil
			}
			if err := ctx.Err(); err != nil {
				return "", err
			}
			// Nothing arrived this phase; go back around and re-check.
			// Only a shutdown_request, a status flip, or cancellation ends
			// the loop.
			log.Debug(log.CatTeam, "idle phase elapsed", "team", mate.TeamName, "name", mate.Name)
			continue
		}
		mate.SetStatus(StatusActive)
	}
}

// collect drains this teammate's inputs: background notifications and
// inbox messages.
func (cfg LoopConfig) collect() ([]Message, []background.Notification) {
	var notes []background.Notification
	if cfg.Background != nil {
		notes = cfg.Background.DrainNotifications()
	}
	msgs, err := cfg.Teammate.Inbox().Drain()
	if err != nil {
		log.ErrorErr(log.CatTeam, "inbox drain failed", err,
			"team", cfg.Teammate.TeamName, "name", cfg.Teammate.Name)
	}
	return msgs, notes
}

// waitForWork polls up to ticks times for something to do. Returns
// (nil, nil) when the idle phase expired, the context was cancelled, or
// the teammate was shut down.
func (cfg LoopConfig) waitForWork(ctx context.Context, ticks int, interval time.Duration) ([]Message, []background.Notification) {
	for tick := 0; tick < ticks; tick++ {
		if ctx.Err() != nil || cfg.Teammate.Status() == StatusShutdown {
			return nil, nil
		}

		msgs, notes := cfg.collect()
		if len(msgs) > 0 || len(notes) > 0 {
			return msgs, notes
		}

		if claimed, ok := cfg.claimItem(); ok {
			return []Message{claimed}, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(interval):
		}
	}
	return nil, nil
}

// claimItem takes the lowest-ID pending, ownerless, unblocked board item:
// owner=self, in_progress. A lost race with another claimer just moves on
// to the next tick.
func (cfg LoopConfig) claimItem() (Message, bool) {
	if cfg.Board == nil {
		return Message{}, false
	}

	items, err := cfg.Board.ListAll()
	if err != nil {
		log.ErrorErr(log.CatBoard, "board list failed during idle claim", err,
			"name", cfg.Teammate.Name)
		return Message{}, false
	}

	for _, item := range items {
		if !item.Claimable() {
			continue
		}
		status := board.StatusInProgress
		owner := cfg.Teammate.Name
		updated, err := cfg.Board.Update(item.ID, board.UpdateRequest{
			Status: &status,
			Owner:  &owner,
		})
		if err != nil {
			continue
		}
		log.Info(log.CatBoard, "item claimed", "id", updated.ID, "owner", owner)
		content := fmt.Sprintf("you claimed task %s: %s", updated.ID, updated.Subject)
		return NewMessage(TypeMessage, "system", content), true
	}
	return Message{}, false
}

// shutdownRequest returns the first shutdown_request in msgs, if any.
func shutdownRequest(msgs []Message) (Message, bool) {
	for _, msg := range msgs {
		if msg.Type == TypeShutdownRequest {
			return msg, true
		}
	}
	return Message{}, false
}

// respondShutdown acknowledges a shutdown request. The requester's team
// may already be deleted from the registry, so the response goes straight
// to the inbox file.
func (cfg LoopConfig) respondShutdown(req Message) {
	mate := cfg.Teammate
	inbox := NewInbox(cfg.Manager.InboxPath(mate.TeamName, req.Sender))
	msg := NewMessage(TypeShutdownResponse, mate.Name, mate.Name+" shutting down")
	if err := inbox.Append(msg); err != nil {
		log.ErrorErr(log.CatTeam, "failed to deliver shutdown response", err,
			"team", mate.TeamName, "to", req.Sender)
	}
}
