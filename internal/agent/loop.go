package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/zjrosen/crew/internal/background"
	"github.com/zjrosen/crew/internal/log"
	"github.com/zjrosen/crew/internal/team"
)

// Loop drives the lead agent: user input in, model calls and tool
// dispatch until the model goes quiescent, final text out. Finished
// background tasks announce themselves as notification blocks woven into
// the next user message.
type Loop struct {
	Client     Client
	Dispatcher *Dispatcher
	Tools      []ToolDef
	System     string
	Compactor  Compactor

	history []ChatMessage
}

// NewLeadLoop builds a Loop with the lead toolset and the default
// truncating compactor.
func NewLeadLoop(client Client, dispatcher *Dispatcher) *Loop {
	return &Loop{
		Client:     client,
		Dispatcher: dispatcher,
		Tools:      LeadTools(),
		Compactor:  TruncatingCompactor{},
	}
}

// Identity is the line re-injected after a compaction so the agent never
// forgets who it is.
func (l *Loop) Identity() string {
	return identityLine(l.Dispatcher.Name, l.Dispatcher.Team)
}

func identityLine(name, teamName string) string {
	if teamName == "" {
		return fmt.Sprintf("You are %s.", name)
	}
	return fmt.Sprintf("You are %s on team %s.", name, teamName)
}

// Step processes one user input to completion: pending task
// notifications are drained and prepended, then the model is called and
// its tool calls dispatched until it stops asking for tools. Returns the
// model's final text.
func (l *Loop) Step(ctx context.Context, input string) (string, error) {
	notes := l.Dispatcher.Background.DrainNotifications()
	content := input
	if blocks := renderNotifications(notes); blocks != "" {
		content = blocks + "\n" + content
	}
	l.history = append(l.history, ChatMessage{Role: RoleUser, Content: content})

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		l.history = compactWithIdentity(l.history, l.Compactor, l.Identity())

		resp, err := l.Client.Complete(ctx, Request{
			System:   l.System,
			Messages: l.history,
			Tools:    l.Tools,
		})
		if err != nil {
			return "", fmt.Errorf("model call: %w", err)
		}

		if resp.Text != "" {
			l.history = append(l.history, ChatMessage{Role: RoleAssistant, Content: resp.Text})
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		for _, call := range resp.ToolCalls {
			result := l.Dispatcher.Dispatch(ctx, call)
			l.history = append(l.history, ChatMessage{
				Role:       RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}
}

// History returns the current conversation history. Tests and hosts that
// persist sessions read it; nobody mutates it.
func (l *Loop) History() []ChatMessage {
	return l.history
}

// compactWithIdentity runs the compactor and, when it fired, re-injects
// the identity line so the post-compaction history still says who the
// agent is.
func compactWithIdentity(history []ChatMessage, c Compactor, identity string) []ChatMessage {
	if c == nil {
		return history
	}
	compacted, fired := c.Compact(history)
	if fired && identity != "" {
		log.Debug(log.CatAgent, "history compacted", "kept", len(compacted))
		compacted = append(compacted, ChatMessage{Role: RoleUser, Content: identity})
	}
	return compacted
}

// renderNotifications turns drained task notifications into the blocks
// the model reads.
func renderNotifications(notes []background.Notification) string {
	if len(notes) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&sb, "<task-notification><task-id>%s</task-id><status>%s</status><summary>%s</summary></task-notification>\n",
			n.TaskID, n.Status, n.Summary)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderTeamInputs turns a teammate's drained inbox messages and task
// notifications into one user message.
func renderTeamInputs(msgs []team.Message, notes []background.Notification) string {
	var parts []string
	if blocks := renderNotifications(notes); blocks != "" {
		parts = append(parts, blocks)
	}
	for _, msg := range msgs {
		parts = append(parts, fmt.Sprintf("New %s from %s: %s", msg.Type, msg.Sender, msg.Content))
	}
	return strings.Join(parts, "\n")
}

// TeammateRunner implements team.TurnRunner with one model call per
// turn. Tool calls are dispatched and their results appended for the
// next turn; a turn with no tool calls reports quiescent.
type TeammateRunner struct {
	Client     Client
	Dispatcher *Dispatcher
	Tools      []ToolDef
	System     string
	Compactor  Compactor

	// Prompt is the spawner's initial instructions, delivered as the
	// first user message.
	Prompt string

	history []ChatMessage
}

// NewTeammateRunner builds a runner with the teammate toolset and the
// default truncating compactor. prompt is what the spawner asked this
// teammate to do.
func NewTeammateRunner(client Client, dispatcher *Dispatcher, prompt string) *TeammateRunner {
	return &TeammateRunner{
		Client:     client,
		Dispatcher: dispatcher,
		Tools:      TeammateTools(),
		Compactor:  TruncatingCompactor{},
		Prompt:     prompt,
	}
}

// Turn delivers the drained inputs and runs one model call.
func (r *TeammateRunner) Turn(ctx context.Context, msgs []team.Message, notes []background.Notification) (bool, error) {
	if content := renderTeamInputs(msgs, notes); content != "" {
		r.history = append(r.history, ChatMessage{Role: RoleUser, Content: content})
	} else if len(r.history) == 0 {
		// First turn: deliver the spawner's prompt.
		first := r.Prompt
		if first == "" {
			first = "You have no pending messages. Check the task board for claimable work."
		}
		r.history = append(r.history, ChatMessage{Role: RoleUser, Content: first})
	}

	identity := identityLine(r.Dispatcher.Name, r.Dispatcher.Team)
	r.history = compactWithIdentity(r.history, r.Compactor, identity)

	resp, err := r.Client.Complete(ctx, Request{
		System:   r.System,
		Messages: r.history,
		Tools:    r.Tools,
	})
	if err != nil {
		return false, fmt.Errorf("model call: %w", err)
	}

	if resp.Text != "" {
		r.history = append(r.history, ChatMessage{Role: RoleAssistant, Content: resp.Text})
	}
	if len(resp.ToolCalls) == 0 {
		return true, nil
	}

	for _, call := range resp.ToolCalls {
		result := r.Dispatcher.Dispatch(ctx, call)
		r.history = append(r.history, ChatMessage{
			Role:       RoleTool,
			Content:    result,
			ToolCallID: call.ID,
		})
	}
	return false, nil
}

// History returns the runner's conversation history.
func (r *TeammateRunner) History() []ChatMessage {
	return r.history
}
