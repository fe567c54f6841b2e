package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/crew/internal/background"
	"github.com/zjrosen/crew/internal/board"
	"github.com/zjrosen/crew/internal/log"
	"github.com/zjrosen/crew/internal/team"
)

// Dispatcher routes tool calls from the model to the background, board,
// and team managers and the file primitives. Structural problems come
// back as tool-result strings, never as panics: the model sees the error
// and can try again.
type Dispatcher struct {
	// Name and Team identify the calling agent (message sender, inbox
	// owner, board item claimer).
	Name string
	Team string

	Background *background.Manager
	Board      *board.Store
	Teams      *team.Manager

	// WorkDir anchors relative file paths. Empty means the process cwd.
	WorkDir string

	// NewTeammateLoop builds the loop work for a freshly spawned
	// teammate; prompt is the spawner's initial instructions, delivered on
	// the teammate's first turn. Required for SpawnTeammate.
	NewTeammateLoop func(mate *team.Teammate, prompt string) background.Work
}

// Dispatch executes one tool call and returns its result string.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall) string {
	log.Debug(log.CatAgent, "tool call", "caller", d.Name, "tool", call.Name)

	switch call.Name {
	case ToolBash:
		return d.bash(ctx, call.Args)
	case ToolReadFile:
		return d.readFile(call.Args)
	case ToolWriteFile:
		return d.writeFile(call.Args)
	case ToolEditFile:
		return d.editFile(call.Args)
	case ToolTaskCreate:
		return d.taskCreate(call.Args)
	case ToolTaskList:
		return d.taskList()
	case ToolTaskUpdate:
		return d.taskUpdate(call.Args)
	case ToolTaskOutput:
		return d.taskOutput(ctx, call.Args)
	case ToolTaskStop:
		return d.taskStop(call.Args)
	case ToolTeamCreate:
		return d.teamCreate(call.Args)
	case ToolTeamDelete:
		return d.teamDelete(call.Args)
	case ToolSendMessage:
		return d.sendMessage(call.Args)
	case ToolCheckInbox:
		return d.checkInbox()
	case ToolTeamStatus:
		return d.teamStatus(call.Args)
	case ToolSpawnTeammate:
		return d.spawnTeammate(call.Args)
	default:
		return "Error: unknown tool: " + call.Name
	}
}

func (d *Dispatcher) bash(ctx context.Context, args map[string]any) string {
	command, ok := strArg(args, "command")
	if !ok || command == "" {
		return "Error: missing required argument: command"
	}

	if boolArg(args, "run_in_background") {
		id := d.Background.Run(background.KindBash, func(ctx context.Context) (string, error) {
			return runShell(ctx, d.WorkDir, command)
		})
		return "started background task " + id
	}

	out, err := runShell(ctx, d.WorkDir, command)
	if err != nil {
		return "Error: " + err.Error()
	}
	return out
}

// runShell executes a command through the shell, returning combined
// output. On failure the output is folded into the error so the caller
// sees what the command printed.
func runShell(ctx context.Context, dir, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "bash", "-c", command) // #nosec G204 -- running caller-supplied commands is this tool's purpose
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := err.Error()
		if trimmed := strings.TrimSpace(string(out)); trimmed != "" {
			msg += ": " + trimmed
		}
		return "", fmt.Errorf("%s", msg)
	}
	return string(out), nil
}

func (d *Dispatcher) resolvePath(path string) string {
	if d.WorkDir != "" && !filepath.IsAbs(path) {
		return filepath.Join(d.WorkDir, path)
	}
	return path
}

func (d *Dispatcher) readFile(args map[string]any) string {
	path, ok := strArg(args, "path")
	if !ok {
		return "Error: missing required argument: path"
	}
	data, err := os.ReadFile(d.resolvePath(path)) // #nosec G304 -- agent-requested path
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(data)
}

func (d *Dispatcher) writeFile(args map[string]any) string {
	path, ok := strArg(args, "path")
	if !ok {
		return "Error: missing required argument: path"
	}
	content, ok := strArg(args, "content")
	if !ok {
		return "Error: missing required argument: content"
	}
	full := d.resolvePath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "Error: " + err.Error()
	}
	if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path)
}

func (d *Dispatcher) editFile(args map[string]any) string {
	path, ok := strArg(args, "path")
	if !ok {
		return "Error: missing required argument: path"
	}
	oldStr, ok := strArg(args, "old_string")
	if !ok {
		return "Error: missing required argument: old_string"
	}
	newStr, ok := strArg(args, "new_string")
	if !ok {
		return "Error: missing required argument: new_string"
	}

	full := d.resolvePath(path)
	data, err := os.ReadFile(full) // #nosec G304 -- agent-requested path
	if err != nil {
		return "Error: " + err.Error()
	}
	content := string(data)
	if !strings.Contains(content, oldStr) {
		return "Error: old_string not found in " + path
	}
	content = strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
		return "Error: " + err.Error()
	}
	return "edited " + path
}

func (d *Dispatcher) taskCreate(args map[string]any) string {
	subject, ok := strArg(args, "subject")
	if !ok || subject == "" {
		return "Error: missing required argument: subject"
	}
	item, err := d.Board.Create(subject)
	if err != nil {
		return "Error: " + err.Error()
	}
	return jsonResult(item)
}

func (d *Dispatcher) taskList() string {
	items, err := d.Board.ListAll()
	if err != nil {
		return "Error: " + err.Error()
	}
	if items == nil {
		items = []board.Item{}
	}
	return jsonResult(items)
}

func (d *Dispatcher) taskUpdate(args map[string]any) string {
	id, ok := strArg(args, "task_id")
	if !ok {
		return "Error: missing required argument: task_id"
	}

	var req board.UpdateRequest
	if status, ok := strArg(args, "status"); ok && status != "" {
		s := board.Status(status)
		req.Status = &s
	}
	if owner, ok := strArg(args, "owner"); ok {
		req.Owner = &owner
	}
	req.AddBlockedBy = strListArg(args, "add_blocked_by")
	req.RemoveBlockedBy = strListArg(args, "remove_blocked_by")
	req.AddDependsOn = strListArg(args, "add_depends_on")
	req.RemoveDependsOn = strListArg(args, "remove_depends_on")

	item, err := d.Board.Update(id, req)
	if err != nil {
		return "Error: " + err.Error()
	}
	return jsonResult(item)
}

func (d *Dispatcher) taskOutput(ctx context.Context, args map[string]any) string {
	id, ok := strArg(args, "task_id")
	if !ok {
		return "Error: missing required argument: task_id"
	}
	block := boolArg(args, "block")
	timeout := time.Duration(intArg(args, "timeout_ms")) * time.Millisecond

	result, err := d.Background.Output(ctx, id, block, timeout)
	if err != nil {
		return "Error: " + err.Error()
	}
	return jsonResult(result)
}

func (d *Dispatcher) taskStop(args map[string]any) string {
	id, ok := strArg(args, "task_id")
	if !ok {
		return "Error: missing required argument: task_id"
	}
	result, err := d.Background.Stop(id)
	if err != nil {
		return "Error: " + err.Error()
	}
	return jsonResult(result)
}

func (d *Dispatcher) teamCreate(args map[string]any) string {
	name, ok := strArg(args, "team")
	if !ok || name == "" {
		return "Error: missing required argument: team"
	}
	result, err := d.Teams.CreateTeam(name)
	if err != nil {
		return "Error: " + err.Error()
	}
	return result
}

func (d *Dispatcher) teamDelete(args map[string]any) string {
	name, ok := strArg(args, "team")
	if !ok || name == "" {
		return "Error: missing required argument: team"
	}
	if err := d.Teams.DeleteTeam(name, d.Name); err != nil {
		return "Error: " + err.Error()
	}
	return "deleted team " + name
}

func (d *Dispatcher) sendMessage(args map[string]any) string {
	content, ok := strArg(args, "content")
	if !ok {
		return "Error: missing required argument: content"
	}
	recipient, _ := strArg(args, "recipient")
	teamName, _ := strArg(args, "team")
	msgType, _ := strArg(args, "type")

	broadcast := team.MessageType(msgType) == team.TypeBroadcast
	// A broadcast needs a team to fan out over; default to the caller's.
	if broadcast && teamName == "" {
		teamName = d.Team
	}

	if err := d.Teams.SendMessage(d.Name, teamName, recipient, team.MessageType(msgType), content); err != nil {
		return "Error: " + err.Error()
	}
	if broadcast {
		return "broadcast sent to team " + teamName
	}
	return "message sent to " + recipient
}

func (d *Dispatcher) checkInbox() string {
	msgs, err := d.Teams.CheckInbox(d.Team, d.Name)
	if err != nil {
		return "Error: " + err.Error()
	}
	if msgs == nil {
		msgs = []team.Message{}
	}
	return jsonResult(msgs)
}

func (d *Dispatcher) teamStatus(args map[string]any) string {
	name, ok := strArg(args, "team")
	if !ok || name == "" {
		return "Error: missing required argument: team"
	}
	status, err := d.Teams.TeamStatus(name)
	if err != nil {
		return "Error: " + err.Error()
	}
	return status
}

func (d *Dispatcher) spawnTeammate(args map[string]any) string {
	name, ok := strArg(args, "name")
	if !ok || name == "" {
		return "Error: missing required argument: name"
	}
	teamName, ok := strArg(args, "team")
	if !ok || teamName == "" {
		return "Error: missing required argument: team"
	}
	prompt, ok := strArg(args, "prompt")
	if !ok || prompt == "" {
		return "Error: missing required argument: prompt"
	}

	var loopFor func(*team.Teammate) background.Work
	if d.NewTeammateLoop != nil {
		loopFor = func(mate *team.Teammate) background.Work {
			return d.NewTeammateLoop(mate, prompt)
		}
	}

	result, err := d.Teams.SpawnTeammate(teamName, name, loopFor)
	if err != nil {
		return "Error: " + err.Error()
	}
	return jsonResult(result)
}

func jsonResult(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(data)
}

// strArg reads a string argument; ok is false when absent or not a string.
func strArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolArg(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// intArg tolerates the float64 that JSON decoding produces.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func strListArg(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
