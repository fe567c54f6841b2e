package agent

// Tool names shared by the dispatcher and the toolset builders.
const (
	ToolBash      = "bash"
	ToolReadFile  = "read_file"
	ToolWriteFile = "write_file"
	ToolEditFile  = "edit_file"

	ToolTaskCreate = "TaskCreate"
	ToolTaskList   = "TaskList"
	ToolTaskUpdate = "TaskUpdate"
	ToolTaskOutput = "TaskOutput"
	ToolTaskStop   = "TaskStop"

	ToolTeamCreate    = "TeamCreate"
	ToolTeamDelete    = "TeamDelete"
	ToolSendMessage   = "SendMessage"
	ToolCheckInbox    = "CheckInbox"
	ToolTeamStatus    = "TeamStatus"
	ToolSpawnTeammate = "SpawnTeammate"
)

func def(name, description string, props map[string]any, required ...string) ToolDef {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return ToolDef{Name: name, Description: description, InputSchema: schema}
}

func strProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func boolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func strListProp(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

// fileTools are the shell and file primitives every agent gets.
func fileTools() []ToolDef {
	return []ToolDef{
		def(ToolBash, "Run a shell command. With run_in_background the command starts as a detached task and the result arrives later as a task notification.",
			map[string]any{
				"command":           strProp("The command to run"),
				"run_in_background": boolProp("Start the command as a background task and return its task id immediately"),
			}, "command"),
		def(ToolReadFile, "Read a file and return its contents.",
			map[string]any{"path": strProp("File path to read")}, "path"),
		def(ToolWriteFile, "Write content to a file, creating it if needed.",
			map[string]any{
				"path":    strProp("File path to write"),
				"content": strProp("Full file content"),
			}, "path", "content"),
		def(ToolEditFile, "Replace an exact string in a file with a new string.",
			map[string]any{
				"path":       strProp("File path to edit"),
				"old_string": strProp("Exact text to replace"),
				"new_string": strProp("Replacement text"),
			}, "path", "old_string", "new_string"),
	}
}

// boardTools are the shared task board primitives.
func boardTools(includeQuery bool) []ToolDef {
	tools := []ToolDef{
		def(ToolTaskCreate, "Create a task on the shared board.",
			map[string]any{"subject": strProp("What the task is about")}, "subject"),
		def(ToolTaskList, "List every task on the shared board.", map[string]any{}),
		def(ToolTaskUpdate, "Update a board task: status, owner, blockers, dependencies.",
			map[string]any{
				"task_id":           strProp("Board task id"),
				"status":            strProp("New status: pending, in_progress, completed, or cancelled"),
				"owner":             strProp("New owner"),
				"add_blocked_by":    strListProp("Task ids to add as blockers"),
				"remove_blocked_by": strListProp("Task ids to remove from blockers"),
				"add_depends_on":    strListProp("Task ids to add as dependencies"),
				"remove_depends_on": strListProp("Task ids to remove from dependencies"),
			}, "task_id"),
	}
	if includeQuery {
		tools = append(tools,
			def(ToolTaskOutput, "Get a background task's status and output. Optionally block until it finishes or the timeout lapses.",
				map[string]any{
					"task_id":    strProp("Background task id"),
					"block":      boolProp("Wait for the task to finish"),
					"timeout_ms": intProp("Max wait in milliseconds when blocking"),
				}, "task_id"),
			def(ToolTaskStop, "Stop a running background task.",
				map[string]any{"task_id": strProp("Background task id")}, "task_id"),
		)
	}
	return tools
}

// LeadTools returns the lead agent's full toolset: shell/file primitives,
// board management, background task control, and team administration.
func LeadTools() []ToolDef {
	tools := fileTools()
	tools = append(tools, boardTools(true)...)
	tools = append(tools,
		def(ToolTeamCreate, "Create a team.",
			map[string]any{"team": strProp("Team name")}, "team"),
		def(ToolTeamDelete, "Delete a team, asking every member to shut down.",
			map[string]any{"team": strProp("Team name")}, "team"),
		def(ToolSendMessage, "Send a directed message to a teammate, or fan out to the whole team with type broadcast.",
			map[string]any{
				"recipient": strProp("Teammate name; required unless type is broadcast"),
				"content":   strProp("Message body"),
				"team":      strProp("Team to resolve the recipient in; empty scans all teams"),
				"type":      strProp("Message type; defaults to message, broadcast fans out"),
			}, "content"),
		def(ToolCheckInbox, "Drain your own inbox and return the pending messages.", map[string]any{}),
		def(ToolTeamStatus, "Show a team's members and their statuses.",
			map[string]any{"team": strProp("Team name")}, "team"),
		def(ToolSpawnTeammate, "Spawn a named teammate onto a team and start its loop.",
			map[string]any{
				"name":   strProp("Teammate name"),
				"team":   strProp("Team to join"),
				"prompt": strProp("Initial instructions delivered on the teammate's first turn"),
			}, "name", "team", "prompt"),
	)
	return tools
}

// TeammateTools returns the teammate toolset: a proper subset of the
// lead's. No team administration and no background task query/stop.
func TeammateTools() []ToolDef {
	tools := fileTools()
	tools = append(tools, boardTools(false)...)
	tools = append(tools,
		def(ToolSendMessage, "Send a directed message to a teammate, or fan out to the whole team with type broadcast.",
			map[string]any{
				"recipient": strProp("Teammate name; required unless type is broadcast"),
				"content":   strProp("Message body"),
				"team":      strProp("Team to resolve the recipient in; empty scans all teams"),
				"type":      strProp("Message type; defaults to message, broadcast fans out"),
			}, "content"),
	)
	return tools
}
