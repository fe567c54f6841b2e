package team

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zjrosen/crew/internal/background"
	"github.com/zjrosen/crew/internal/log"
)

// ErrNoSuchTeam is returned for operations on a team that was never
// created (or was deleted).
var ErrNoSuchTeam = errors.New("no such team")

// ErrTeammateNotFound is returned when a recipient cannot be resolved.
var ErrTeammateNotFound = errors.New("teammate not found")

// group is one team: its members plus their registration order.
type group struct {
	name    string
	members map[string]*Teammate
	order   []string
}

// SpawnResult is returned by SpawnTeammate, mirroring what the spawning
// agent sees as the tool result.
type SpawnResult struct {
	Name   string `json:"name"`
	Team   string `json:"team"`
	Status Status `json:"status"`
}

// Manager is the team registry: it creates and deletes teams, routes
// messages to inboxes, and spawns teammate loops.
type Manager struct {
	mu       sync.RWMutex
	teamsDir string
	teams    map[string]*group
	order    []string // team registration order, for cross-team scans

	// bg runs spawned teammate loops as detached "t" tasks. Optional:
	// a nil bg registers teammates without starting loops.
	bg *background.Manager
}

// NewManager creates a Manager rooted at teamsDir.
func NewManager(teamsDir string, bg *background.Manager) *Manager {
	return &Manager{
		teamsDir: teamsDir,
		teams:    make(map[string]*group),
		bg:       bg,
	}
}

// InboxPath returns the inbox file for a named member of a team.
func (m *Manager) InboxPath(teamName, name string) string {
	return filepath.Join(m.teamsDir, teamName, name+".jsonl")
}

// CreateTeam registers a team and its directory. Creating a team that
// already exists is not an error: the result says which arm ran.
func (m *Manager) CreateTeam(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.teams[name]; ok {
		return "already exists", nil
	}

	if err := os.MkdirAll(filepath.Join(m.teamsDir, name), 0o750); err != nil {
		return "", fmt.Errorf("creating team directory: %w", err)
	}

	m.teams[name] = &group{name: name, members: make(map[string]*Teammate)}
	m.order = append(m.order, name)
	log.Info(log.CatTeam, "team created", "team", name)
	return "created", nil
}

// DeleteTeam injects a shutdown_request into every member's inbox, flips
// the members to shutdown, and removes the team from the registry. Inbox
// files are left on disk; undelivered messages stay readable.
func (m *Manager) DeleteTeam(name, sender string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	team, ok := m.teams[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchTeam, name)
	}

	for _, memberName := range team.order {
		mate := team.members[memberName]
		if memberName != sender {
			msg := NewMessage(TypeShutdownRequest, sender, "team "+name+" is shutting down")
			if err := mate.Inbox().Append(msg); err != nil {
				log.ErrorErr(log.CatTeam, "failed to deliver shutdown request", err,
					"team", name, "teammate", memberName)
			}
		}
		mate.SetStatus(StatusShutdown)
	}

	delete(m.teams, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	log.Info(log.CatTeam, "team deleted", "team", name)
	return nil
}

// Register adds a teammate record without starting a loop. Used for
// agents that run their own loop, such as the lead.
func (m *Manager) Register(teamName, name string) (*Teammate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.register(teamName, name)
}

func (m *Manager) register(teamName, name string) (*Teammate, error) {
	team, ok := m.teams[teamName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTeam, teamName)
	}
	if _, exists := team.members[name]; exists {
		return nil, fmt.Errorf("teammate already exists: %s", name)
	}

	mate := newTeammate(name, teamName, NewInbox(m.InboxPath(teamName, name)))
	team.members[name] = mate
	team.order = append(team.order, name)
	return mate, nil
}

// SpawnTeammate registers a teammate on an existing team and starts its
// loop as a detached background task. Spawning into a missing team is an
// error. loopFor builds the loop work from the registered record; a nil
// loopFor registers without starting anything. The returned result is
// what the spawner reports upward.
func (m *Manager) SpawnTeammate(teamName, name string, loopFor func(*Teammate) background.Work) (SpawnResult, error) {
	m.mu.Lock()
	mate, err := m.register(teamName, name)
	m.mu.Unlock()
	if err != nil {
		return SpawnResult{}, err
	}

	if loopFor != nil && m.bg != nil {
		if work := loopFor(mate); work != nil {
			mate.TaskID = m.bg.Run(background.KindTeammate, work)
		}
	}

	log.Info(log.CatTeam, "teammate spawned", "team", teamName, "name", name, "task", mate.TaskID)
	return SpawnResult{Name: name, Team: teamName, Status: mate.Status()}, nil
}

// SendMessage routes a message. Only the broadcast type fans out, to
// every member of the team except the sender; any other type is directed
// and requires a recipient, resolved via FindTeammate, with the message
// landing in their inbox.
func (m *Manager) SendMessage(sender, teamName, recipient string, msgType MessageType, content string) error {
	if msgType == "" {
		msgType = TypeMessage
	}
	if !msgType.Valid() {
		return fmt.Errorf("invalid message type: %s", msgType)
	}

	if msgType == TypeBroadcast {
		return m.broadcast(sender, teamName, content)
	}
	if recipient == "" {
		return fmt.Errorf("missing recipient for %s message", msgType)
	}

	mate, err := m.FindTeammate(teamName, recipient)
	if err != nil {
		return err
	}

	msg := NewMessage(msgType, sender, content)
	if err := mate.Inbox().Append(msg); err != nil {
		return err
	}
	log.Debug(log.CatTeam, "message delivered", "from", sender, "to", mate.Name, "type", msgType)
	return nil
}

// broadcast delivers to every member of the team except the sender.
func (m *Manager) broadcast(sender, teamName, content string) error {
	m.mu.RLock()
	team, ok := m.teams[teamName]
	if !ok {
		m.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNoSuchTeam, teamName)
	}
	recipients := make([]*Teammate, 0, len(team.order))
	for _, name := range team.order {
		if name != sender {
			recipients = append(recipients, team.members[name])
		}
	}
	m.mu.RUnlock()

	msg := NewMessage(TypeBroadcast, sender, content)
	for _, mate := range recipients {
		if err := mate.Inbox().Append(msg); err != nil {
			return fmt.Errorf("broadcasting to %s: %w", mate.Name, err)
		}
	}
	log.Debug(log.CatTeam, "broadcast delivered", "from", sender, "team", teamName, "recipients", len(recipients))
	return nil
}

// CheckInbox drains the named member's inbox. The member does not need a
// registry entry: the lead's inbox is a plain file like any other, and
// messages delivered before a restart are still there.
func (m *Manager) CheckInbox(teamName, name string) ([]Message, error) {
	return NewInbox(m.InboxPath(teamName, name)).Drain()
}

// TeamStatus renders a human-readable summary of a team's members.
func (m *Manager) TeamStatus(teamName string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	team, ok := m.teams[teamName]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSuchTeam, teamName)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Team %s: %d teammate(s)\n", teamName, len(team.order))
	for _, name := range team.order {
		fmt.Fprintf(&sb, "  - %s (%s)\n", name, team.members[name].Status())
	}
	return sb.String(), nil
}

// FindTeammate resolves a teammate. With a team name the lookup is exact;
// with an empty team name, teams are scanned in registration order and
// the first name match wins.
func (m *Manager) FindTeammate(teamName, name string) (*Teammate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if teamName != "" {
		team, ok := m.teams[teamName]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchTeam, teamName)
		}
		mate, ok := team.members[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTeammateNotFound, name)
		}
		return mate, nil
	}

	for _, tn := range m.order {
		if mate, ok := m.teams[tn].members[name]; ok {
			return mate, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTeammateNotFound, name)
}

// Teams returns team names in registration order.
func (m *Manager) Teams() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}
