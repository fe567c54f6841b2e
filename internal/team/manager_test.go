package team

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/crew/internal/background"
)

// setupManager creates a Manager over a temp teams dir, without a
// background manager (teammates register but run no loops).
func setupManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), nil)
}

func TestManager_CreateTeamIdempotent(t *testing.T) {
	m := setupManager(t)

	result, err := m.CreateTeam("alpha")
	require.NoError(t, err)
	require.Equal(t, "created", result)

	result, err = m.CreateTeam("alpha")
	require.NoError(t, err)
	require.Equal(t, "already exists", result)
}

func TestManager_SpawnIntoMissingTeam(t *testing.T) {
	m := setupManager(t)

	_, err := m.SpawnTeammate("ghost", "alice", nil)
	require.ErrorIs(t, err, ErrNoSuchTeam)
}

func TestManager_SpawnTeammate(t *testing.T) {
	m := setupManager(t)
	_, err := m.CreateTeam("alpha")
	require.NoError(t, err)

	result, err := m.SpawnTeammate("alpha", "alice", nil)
	require.NoError(t, err)
	require.Equal(t, SpawnResult{Name: "alice", Team: "alpha", Status: StatusActive}, result)

	// Duplicate names on one team are rejected.
	_, err = m.SpawnTeammate("alpha", "alice", nil)
	require.ErrorContains(t, err, "already exists")
}

func TestManager_SpawnStartsDetachedLoop(t *testing.T) {
	bg := background.NewManager()
	defer bg.Close()
	m := NewManager(t.TempDir(), bg)
	_, err := m.CreateTeam("alpha")
	require.NoError(t, err)

	started := make(chan struct{})
	_, err = m.SpawnTeammate("alpha", "alice", func(mate *Teammate) background.Work {
		require.Equal(t, "alice", mate.Name)
		return func(ctx context.Context) (string, error) {
			close(started)
			return "", nil
		}
	})
	require.NoError(t, err)

	mate, err := m.FindTeammate("alpha", "alice")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(mate.TaskID, "t"), "loop should run as a t-prefixed task")

	select {
	case <-started:
	case <-time.After(time.Second):
		require.Fail(t, "loop work never started")
	}
}

func TestManager_SendMessageDirected(t *testing.T) {
	m := setupManager(t)
	_, err := m.CreateTeam("alpha")
	require.NoError(t, err)
	_, err = m.SpawnTeammate("alpha", "alice", nil)
	require.NoError(t, err)

	require.NoError(t, m.SendMessage("lead", "alpha", "alice", TypeMessage, "please review PR 7"))

	msgs, err := m.CheckInbox("alpha", "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "lead", msgs[0].Sender)
	require.Equal(t, TypeMessage, msgs[0].Type)
	require.Equal(t, "please review PR 7", msgs[0].Content)
}

func TestManager_SendMessageUnknownRecipient(t *testing.T) {
	m := setupManager(t)
	_, err := m.CreateTeam("alpha")
	require.NoError(t, err)

	err = m.SendMessage("lead", "alpha", "nobody", TypeMessage, "hello?")
	require.ErrorIs(t, err, ErrTeammateNotFound)

	err = m.SendMessage("lead", "ghost", "alice", TypeMessage, "hello?")
	require.ErrorIs(t, err, ErrNoSuchTeam)
}

func TestManager_DirectedMessageRequiresRecipient(t *testing.T) {
	m := setupManager(t)
	_, err := m.CreateTeam("alpha")
	require.NoError(t, err)
	_, err = m.SpawnTeammate("alpha", "alice", nil)
	require.NoError(t, err)

	// Only the broadcast type fans out; directed types with no recipient
	// are an error, not a silent broadcast.
	err = m.SendMessage("lead", "alpha", "", TypeMessage, "to whom?")
	require.ErrorContains(t, err, "missing recipient")

	err = m.SendMessage("lead", "alpha", "", TypeShutdownRequest, "wrap up")
	require.ErrorContains(t, err, "missing recipient")

	msgs, err := m.CheckInbox("alpha", "alice")
	require.NoError(t, err)
	require.Empty(t, msgs, "nothing should have been delivered")
}

func TestManager_InvalidMessageType(t *testing.T) {
	m := setupManager(t)
	_, err := m.CreateTeam("alpha")
	require.NoError(t, err)
	_, err = m.SpawnTeammate("alpha", "alice", nil)
	require.NoError(t, err)

	err = m.SendMessage("lead", "alpha", "alice", MessageType("carrier-pigeon"), "hi")
	require.ErrorContains(t, err, "invalid message type")
}

func TestManager_BroadcastExcludesSender(t *testing.T) {
	m := setupManager(t)
	_, err := m.CreateTeam("alpha")
	require.NoError(t, err)
	for _, name := range []string{"alice", "bob", "carol"} {
		_, err = m.SpawnTeammate("alpha", name, nil)
		require.NoError(t, err)
	}

	require.NoError(t, m.SendMessage("alice", "alpha", "", TypeBroadcast, "standup time"))

	for _, name := range []string{"bob", "carol"} {
		msgs, err := m.CheckInbox("alpha", name)
		require.NoError(t, err)
		require.Len(t, msgs, 1, "%s should receive the broadcast", name)
		require.Equal(t, TypeBroadcast, msgs[0].Type)
		require.Equal(t, "alice", msgs[0].Sender)
	}

	msgs, err := m.CheckInbox("alpha", "alice")
	require.NoError(t, err)
	require.Empty(t, msgs, "sender must not receive their own broadcast")
}

func TestManager_FindTeammateScansTeamsInRegistrationOrder(t *testing.T) {
	m := setupManager(t)
	for _, team := range []string{"first", "second"} {
		_, err := m.CreateTeam(team)
		require.NoError(t, err)
	}
	// Same name on both teams: the earlier-registered team wins a scan.
	_, err := m.SpawnTeammate("first", "sam", nil)
	require.NoError(t, err)
	_, err = m.SpawnTeammate("second", "sam", nil)
	require.NoError(t, err)
	_, err = m.SpawnTeammate("second", "only-second", nil)
	require.NoError(t, err)

	mate, err := m.FindTeammate("", "sam")
	require.NoError(t, err)
	require.Equal(t, "first", mate.TeamName)

	mate, err = m.FindTeammate("", "only-second")
	require.NoError(t, err)
	require.Equal(t, "second", mate.TeamName)

	// Exact team lookup is exact.
	mate, err = m.FindTeammate("second", "sam")
	require.NoError(t, err)
	require.Equal(t, "second", mate.TeamName)

	_, err = m.FindTeammate("", "nobody")
	require.ErrorIs(t, err, ErrTeammateNotFound)
}

func TestManager_DeleteTeam(t *testing.T) {
	m := setupManager(t)
	_, err := m.CreateTeam("alpha")
	require.NoError(t, err)

	alice, err := m.Register("alpha", "alice")
	require.NoError(t, err)
	bob, err := m.Register("alpha", "bob")
	require.NoError(t, err)

	require.NoError(t, m.DeleteTeam("alpha", "lead"))

	// Members are flipped to shutdown and got a shutdown_request.
	require.Equal(t, StatusShutdown, alice.Status())
	require.Equal(t, StatusShutdown, bob.Status())

	for _, mate := range []*Teammate{alice, bob} {
		msgs, err := mate.Inbox().Drain()
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, TypeShutdownRequest, msgs[0].Type)
		require.Equal(t, "lead", msgs[0].Sender)
	}

	// The team is gone from the registry.
	_, err = m.TeamStatus("alpha")
	require.ErrorIs(t, err, ErrNoSuchTeam)
	require.Error(t, m.DeleteTeam("alpha", "lead"))
}

func TestManager_CheckInboxWorksWithoutRegistration(t *testing.T) {
	m := setupManager(t)
	_, err := m.CreateTeam("alpha")
	require.NoError(t, err)

	// Deliver straight to the lead's inbox file; the lead has no
	// registry entry.
	inbox := NewInbox(m.InboxPath("alpha", "lead"))
	require.NoError(t, inbox.Append(NewMessage(TypeShutdownResponse, "alice", "done")))

	msgs, err := m.CheckInbox("alpha", "lead")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, TypeShutdownResponse, msgs[0].Type)
}

func TestManager_TeamStatus(t *testing.T) {
	m := setupManager(t)
	_, err := m.CreateTeam("alpha")
	require.NoError(t, err)
	alice, err := m.Register("alpha", "alice")
	require.NoError(t, err)
	_, err = m.Register("alpha", "bob")
	require.NoError(t, err)

	alice.SetStatus(StatusIdle)

	status, err := m.TeamStatus("alpha")
	require.NoError(t, err)
	require.Contains(t, status, "Team alpha: 2 teammate(s)")
	require.Contains(t, status, "alice (idle)")
	require.Contains(t, status, "bob (active)")
}

func TestTeammate_ShutdownIsSticky(t *testing.T) {
	mate := newTeammate("alice", "alpha", NewInbox("unused"))
	require.Equal(t, StatusActive, mate.Status())

	mate.SetStatus(StatusShutdown)
	mate.SetStatus(StatusActive)
	require.Equal(t, StatusShutdown, mate.Status())
}
