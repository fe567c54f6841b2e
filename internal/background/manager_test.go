package background

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// waitTerminal blocks until the task reaches a terminal status.
func waitTerminal(t *testing.T, m *Manager, id string) Result {
	t.Helper()
	res, err := m.Output(context.Background(), id, true, 5*time.Second)
	require.NoError(t, err)
	require.True(t, res.Status.Terminal(), "task %s should have finished", id)
	return res
}

func TestManager_RunAssignsPrefixedIDs(t *testing.T) {
	m := NewManager()
	defer m.Close()

	bashID := m.Run(KindBash, func(ctx context.Context) (string, error) { return "", nil })
	agentID := m.Run(KindAgent, func(ctx context.Context) (string, error) { return "", nil })
	mateID := m.Run(KindTeammate, func(ctx context.Context) (string, error) { return "", nil })

	require.True(t, strings.HasPrefix(bashID, "b"))
	require.True(t, strings.HasPrefix(agentID, "a"))
	require.True(t, strings.HasPrefix(mateID, "t"))
}

func TestManager_CompletedTaskOutput(t *testing.T) {
	m := NewManager()
	defer m.Close()

	id := m.Run(KindBash, func(ctx context.Context) (string, error) {
		return "hello world", nil
	})

	res := waitTerminal(t, m, id)
	require.Equal(t, StatusCompleted, res.Status)
	require.Equal(t, "hello world", res.Output)
}

func TestManager_ErrorOutputPrefix(t *testing.T) {
	m := NewManager()
	defer m.Close()

	id := m.Run(KindBash, func(ctx context.Context) (string, error) {
		return "partial", errors.New("exit status 1")
	})

	res := waitTerminal(t, m, id)
	require.Equal(t, StatusError, res.Status)
	require.Equal(t, "Error: exit status 1", res.Output)
}

func TestManager_PanicBecomesError(t *testing.T) {
	m := NewManager()
	defer m.Close()

	id := m.Run(KindBash, func(ctx context.Context) (string, error) {
		panic("boom")
	})

	res := waitTerminal(t, m, id)
	require.Equal(t, StatusError, res.Status)
	require.Equal(t, "Error: panic: boom", res.Output)
}

func TestManager_UnknownTask(t *testing.T) {
	m := NewManager()
	defer m.Close()

	_, err := m.Output(context.Background(), "b999999", false, 0)
	require.ErrorIs(t, err, ErrTaskNotFound)

	_, err = m.Stop("b999999")
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestManager_NonBlockingSnapshotWhileRunning(t *testing.T) {
	m := NewManager()
	defer m.Close()

	release := make(chan struct{})
	id := m.Run(KindBash, func(ctx context.Context) (string, error) {
		<-release
		return "done", nil
	})

	res, err := m.Output(context.Background(), id, false, 0)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, res.Status)
	require.Empty(t, res.Output)

	close(release)
	waitTerminal(t, m, id)
}

func TestManager_BlockingOutputReleasedByCompletion(t *testing.T) {
	m := NewManager()
	defer m.Close()

	id := m.Run(KindBash, func(ctx context.Context) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return "slow", nil
	})

	start := time.Now()
	res, err := m.Output(context.Background(), id, true, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	require.Equal(t, "slow", res.Output)
	require.Less(t, time.Since(start), 2*time.Second, "wait should end at completion, not at the timeout")
}

func TestManager_BlockingOutputTimeoutIsNotAnError(t *testing.T) {
	m := NewManager()
	defer m.Close()

	release := make(chan struct{})
	defer close(release)
	id := m.Run(KindBash, func(ctx context.Context) (string, error) {
		<-release
		return "", nil
	})

	res, err := m.Output(context.Background(), id, true, 25*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, res.Status)
}

func TestManager_TasksRunInParallel(t *testing.T) {
	m := NewManager()
	defer m.Close()

	durations := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond}
	start := time.Now()
	ids := make([]string, len(durations))
	for i, d := range durations {
		d := d
		ids[i] = m.Run(KindBash, func(ctx context.Context) (string, error) {
			time.Sleep(d)
			return d.String(), nil
		})
	}

	for i, id := range ids {
		res := waitTerminal(t, m, id)
		require.Equal(t, StatusCompleted, res.Status)
		require.Equal(t, durations[i].String(), res.Output)
	}

	// Serial execution would need at least 300ms; concurrent workers
	// finish in roughly the longest sleep.
	require.Less(t, time.Since(start), 300*time.Millisecond,
		"tasks should run concurrently, not back to back")
}

func TestManager_ConcurrentBlockersAllReleased(t *testing.T) {
	m := NewManager()
	defer m.Close()

	release := make(chan struct{})
	id := m.Run(KindBash, func(ctx context.Context) (string, error) {
		<-release
		return "fanout", nil
	})

	const blockers = 8
	results := make([]Result, blockers)
	var wg sync.WaitGroup
	for i := 0; i < blockers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := m.Output(context.Background(), id, true, 5*time.Second)
			require.NoError(t, err)
			results[i] = res
		}(i)
	}

	close(release)
	wg.Wait()

	for _, res := range results {
		require.Equal(t, StatusCompleted, res.Status)
		require.Equal(t, "fanout", res.Output)
	}
}

func TestManager_StopCancelsContext(t *testing.T) {
	m := NewManager()
	defer m.Close()

	cancelled := make(chan struct{})
	id := m.Run(KindBash, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	})

	res, err := m.Stop(id)
	require.NoError(t, err)
	require.Equal(t, StatusStopped, res.Status)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		require.Fail(t, "worker context was not cancelled")
	}

	// The worker returning after stop must not overwrite the status.
	res, err = m.Output(context.Background(), id, false, 0)
	require.NoError(t, err)
	require.Equal(t, StatusStopped, res.Status)
}

func TestManager_StopIsIdempotent(t *testing.T) {
	m := NewManager()
	defer m.Close()

	release := make(chan struct{})
	defer close(release)
	id := m.Run(KindBash, func(ctx context.Context) (string, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "", nil
	})

	first, err := m.Stop(id)
	require.NoError(t, err)
	require.Equal(t, StatusStopped, first.Status)

	second, err := m.Stop(id)
	require.NoError(t, err)
	require.Equal(t, StatusStopped, second.Status)
}

func TestManager_StopAfterCompletionKeepsTerminalStatus(t *testing.T) {
	m := NewManager()
	defer m.Close()

	id := m.Run(KindBash, func(ctx context.Context) (string, error) {
		return "already done", nil
	})
	waitTerminal(t, m, id)

	res, err := m.Stop(id)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	require.Equal(t, "already done", res.Output)
}

func TestManager_NotificationsDrainOnceInOrder(t *testing.T) {
	m := NewManager()
	defer m.Close()

	first := m.Run(KindBash, func(ctx context.Context) (string, error) { return "one", nil })
	waitTerminal(t, m, first)
	second := m.Run(KindBash, func(ctx context.Context) (string, error) { return "", errors.New("bad") })
	waitTerminal(t, m, second)

	drained := m.DrainNotifications()
	require.Len(t, drained, 2)
	require.Equal(t, first, drained[0].TaskID)
	require.Equal(t, StatusCompleted, drained[0].Status)
	require.Equal(t, "one", drained[0].Summary)
	require.Equal(t, second, drained[1].TaskID)
	require.Equal(t, StatusError, drained[1].Status)
	require.Equal(t, "Error: bad", drained[1].Summary)

	require.Empty(t, m.DrainNotifications(), "second drain must be empty")
}

func TestManager_NotificationVisibleWhenDoneReleases(t *testing.T) {
	m := NewManager()
	defer m.Close()

	id := m.Run(KindBash, func(ctx context.Context) (string, error) { return "ordered", nil })

	// A blocking Output returning with a terminal status guarantees the
	// notification is already queued.
	res := waitTerminal(t, m, id)
	require.Equal(t, StatusCompleted, res.Status)

	drained := m.DrainNotifications()
	require.Len(t, drained, 1)
	require.Equal(t, id, drained[0].TaskID)
}

func TestManager_StoppedTaskEmitsNoNotification(t *testing.T) {
	m := NewManager()
	defer m.Close()

	id := m.Run(KindBash, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	_, err := m.Stop(id)
	require.NoError(t, err)

	// Give the worker goroutine time to return; it must not notify either.
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, m.DrainNotifications())
}

func TestManager_SummaryTruncatedTo500(t *testing.T) {
	m := NewManager()
	defer m.Close()

	long := strings.Repeat("x", 1200)
	id := m.Run(KindBash, func(ctx context.Context) (string, error) { return long, nil })
	res := waitTerminal(t, m, id)
	require.Equal(t, long, res.Output, "full output is preserved on the record")

	drained := m.DrainNotifications()
	require.Len(t, drained, 1)
	require.Len(t, drained[0].Summary, SummaryLimit)
	require.Equal(t, long[:SummaryLimit], drained[0].Summary)
}

func TestManager_DrainedTaskStillQueryable(t *testing.T) {
	m := NewManager()
	defer m.Close()

	id := m.Run(KindBash, func(ctx context.Context) (string, error) { return "kept", nil })
	waitTerminal(t, m, id)
	require.Len(t, m.DrainNotifications(), 1)

	// Retired to the retention cache, but Output still resolves it.
	res, err := m.Output(context.Background(), id, false, 0)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	require.Equal(t, "kept", res.Output)

	// Blocking on an already-terminal task returns immediately.
	res, err = m.Output(context.Background(), id, true, time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
}

func TestManager_TaskEventsPublished(t *testing.T) {
	m := NewManager()
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := m.Subscribe(ctx)

	id := m.Run(KindBash, func(ctx context.Context) (string, error) { return "", nil })

	var seen []Status
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case evt := <-events:
			require.Equal(t, id, evt.Payload.TaskID)
			seen = append(seen, evt.Payload.Status)
		case <-deadline:
			require.Fail(t, "timed out waiting for task events")
		}
	}
	require.Equal(t, []Status{StatusRunning, StatusCompleted}, seen)
}
