package team

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/zjrosen/crew/internal/log"
)

// inboxLocks serializes access per inbox path, so an append and a drain
// in the same process never interleave on one file.
var inboxLocks sync.Map // map[string]*sync.Mutex

func lockFor(path string) *sync.Mutex {
	actual, _ := inboxLocks.LoadOrStore(filepath.Clean(path), &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// Inbox is an append-only JSONL mailbox on disk. Messages survive process
// restarts; reading drains.
type Inbox struct {
	path string
}

// NewInbox creates an inbox handle for the given file path. The file is
// created lazily on first append.
func NewInbox(path string) *Inbox {
	return &Inbox{path: path}
}

// Path returns the inbox file location.
func (i *Inbox) Path() string {
	return i.path
}

// Append writes one message as a single O_APPEND write of one full line.
// A crash between messages never leaves a torn line behind.
func (i *Inbox) Append(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	line := append(data, '\n')

	mu := lockFor(i.path)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(i.path), 0o750); err != nil {
		return fmt.Errorf("creating inbox directory: %w", err)
	}

	f, err := os.OpenFile(i.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path derived from teams dir
	if err != nil {
		return fmt.Errorf("opening inbox: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("appending to inbox: %w", err)
	}
	return f.Close()
}

// Drain returns all pending messages in write order and truncates the
// file, so each message is delivered exactly once.
func (i *Inbox) Drain() ([]Message, error) {
	mu := lockFor(i.path)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(i.path) // #nosec G304 -- path derived from teams dir
	if errors.Is(err, fs.ErrNotExist) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening inbox: %w", err)
	}

	messages := []Message{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			log.Warn(log.CatTeam, "skipping malformed inbox line", "path", i.path, "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	scanErr := scanner.Err()
	_ = f.Close()
	if scanErr != nil {
		return nil, fmt.Errorf("reading inbox: %w", scanErr)
	}

	if err := os.Truncate(i.path, 0); err != nil {
		return nil, fmt.Errorf("truncating inbox: %w", err)
	}
	return messages, nil
}
