package board

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/crew/internal/log"
	"github.com/zjrosen/crew/internal/tracing"
)

// Store reads and mutates board items. Every read hits the database, so
// any number of stores over the same directory observe each other's
// writes.
type Store struct {
	db     *sql.DB
	tracer trace.Tracer
}

// Option configures a Store.
type Option func(*Store)

// WithTracer attaches a tracer; spans wrap board mutations.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewStore creates a Store over an open board database.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		tracer: noop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenStore opens the board database under dir and returns a Store on it.
func OpenStore(dir string, opts ...Option) (*Store, error) {
	db, err := OpenDB(dir)
	if err != nil {
		return nil, err
	}
	return NewStore(db, opts...), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Create adds a pending item with the given subject and returns it.
func (s *Store) Create(subject string) (Item, error) {
	_, span := s.tracer.Start(context.Background(), tracing.SpanPrefixBoard+"create")
	defer span.End()

	item, err := s.create(subject)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Item{}, err
	}
	span.SetAttributes(attribute.String(tracing.AttrItemID, item.ID))
	return item, nil
}

func (s *Store) create(subject string) (Item, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO items (subject, status, owner, created_at, updated_at) VALUES (?, ?, '', ?, ?)`,
		subject, StatusPending, now, now,
	)
	if err != nil {
		return Item{}, fmt.Errorf("creating item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Item{}, fmt.Errorf("reading new item id: %w", err)
	}

	log.Debug(log.CatBoard, "item created", "id", id, "subject", subject)
	return Item{
		ID:        strconv.FormatInt(id, 10),
		Subject:   subject,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Get returns the item with the given ID.
func (s *Store) Get(id string) (Item, error) {
	return loadItem(s.db, id)
}

// ListAll returns every item on the board in ID order.
func (s *Store) ListAll() ([]Item, error) {
	rows, err := s.db.Query(
		`SELECT id, subject, status, owner, created_at, updated_at FROM items ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	for i := range items {
		if err := loadLinks(s.db, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// Update applies a partial mutation and returns the updated item.
// Moving to in_progress requires an owner, either already set or supplied
// in the same request. Completing an item removes its ID from every other
// item's blocked_by in the same transaction.
func (s *Store) Update(id string, req UpdateRequest) (Item, error) {
	_, span := s.tracer.Start(context.Background(), tracing.SpanPrefixBoard+"update",
		trace.WithAttributes(attribute.String(tracing.AttrItemID, id)))
	defer span.End()

	item, err := s.update(id, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Item{}, err
	}
	span.SetAttributes(attribute.String(tracing.AttrItemState, string(item.Status)))
	return item, nil
}

func (s *Store) update(id string, req UpdateRequest) (Item, error) {
	if req.Status != nil && !req.Status.Valid() {
		return Item{}, fmt.Errorf("invalid status: %s", *req.Status)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Item{}, fmt.Errorf("beginning update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	item, err := loadItem(tx, id)
	if err != nil {
		return Item{}, err
	}

	owner := item.Owner
	if req.Owner != nil {
		owner = *req.Owner
	}
	status := item.Status
	if req.Status != nil {
		status = *req.Status
	}

	if status == StatusInProgress && owner == "" {
		return Item{}, fmt.Errorf("%w: item %s", ErrOwnerRequired, id)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(
		`UPDATE items SET status = ?, owner = ?, updated_at = ? WHERE id = ?`,
		status, owner, now, item.ID,
	); err != nil {
		return Item{}, fmt.Errorf("updating item %s: %w", id, err)
	}

	for _, target := range req.AddBlockedBy {
		if err := addLink(tx, item.ID, "blocked_by", target); err != nil {
			return Item{}, err
		}
	}
	for _, target := range req.RemoveBlockedBy {
		if err := removeLink(tx, item.ID, "blocked_by", target); err != nil {
			return Item{}, err
		}
	}
	for _, target := range req.AddDependsOn {
		if err := addLink(tx, item.ID, "depends_on", target); err != nil {
			return Item{}, err
		}
	}
	for _, target := range req.RemoveDependsOn {
		if err := removeLink(tx, item.ID, "depends_on", target); err != nil {
			return Item{}, err
		}
	}

	if status == StatusCompleted && item.Status != StatusCompleted {
		if err := cascadeUnblock(tx, item.ID, now); err != nil {
			return Item{}, err
		}
	}

	updated, err := loadItem(tx, id)
	if err != nil {
		return Item{}, err
	}

	if err := tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("committing update: %w", err)
	}

	log.Debug(log.CatBoard, "item updated", "id", id, "status", updated.Status, "owner", updated.Owner)
	return updated, nil
}

// cascadeUnblock deletes the completed item's ID from every blocked_by
// list on the board.
func cascadeUnblock(tx querier, id string, now time.Time) error {
	if _, err := tx.Exec(
		`UPDATE items SET updated_at = ? WHERE id IN (
			SELECT item_id FROM item_links WHERE kind = 'blocked_by' AND target = ?)`,
		now, id,
	); err != nil {
		return fmt.Errorf("touching unblocked items: %w", err)
	}
	if _, err := tx.Exec(
		`DELETE FROM item_links WHERE kind = 'blocked_by' AND target = ?`, id,
	); err != nil {
		return fmt.Errorf("cascading unblock for %s: %w", id, err)
	}
	return nil
}

func addLink(tx querier, itemID, kind, target string) error {
	_, err := tx.Exec(
		`INSERT OR IGNORE INTO item_links (item_id, kind, target, position)
		 VALUES (?, ?, ?, COALESCE((SELECT MAX(position) + 1 FROM item_links WHERE item_id = ? AND kind = ?), 0))`,
		itemID, kind, target, itemID, kind,
	)
	if err != nil {
		return fmt.Errorf("adding %s link %s -> %s: %w", kind, itemID, target, err)
	}
	return nil
}

func removeLink(tx querier, itemID, kind, target string) error {
	_, err := tx.Exec(
		`DELETE FROM item_links WHERE item_id = ? AND kind = ? AND target = ?`,
		itemID, kind, target,
	)
	if err != nil {
		return fmt.Errorf("removing %s link %s -> %s: %w", kind, itemID, target, err)
	}
	return nil
}

// loadItem reads one item with its links.
func loadItem(q querier, id string) (Item, error) {
	numeric, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	row := q.QueryRow(
		`SELECT id, subject, status, owner, created_at, updated_at FROM items WHERE id = ?`,
		numeric,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if err != nil {
		return Item{}, fmt.Errorf("loading item %s: %w", id, err)
	}

	if err := loadLinks(q, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// loadLinks fills BlockedBy and DependsOn in insertion order.
func loadLinks(q querier, item *Item) error {
	rows, err := q.Query(
		`SELECT kind, target FROM item_links WHERE item_id = ? ORDER BY kind, position`,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("loading links for %s: %w", item.ID, err)
	}
	defer func() { _ = rows.Close() }()

	item.BlockedBy = nil
	item.DependsOn = nil
	for rows.Next() {
		var kind, target string
		if err := rows.Scan(&kind, &target); err != nil {
			return fmt.Errorf("scanning link for %s: %w", item.ID, err)
		}
		switch kind {
		case "blocked_by":
			item.BlockedBy = append(item.BlockedBy, target)
		case "depends_on":
			item.DependsOn = append(item.DependsOn, target)
		}
	}
	return rows.Err()
}

func scanItem(scanner interface{ Scan(...any) error }) (Item, error) {
	var (
		item Item
		id   int64
	)
	if err := scanner.Scan(&id, &item.Subject, &item.Status, &item.Owner, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Item{}, err
	}
	item.ID = strconv.FormatInt(id, 10)
	return item, nil
}
