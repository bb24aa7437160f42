package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

// EntryKind is the kind of purchase mutation recorded in the outbox.
type EntryKind string

const (
	EntryCourse EntryKind = "course"
	EntryStage  EntryKind = "stage"
)

// Entry is one locally applied purchase that the server has not confirmed yet.
type Entry struct {
	ID string `json:"id"`
	// Owner is the email of the account the purchase belongs to.
	Owner     string    `json:"owner"`
	Kind      EntryKind `json:"kind"`
	StageID   int       `json:"stageId,omitempty"`
	CourseIDs []int     `json:"courseIds"`
	CreatedAt time.Time `json:"createdAt"`
}

// CourseEntry records the purchase of a single course.
func CourseEntry(courseID int) Entry {
	return Entry{ID: uuid.NewString(), Kind: EntryCourse, CourseIDs: []int{courseID}, CreatedAt: time.Now()}
}

// StageEntry records the purchase of a stage bundle and its courses.
func StageEntry(stageID int, courseIDs []int) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Kind:      EntryStage,
		StageID:   stageID,
		CourseIDs: slices.Clone(courseIDs),
		CreatedAt: time.Now(),
	}
}

// Apply returns u with the entry's entitlement added.
func (e Entry) Apply(u models.User) models.User {
	u = u.Clone()
	switch e.Kind {
	case EntryStage:
		return applyStage(u, e.StageID, e.CourseIDs)
	default:
		u.OpenCategories = addUnique(u.OpenCategories, e.CourseIDs...)
		return u
	}
}

// ApplyEntries replays entries onto u in order.
func ApplyEntries(u models.User, entries []Entry) models.User {
	u = u.Clone()
	for _, e := range entries {
		u = e.Apply(u)
	}
	return u
}

// Outbox durably queues purchase mutations until the server accepts them.
type Outbox struct {
	kv KV
	mu sync.Mutex
}

// NewOutbox returns an Outbox persisting into kv.
func NewOutbox(kv KV) *Outbox { return &Outbox{kv: kv} }

func (o *Outbox) read(ctx context.Context) ([]Entry, error) {
	raw, ok, err := o.kv.Get(ctx, KeyOutbox)
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode outbox: %w", err)
	}
	return entries, nil
}

func (o *Outbox) write(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return o.kv.Delete(ctx, KeyOutbox)
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode outbox: %w", err)
	}
	return o.kv.Set(ctx, KeyOutbox, string(b))
}

// Append adds entries to the end of the queue.
func (o *Outbox) Append(ctx context.Context, entries ...Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	cur, err := o.read(ctx)
	if err != nil {
		return err
	}
	return o.write(ctx, append(cur, entries...))
}

// Pending returns the queued entries in insertion order.
func (o *Outbox) Pending(ctx context.Context) ([]Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.read(ctx)
}

// PendingFor returns the queued entries owned by owner.
func (o *Outbox) PendingFor(ctx context.Context, owner string) ([]Entry, error) {
	all, err := o.Pending(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if e.Owner == owner {
			out = append(out, e)
		}
	}
	return out, nil
}

// Remove drops the entries with the given ids.
func (o *Outbox) Remove(ctx context.Context, ids ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	cur, err := o.read(ctx)
	if err != nil {
		return err
	}
	kept := cur[:0]
	for _, e := range cur {
		if !slices.Contains(ids, e.ID) {
			kept = append(kept, e)
		}
	}
	return o.write(ctx, kept)
}
