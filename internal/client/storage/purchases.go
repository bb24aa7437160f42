package storage

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

// PurchaseCache is the durable local mirror of the signed-in user's purchases.
//
// Every read-modify-write runs under one mutex, so a purchase confirmation and a
// server resync finishing at the same time are applied one after the other
// instead of the later write silently discarding the earlier one.
//
// With a stage resolver set, every record read or written has the courses of
// each owned stage in OpenCategories.
type PurchaseCache struct {
	kv     KV
	log    *zap.Logger
	stages StageCourses
	mu     sync.Mutex
}

// StageCourses resolves the course ids of a stage. Unknown stages yield nil.
type StageCourses interface {
	StageCourseIDs(stageID int) []int
}

// NewPurchaseCache returns a cache persisting into kv.
func NewPurchaseCache(kv KV, log *zap.Logger) *PurchaseCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &PurchaseCache{kv: kv, log: log}
}

// WithStages sets the resolver used to expand owned stages into their courses.
func (c *PurchaseCache) WithStages(stages StageCourses) *PurchaseCache {
	c.stages = stages
	return c
}

// Normalize returns u with the courses of every owned stage added to
// OpenCategories. Without a stage resolver u is returned unchanged.
func (c *PurchaseCache) Normalize(u models.User) models.User {
	return ExpandStages(u, c.stages)
}

// ExpandStages adds the courses of every stage in u.PurchasedStages to
// u.OpenCategories. A nil resolver leaves u unchanged.
func ExpandStages(u models.User, stages StageCourses) models.User {
	if stages == nil {
		return u
	}
	u = u.Clone()
	for _, id := range u.PurchasedStages {
		u.OpenCategories = addUnique(u.OpenCategories, stages.StageCourseIDs(id)...)
	}
	return u
}

// StoredUser returns the cached user, or nil if none is stored or the record
// cannot be read.
func (c *PurchaseCache) StoredUser(ctx context.Context) *models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

func (c *PurchaseCache) load(ctx context.Context) *models.User {
	raw, ok, err := c.kv.Get(ctx, KeyUser)
	if err != nil {
		c.log.Error("failed to read stored user", zap.Error(err))
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	u, err := decodeUser(raw, c.stages)
	if err != nil {
		c.log.Error("failed to parse stored user", zap.Error(err))
		return nil
	}
	return &u
}

func (c *PurchaseCache) store(ctx context.Context, u models.User) error {
	raw, err := encodeUser(ExpandStages(u, c.stages))
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, KeyUser, raw)
}

// Persist overwrites the stored record with u.
func (c *PurchaseCache) Persist(ctx context.Context, u models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(ctx, u)
}

// Clear removes the stored record.
func (c *PurchaseCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Delete(ctx, KeyUser)
}

// Mutate runs fn with the stored user (nil if absent) under the cache lock.
// A nil result from fn leaves storage untouched and returns the current user.
func (c *PurchaseCache) Mutate(ctx context.Context, fn func(cur *models.User) (*models.User, error)) (*models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.load(ctx)
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return cur, nil
	}
	n := ExpandStages(next.Clone(), c.stages)
	if err := c.store(ctx, n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Update applies updater to the stored user and persists the result. It
// returns nil without calling updater when no user is stored.
func (c *PurchaseCache) Update(ctx context.Context, updater func(models.User) models.User) (*models.User, error) {
	return c.Mutate(ctx, func(cur *models.User) (*models.User, error) {
		if cur == nil {
			return nil, nil
		}
		next := updater(cur.Clone())
		return &next, nil
	})
}

// MarkCoursePurchased adds courseID to the owned courses. It does not write
// when the course is already owned.
func (c *PurchaseCache) MarkCoursePurchased(ctx context.Context, courseID int) (*models.User, error) {
	return c.Mutate(ctx, func(cur *models.User) (*models.User, error) {
		if cur == nil || slices.Contains(cur.OpenCategories, courseID) {
			return nil, nil
		}
		next := cur.Clone()
		next.OpenCategories = append(next.OpenCategories, courseID)
		return &next, nil
	})
}

// MarkStagePurchased adds stageID to the owned stages and every id of
// courseIDs to the owned courses in a single write.
func (c *PurchaseCache) MarkStagePurchased(ctx context.Context, stageID int, courseIDs []int) (*models.User, error) {
	return c.Update(ctx, func(u models.User) models.User {
		return applyStage(u, stageID, courseIDs)
	})
}

// IsCoursePurchased reports whether u owns courseID. A nil user owns nothing.
func IsCoursePurchased(u *models.User, courseID int) bool {
	return u != nil && slices.Contains(u.OpenCategories, courseID)
}

// IsStagePurchased reports whether u owns stageID. A nil user owns nothing.
func IsStagePurchased(u *models.User, stageID int) bool {
	return u != nil && slices.Contains(u.PurchasedStages, stageID)
}

func applyStage(u models.User, stageID int, courseIDs []int) models.User {
	u.PurchasedStages = addUnique(u.PurchasedStages, stageID)
	u.OpenCategories = addUnique(u.OpenCategories, courseIDs...)
	return u
}

func addUnique(ids []int, add ...int) []int {
	for _, id := range add {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}
