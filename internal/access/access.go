// Package access decides what a user may open and buy.
//
// Evaluation is a pure projection of the user record and the catalog: it does
// not touch storage or the network.
package access

import (
	"fmt"
	"slices"
	"sort"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

// Catalog is the read-only catalog view the evaluator needs.
type Catalog interface {
	AllCourses() []models.CourseWithStage
	FindCourseByID(id int) (models.CourseWithStage, bool)
	FindCourseAndStage(courseID int) (models.CourseWithStage, models.Stage, bool)
	FindStageByID(id int) (models.Stage, bool)
	FindLesson(courseID, lessonID int) (models.Lesson, bool)
}

// Policy selects which courses count as prerequisites of a purchase.
type Policy int

const (
	// PolicyCatalog requires every catalog course with a smaller id.
	PolicyCatalog Policy = iota
	// PolicyStage requires the courses declared earlier in the same stage.
	PolicyStage
)

// ParsePolicy maps "catalog" and "stage" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "catalog":
		return PolicyCatalog, nil
	case "stage":
		return PolicyStage, nil
	}
	return PolicyCatalog, fmt.Errorf("unknown prerequisite policy %q", s)
}

func (p Policy) String() string {
	if p == PolicyStage {
		return "stage"
	}
	return "catalog"
}

// Options configure the evaluator.
type Options struct {
	// PremiumRole unlocks every lesson.
	PremiumRole string
	// RoleGrants lists, per role, the course ids that role unlocks.
	RoleGrants    map[string][]int
	Prerequisites Policy
}

// DefaultOptions returns the production access rules.
func DefaultOptions() Options {
	return Options{
		PremiumRole:   models.RolePremium,
		RoleGrants:    map[string][]int{models.RolePartialPremium: {1, 2}},
		Prerequisites: PolicyCatalog,
	}
}

// Reason explains a Decision.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonFree            Reason = "free"
	ReasonOwned           Reason = "owned"
	ReasonPremium         Reason = "premium"
	ReasonFullAccess      Reason = "full_access"
	ReasonRoleGrant       Reason = "role_grant"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonLocked          Reason = "locked"
	ReasonPrerequisite    Reason = "prerequisite"
	ReasonAlreadyOwned    Reason = "already_owned"
	ReasonNotFound        Reason = "not_found"
)

// Decision is the outcome of an access or purchase check.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Missing lists unowned prerequisites in catalog order when Reason is
	// ReasonPrerequisite.
	Missing []models.Course
}

func allow(r Reason) Decision { return Decision{Allowed: true, Reason: r} }
func deny(r Reason) Decision  { return Decision{Reason: r} }

// Evaluator applies the access rules to a catalog.
type Evaluator struct {
	catalog Catalog
	opts    Options
}

// New returns an Evaluator over catalog.
func New(catalog Catalog, opts Options) *Evaluator {
	return &Evaluator{catalog: catalog, opts: opts}
}

// HasFullAccess reports whether u owns every course currently in the catalog.
// An empty catalog grants nothing.
func (e *Evaluator) HasFullAccess(u *models.User) bool {
	courses := e.catalog.AllCourses()
	if u == nil || len(courses) == 0 {
		return false
	}
	for _, c := range courses {
		if !slices.Contains(u.OpenCategories, c.ID) {
			return false
		}
	}
	return true
}

// entitled checks every rule except the free flag for courseID.
func (e *Evaluator) entitled(u *models.User, courseID int) Decision {
	if u == nil {
		return deny(ReasonUnauthenticated)
	}
	switch {
	case e.opts.PremiumRole != "" && u.Role == e.opts.PremiumRole:
		return allow(ReasonPremium)
	case slices.Contains(u.OpenCategories, courseID):
		return allow(ReasonOwned)
	case e.HasFullAccess(u):
		return allow(ReasonFullAccess)
	case slices.Contains(e.opts.RoleGrants[u.Role], courseID):
		return allow(ReasonRoleGrant)
	}
	return deny(ReasonLocked)
}

// Lesson decides whether lesson of courseID can be opened.
func (e *Evaluator) Lesson(u *models.User, courseID int, lesson models.Lesson) Decision {
	if lesson.IsFree() {
		return allow(ReasonFree)
	}
	return e.entitled(u, courseID)
}

// LessonByID looks the lesson up and decides whether it can be opened.
func (e *Evaluator) LessonByID(u *models.User, courseID, lessonID int) Decision {
	l, ok := e.catalog.FindLesson(courseID, lessonID)
	if !ok {
		return deny(ReasonNotFound)
	}
	return e.Lesson(u, courseID, l)
}

// Course decides whether the locked content of courseID can be opened.
func (e *Evaluator) Course(u *models.User, courseID int) Decision {
	if _, ok := e.catalog.FindCourseByID(courseID); !ok {
		return deny(ReasonNotFound)
	}
	return e.entitled(u, courseID)
}

// Stage reports whether u bought the stage bundle.
func (e *Evaluator) Stage(u *models.User, stageID int) Decision {
	if _, ok := e.catalog.FindStageByID(stageID); !ok {
		return deny(ReasonNotFound)
	}
	if u == nil {
		return deny(ReasonUnauthenticated)
	}
	if slices.Contains(u.PurchasedStages, stageID) {
		return allow(ReasonOwned)
	}
	return deny(ReasonLocked)
}

// MissingPrerequisites lists the prerequisites of courseID that u does not
// own, in catalog order. A nil user owns nothing.
func (e *Evaluator) MissingPrerequisites(u *models.User, courseID int) []models.Course {
	var owned []int
	if u != nil {
		owned = u.OpenCategories
	}

	var candidates []models.Course
	switch e.opts.Prerequisites {
	case PolicyStage:
		_, st, ok := e.catalog.FindCourseAndStage(courseID)
		if !ok {
			return nil
		}
		for _, c := range st.Courses {
			if c.ID == courseID {
				break
			}
			candidates = append(candidates, c)
		}
	default:
		if _, ok := e.catalog.FindCourseByID(courseID); !ok {
			return nil
		}
		for _, c := range e.catalog.AllCourses() {
			if c.ID < courseID {
				candidates = append(candidates, c.Course)
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	}

	var missing []models.Course
	for _, c := range candidates {
		if !slices.Contains(owned, c.ID) {
			missing = append(missing, c)
		}
	}
	return missing
}

// CanPurchaseCourse decides whether u may start buying courseID.
func (e *Evaluator) CanPurchaseCourse(u *models.User, courseID int) Decision {
	if _, ok := e.catalog.FindCourseByID(courseID); !ok {
		return deny(ReasonNotFound)
	}
	if u == nil {
		return deny(ReasonUnauthenticated)
	}
	if slices.Contains(u.OpenCategories, courseID) {
		return deny(ReasonAlreadyOwned)
	}
	if missing := e.MissingPrerequisites(u, courseID); len(missing) > 0 {
		return Decision{Reason: ReasonPrerequisite, Missing: missing}
	}
	return allow(ReasonNone)
}

// CanPurchaseStage decides whether u may start buying stageID.
func (e *Evaluator) CanPurchaseStage(u *models.User, stageID int) Decision {
	if _, ok := e.catalog.FindStageByID(stageID); !ok {
		return deny(ReasonNotFound)
	}
	if u == nil {
		return deny(ReasonUnauthenticated)
	}
	if slices.Contains(u.PurchasedStages, stageID) {
		return deny(ReasonAlreadyOwned)
	}
	return allow(ReasonNone)
}

// CanPurchaseFullAccess decides whether u may start buying every course.
func (e *Evaluator) CanPurchaseFullAccess(u *models.User) Decision {
	if u == nil {
		return deny(ReasonUnauthenticated)
	}
	if e.HasFullAccess(u) {
		return deny(ReasonAlreadyOwned)
	}
	return allow(ReasonNone)
}

// PrerequisiteError blocks a purchase until Missing are owned.
type PrerequisiteError struct {
	CourseID int
	Missing  []models.Course
}

func (e *PrerequisiteError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("course %d has unmet prerequisites", e.CourseID)
	}
	return fmt.Sprintf("course %d requires course %d first", e.CourseID, e.Missing[0].ID)
}

// Next returns the first missing prerequisite.
func (e *PrerequisiteError) Next() (models.Course, bool) {
	if len(e.Missing) == 0 {
		return models.Course{}, false
	}
	return e.Missing[0], true
}
