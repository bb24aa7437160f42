// Package catalog builds an immutable, queryable index over the bundled
// stage/course/lesson dataset and the secondary section tree.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

//go:embed data/catalog.json
var bundled []byte

// Dataset is the on-disk shape of the content file. Either Stages or Sections
// is expected; when Stages is empty, stages are synthesized from Sections.
type Dataset struct {
	Stages   []models.Stage   `json:"stages,omitempty"`
	Sections []models.Section `json:"sections,omitempty"`
}

// Index answers lookups over a dataset. It is safe for concurrent use because
// nothing mutates it after New returns.
type Index struct {
	stages   []models.Stage
	sections []models.Section
	courses  []models.CourseWithStage

	courseByID map[int]int
	stageByID  map[int]int
}

// New indexes ds.
func New(ds Dataset) *Index {
	idx := &Index{
		sections:   ds.Sections,
		courseByID: make(map[int]int),
		stageByID:  make(map[int]int),
	}

	idx.stages = ds.Stages
	if len(idx.stages) == 0 {
		idx.stages = make([]models.Stage, 0, len(ds.Sections))
		for i, sec := range ds.Sections {
			idx.stages = append(idx.stages, models.Stage{
				ID:          i + 1,
				Title:       sec.Title,
				Courses:     sec.Courses,
				SectionID:   sec.ID,
				Subsections: sec.Subsections,
			})
		}
	}

	for si, st := range idx.stages {
		if _, dup := idx.stageByID[st.ID]; !dup {
			idx.stageByID[st.ID] = si
		}
		for _, c := range st.Courses {
			if _, dup := idx.courseByID[c.ID]; dup {
				continue
			}
			idx.courseByID[c.ID] = len(idx.courses)
			idx.courses = append(idx.courses, models.CourseWithStage{
				Course:        c,
				StageID:       st.ID,
				StageTitle:    st.Title,
				StageSubtitle: st.Subtitle,
			})
		}
	}
	return idx
}

// Load decodes a dataset from r and indexes it.
func Load(r io.Reader) (*Index, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(ds), nil
}

// LoadFile loads a dataset from path.
func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

var (
	defaultOnce  sync.Once
	defaultIndex *Index
)

// Default returns the index over the dataset bundled into the binary.
func Default() *Index {
	defaultOnce.Do(func() {
		idx, err := Load(bytes.NewReader(bundled))
		if err != nil {
			panic(fmt.Sprintf("bundled catalog is invalid: %v", err))
		}
		defaultIndex = idx
	})
	return defaultIndex
}

// Stages returns the stages in declared order.
func (idx *Index) Stages() []models.Stage { return idx.stages }

// Sections returns the section roots in declared order.
func (idx *Index) Sections() []models.Section { return idx.sections }

// AllCourses returns every course, annotated with its stage, in catalog order.
func (idx *Index) AllCourses() []models.CourseWithStage { return idx.courses }

// FindStageByID looks a stage up by id.
func (idx *Index) FindStageByID(id int) (models.Stage, bool) {
	i, ok := idx.stageByID[id]
	if !ok {
		return models.Stage{}, false
	}
	return idx.stages[i], true
}

// StageCourseIDs lists the course ids of stage id, or nil for an unknown stage.
func (idx *Index) StageCourseIDs(id int) []int {
	st, ok := idx.FindStageByID(id)
	if !ok {
		return nil
	}
	return st.CourseIDs()
}

// FindCourseByID looks a course up by its catalog-wide id.
func (idx *Index) FindCourseByID(id int) (models.CourseWithStage, bool) {
	i, ok := idx.courseByID[id]
	if !ok {
		return models.CourseWithStage{}, false
	}
	return idx.courses[i], true
}

// FindCourseAndStage returns a course and its owning stage. It reports false
// if either is missing.
func (idx *Index) FindCourseAndStage(courseID int) (models.CourseWithStage, models.Stage, bool) {
	c, ok := idx.FindCourseByID(courseID)
	if !ok {
		return models.CourseWithStage{}, models.Stage{}, false
	}
	st, ok := idx.FindStageByID(c.StageID)
	if !ok {
		return models.CourseWithStage{}, models.Stage{}, false
	}
	return c, st, true
}

// FindLesson looks a lesson up inside a course.
func (idx *Index) FindLesson(courseID, lessonID int) (models.Lesson, bool) {
	c, ok := idx.FindCourseByID(courseID)
	if !ok {
		return models.Lesson{}, false
	}
	for _, l := range c.Details.Lessons {
		if l.LessonID == lessonID {
			return l, true
		}
	}
	return models.Lesson{}, false
}

// FindSectionByID looks a section root up by id.
func (idx *Index) FindSectionByID(id string) (models.Section, bool) {
	for _, s := range idx.sections {
		if s.ID == id {
			return s, true
		}
	}
	return models.Section{}, false
}

// FindSubsectionByPath walks path through nested subsections of a section.
// It reports false on the first missing segment and for an empty path.
func (idx *Index) FindSubsectionByPath(sectionID string, path []string) (models.Subsection, bool) {
	sec, ok := idx.FindSectionByID(sectionID)
	if !ok || len(path) == 0 {
		return models.Subsection{}, false
	}

	level := sec.Subsections
	var current models.Subsection
	for _, id := range path {
		found := false
		for _, sub := range level {
			if sub.ID == id {
				current, found = sub, true
				break
			}
		}
		if !found {
			return models.Subsection{}, false
		}
		level = current.Subsections
	}
	return current, true
}
