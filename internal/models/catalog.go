package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Lang is a supported display language.
type Lang string

const (
	LangEN Lang = "en"
	LangRU Lang = "ru"
)

// ParseLang maps any language tag onto a supported language, defaulting to English.
func ParseLang(s string) Lang {
	if len(s) >= 2 && (s[:2] == "ru" || s[:2] == "RU") {
		return LangRU
	}
	return LangEN
}

// LocalizedString maps a language code to display text.
type LocalizedString struct {
	EN string `json:"en"`
	RU string `json:"ru"`
}

// Get returns the text for lang, falling back to Russian and then English.
func (s LocalizedString) Get(lang Lang) string {
	if lang == LangEN && s.EN != "" {
		return s.EN
	}
	if s.RU != "" {
		return s.RU
	}
	return s.EN
}

// IsZero reports whether both translations are empty.
func (s LocalizedString) IsZero() bool { return s.EN == "" && s.RU == "" }

// Materials maps a language to downloadable URLs.
type Materials struct {
	EN []string `json:"en"`
	RU []string `json:"ru"`
}

// Get returns the material list for lang with the same fallback chain as LocalizedString.
func (m Materials) Get(lang Lang) []string {
	if lang == LangEN && len(m.EN) > 0 {
		return m.EN
	}
	if len(m.RU) > 0 {
		return m.RU
	}
	return m.EN
}

// VideoPart is one part of a multi-part lesson video.
type VideoPart struct {
	VideoID int             `json:"videoId"`
	Title   LocalizedString `json:"title"`
	Video   LocalizedString `json:"video"`
}

// AudioPart is one audio track of a lesson or course.
type AudioPart struct {
	AudioID int             `json:"audioId"`
	Title   LocalizedString `json:"title"`
	Audio   LocalizedString `json:"audio"`
}

// Video is either a single localized video or an ordered list of parts.
// In JSON it is an object in the first case and an array in the second.
type Video struct {
	Single *LocalizedString
	Parts  []VideoPart
}

// IsMultiPart reports whether the video is split into parts.
func (v Video) IsMultiPart() bool { return v.Single == nil && len(v.Parts) > 0 }

// UnmarshalJSON implements json.Unmarshaler.
func (v *Video) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*v = Video{}
		return nil
	case data[0] == '[':
		var parts []VideoPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("decode video parts: %w", err)
		}
		*v = Video{Parts: parts}
		return nil
	default:
		var single LocalizedString
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("decode video: %w", err)
		}
		*v = Video{Single: &single}
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Video) MarshalJSON() ([]byte, error) {
	if v.Single != nil {
		return json.Marshal(v.Single)
	}
	if v.Parts == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v.Parts)
}

// Access is the declared gating of a lesson.
type Access string

const (
	AccessFree   Access = "free"
	AccessLocked Access = "locked"
)

// Lesson is the smallest content unit inside a course.
type Lesson struct {
	LessonID    int              `json:"lessonId"`
	Title       LocalizedString  `json:"title"`
	Subtitle    *LocalizedString `json:"subtitle,omitempty"`
	Description *LocalizedString `json:"description,omitempty"`
	Video       Video            `json:"video"`
	Audio       []AudioPart      `json:"audio,omitempty"`
	Materials   *Materials       `json:"materials,omitempty"`
	Access      Access           `json:"access"`
}

// IsFree reports whether the lesson is declared free. Unknown values count as locked.
func (l Lesson) IsFree() bool { return l.Access == AccessFree }

// CourseDetails holds the course body.
type CourseDetails struct {
	Description LocalizedString  `json:"description"`
	Materials   *Materials       `json:"materials,omitempty"`
	Lessons     []Lesson         `json:"lessons"`
	Video       *LocalizedString `json:"video,omitempty"`
	Audio       []AudioPart      `json:"audio,omitempty"`
}

// Course is a purchasable unit of lessons. IDs are unique across the catalog.
type Course struct {
	ID          int             `json:"id"`
	Title       LocalizedString `json:"title"`
	Subtitle    LocalizedString `json:"subtitle"`
	Image       string          `json:"image"`
	IsCompleted bool            `json:"isCompleted,omitempty"`
	Price       float64         `json:"price"`
	Details     CourseDetails   `json:"details"`
}

// CourseWithStage is a course annotated with its owning stage.
type CourseWithStage struct {
	Course
	StageID       int
	StageTitle    LocalizedString
	StageSubtitle LocalizedString
}

// Stage is a purchasable bundle of courses.
type Stage struct {
	ID       int             `json:"id"`
	Price    *float64        `json:"price,omitempty"`
	Title    LocalizedString `json:"title"`
	Subtitle LocalizedString `json:"subtitle"`
	Courses  []Course        `json:"courses"`
	// SectionID is set on stages synthesized from a sections dataset.
	SectionID   string       `json:"sectionId,omitempty"`
	Subsections []Subsection `json:"subsections,omitempty"`
}

// CourseIDs lists the ids of the stage's courses in declared order.
func (s Stage) CourseIDs() []int {
	ids := make([]int, 0, len(s.Courses))
	for _, c := range s.Courses {
		ids = append(ids, c.ID)
	}
	return ids
}

// SectionItem is a terminal entry of the section tree.
type SectionItem struct {
	ID    string          `json:"id"`
	Title LocalizedString `json:"title"`
}

// Subsection is a recursive node of the section tree.
type Subsection struct {
	ID          string          `json:"id"`
	Title       LocalizedString `json:"title"`
	Subsections []Subsection    `json:"subsections,omitempty"`
	Items       []SectionItem   `json:"items,omitempty"`
}

// Section is a root of the secondary content hierarchy.
type Section struct {
	ID          string          `json:"id"`
	Title       LocalizedString `json:"title"`
	Courses     []Course        `json:"courses,omitempty"`
	Subsections []Subsection    `json:"subsections,omitempty"`
}
