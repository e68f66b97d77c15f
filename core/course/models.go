package course

import (
	"time"

	"github.com/edecs/academy/core"
)

// MediaKind is the kind of asset attached to a sub-course.
type MediaKind string

const (
	MediaVideo MediaKind = "videos"
	MediaImage MediaKind = "images"
	MediaPDF   MediaKind = "pdfs"
)

func ParseMediaKind(s string) (MediaKind, bool) {
	switch k := MediaKind(s); k {
	case MediaVideo, MediaImage, MediaPDF:
		return k, true
	}
	return "", false
}

type MediaRef struct {
	ID       string `json:"id"`
	URL      string `json:"url" validate:"required,url"`
	Title    string `json:"title"`
	BlobPath string  `json:"blobPath,omitempty"` // set when the file was uploaded to the blob store
	Duration float64 `json:"duration,omitempty" validate:"gte=0"` // seconds, videos only; 0 when unknown
}

type Answer struct {
	Text    string `json:"text" validate:"required,notblank"`
	Correct bool   `json:"correct"`
}

// Question must have a text, at least one answer, at least one correct answer & no duplicate answer texts.
type Question struct {
	Text    string   `json:"text" validate:"required,notblank"`
	Answers []Answer `json:"answers" validate:"required,min=1,dive"`
}

// IsCorrect reports whether text is one of the correct answers.
func (q Question) IsCorrect(text string) bool {
	for _, a := range q.Answers {
		if a.Correct && a.Text == text {
			return true
		}
	}
	return false
}

// HasAnswer reports whether text is one of the answers.
func (q Question) HasAnswer(text string) bool {
	for _, a := range q.Answers {
		if a.Text == text {
			return true
		}
	}
	return false
}

// Course is a main course, stored at courses/mainCourses/{id}.
type Course struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Thumbnail  string      `json:"thumbnail"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	SubCourses []SubCourse `json:"subCourses,omitempty"`
}

// SubCourse is stored at courses/mainCourses/{courseId}/subCourses/{id}.
// Videos are watched in order; images & pdfs are unordered.
type SubCourse struct {
	ID        string     `json:"id"`
	CourseID  string     `json:"courseId"`
	Name      string     `json:"name"`
	Videos    []MediaRef `json:"videos"`
	Images    []MediaRef `json:"images"`
	PDFs      []MediaRef `json:"pdfs"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (sc *SubCourse) media(kind MediaKind) *[]MediaRef {
	switch kind {
	case MediaVideo:
		return &sc.Videos
	case MediaImage:
		return &sc.Images
	default:
		return &sc.PDFs
	}
}

func (sc *SubCourse) normalize() {
	if sc.Videos == nil {
		sc.Videos = []MediaRef{}
	}
	if sc.Images == nil {
		sc.Images = []MediaRef{}
	}
	if sc.PDFs == nil {
		sc.PDFs = []MediaRef{}
	}
	if sc.Questions == nil {
		sc.Questions = []Question{}
	}
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Name      string `json:"name" validate:"required,notblank"`
	Thumbnail string `json:"thumbnail" validate:"omitempty,url"`
}

func (nc *NewCourse) clean() {
	nc.Name = core.CleanString(nc.Name)
	nc.Thumbnail = core.CleanString(nc.Thumbnail)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
type UpdateCourse struct {
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail" validate:"omitempty,url"`
}

func (uc *UpdateCourse) clean(orig Course) {
	if name := core.CleanString(uc.Name); name != "" {
		uc.Name = name
	} else {
		uc.Name = orig.Name
	}
	if thumb := core.CleanString(uc.Thumbnail); thumb != "" {
		uc.Thumbnail = thumb
	} else {
		uc.Thumbnail = orig.Thumbnail
	}
}

// NewSubCourse contains information needed to create a new SubCourse.
type NewSubCourse struct {
	Name      string     `json:"name" validate:"required,notblank"`
	Videos    []MediaRef `json:"videos" validate:"dive"`
	Images    []MediaRef `json:"images" validate:"dive"`
	PDFs      []MediaRef `json:"pdfs" validate:"dive"`
	Questions []Question `json:"questions" validate:"dive"`
}

// UpdateSubCourse defines what information may be provided to modify an existing SubCourse.
type UpdateSubCourse struct {
	Name string `json:"name" validate:"required,notblank"`
}

type questionList struct {
	Questions []Question `json:"questions" validate:"dive"`
}
