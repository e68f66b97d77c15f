package quiz

import (
	"time"

	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/course"
)

// State is the state of a quiz attempt.
type State string

const (
	StateNotStarted       State = "NotStarted"
	StatePlaying          State = "Playing"
	StateAllVideosWatched State = "AllVideosWatched"
	StateSubmitted        State = "Submitted"
)

var (
	errNotPlaying    = errors.New("no video is playing")
	errStaleVideo    = errors.New("video event does not match the playing video")
	errBadPosition   = errors.New("position must not be negative")
	errBadQuestion   = errors.New("no such question")
	errUnknownAnswer = errors.New("no such answer")
	errNotWatched    = errors.New("video was not watched to its end")
)

// endSlack is how far before a known duration the end event is still accepted, in seconds.
const endSlack = 1.0

// Attempt is the progress of one principal through one sub-course: watching every video in order, then answering the quiz.
type Attempt struct {
	Email       string     `json:"email"`
	CourseID    string     `json:"courseId"`
	SubCourseID string     `json:"subCourseId"`
	State       State      `json:"state"`
	VideoIndex  int        `json:"videoIndex"`
	VideoCount  int        `json:"videoCount"`
	Durations   []float64  `json:"durations,omitempty"` // per video, 0 when unknown
	Position    float64    `json:"position"` // seconds into the playing video
	Furthest    float64    `json:"furthest"` // furthest point reached by natural playback
	Answers     []string   `json:"answers"`  // "" means unanswered
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Open starts an attempt when the sub-course view opens.
// A sub-course without videos has nothing to watch: the attempt starts with every video watched.
func Open(email string, sc course.SubCourse, now time.Time) *Attempt {
	a := &Attempt{
		Email:       core.CleanString(email, true /* lower */),
		CourseID:    sc.CourseID,
		SubCourseID: sc.ID,
		State:       StateNotStarted,
		VideoCount:  len(sc.Videos),
		Answers:     make([]string, len(sc.Questions)),
		StartedAt:   now,
	}
	for _, v := range sc.Videos {
		a.Durations = append(a.Durations, v.Duration)
	}
	if a.VideoCount == 0 {
		a.State = StateAllVideosWatched
		a.CompletedAt = &now
	}
	return a
}

// Play starts the first video. Playing again is a no-op.
func (a *Attempt) Play() {
	if a.State == StateNotStarted {
		a.State = StatePlaying
		a.VideoIndex = 0
		a.Position = 0
		a.Furthest = 0
	}
}

// Progress records natural playback of the playing video.
func (a *Attempt) Progress(position float64) error {
	if a.State != StatePlaying {
		return core.NewValidationError(errNotPlaying)
	}
	if position < 0 {
		return core.NewValidationError(errBadPosition)
	}
	a.Position = position
	if position > a.Furthest {
		a.Furthest = position
	}
	return nil
}

// Seek moves within the playing video and returns the effective position.
// Seeking forward is clamped to the furthest point already watched.
func (a *Attempt) Seek(position float64) (float64, error) {
	if a.State != StatePlaying {
		return 0, core.NewValidationError(errNotPlaying)
	}
	if position < 0 {
		return 0, core.NewValidationError(errBadPosition)
	}
	if position > a.Furthest {
		position = a.Furthest
	}
	a.Position = position
	return position, nil
}

// VideoEnded moves to the next video once the playing one reaches its natural end.
// When the video duration is known, playback must have reached it; otherwise the player's end event is trusted.
// The end of the last video completes the viewing.
func (a *Attempt) VideoEnded(index int, now time.Time) error {
	if a.State != StatePlaying {
		return core.NewValidationError(errNotPlaying)
	}
	if index != a.VideoIndex {
		return core.NewValidationError(errors.Wrapf(errStaleVideo, "got %d, playing %d", index, a.VideoIndex))
	}
	if d := a.duration(a.VideoIndex); d > 0 && a.Furthest+endSlack < d {
		return core.NewValidationError(errors.Wrapf(errNotWatched, "reached %.1fs of %.1fs", a.Furthest, d))
	}

	a.Position = 0
	a.Furthest = 0
	if a.VideoIndex+1 < a.VideoCount {
		a.VideoIndex++
		return nil
	}
	a.State = StateAllVideosWatched
	a.CompletedAt = &now
	return nil
}

func (a *Attempt) duration(i int) float64 {
	if i < len(a.Durations) {
		return a.Durations[i]
	}
	return 0
}

// Answer records the answer to question qIdx; an empty text clears it.
// Answers may be given in any state and survive navigation between videos.
func (a *Attempt) Answer(questions []course.Question, qIdx int, text string) error {
	if qIdx < 0 || qIdx >= len(questions) {
		return core.NewValidationError(nil, core.FieldError{Field: "question", Error: errBadQuestion.Error()})
	}
	if text != "" && !questions[qIdx].HasAnswer(text) {
		return core.NewValidationError(nil, core.FieldError{Field: "answer", Error: errUnknownAnswer.Error()})
	}
	a.resize(len(questions))
	a.Answers[qIdx] = text
	return nil
}

// resize keeps Answers index-addressed when the quiz changed since the attempt was opened.
func (a *Attempt) resize(n int) {
	switch {
	case len(a.Answers) < n:
		a.Answers = append(a.Answers, make([]string, n-len(a.Answers))...)
	case len(a.Answers) > n:
		a.Answers = a.Answers[:n]
	}
}

// Submit scores the attempt. It is accepted once every video was watched; submitting again replaces the result.
func (a *Attempt) Submit(questions []course.Question, now time.Time) (Submission, error) {
	if a.State != StateAllVideosWatched && a.State != StateSubmitted {
		return Submission{}, core.ErrIncompleteViewing
	}
	a.resize(len(questions))

	completedAt := now
	if a.CompletedAt != nil {
		completedAt = *a.CompletedAt
	}
	sub := Submission{
		Email:           a.Email,
		CourseID:        a.CourseID,
		SubCourseID:     a.SubCourseID,
		StartedAt:       a.StartedAt,
		CompletedAt:     &completedAt,
		SubmittedAt:     now,
		TotalTime:       completedAt.Sub(a.StartedAt).Seconds(),
		PercentageScore: Score(questions, a.Answers),
		Answers:         append([]string{}, a.Answers...),
	}
	a.State = StateSubmitted
	return sub, nil
}

// Score returns 100 * correct / total, or 0 for an empty quiz.
func Score(questions []course.Question, answers []string) float64 {
	if len(questions) == 0 {
		return 0
	}
	var correct int
	for i, q := range questions {
		if i < len(answers) && answers[i] != "" && q.IsCorrect(answers[i]) {
			correct++
		}
	}
	return 100 * float64(correct) / float64(len(questions))
}

// Submission is the recorded outcome of an attempt, stored at submissions/{emailKey}/{subCourseId}.
// A later submission for the same sub-course replaces it.
type Submission struct {
	Email           string     `json:"email"`
	CourseID        string     `json:"courseId"`
	SubCourseID     string     `json:"subCourseId"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	SubmittedAt     time.Time  `json:"submittedAt"`
	TotalTime       float64    `json:"totalTime"` // seconds between opening and finishing the videos
	PercentageScore float64    `json:"percentageScore"`
	Answers         []string   `json:"answers"`
}
