package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/edecs/academy/core"
)

var (
	noCorrectTag  = "qcorrect"
	noCorrectText = "a question needs at least one correct answer"

	dupAnswerTag  = "quniqueanswers"
	dupAnswerText = "answer texts must be unique within a question"
)

// InitValidators registers the course validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(questionStructValidation, Question{})
	core.RegisterCustomTranslation(validate, translator, noCorrectTag, noCorrectText)
	core.RegisterCustomTranslation(validate, translator, dupAnswerTag, dupAnswerText)
}

func questionStructValidation(sl validator.StructLevel) {
	q, ok := sl.Current().Interface().(Question)
	if !ok || len(q.Answers) == 0 { // reported by `min`
		return
	}

	var hasCorrect bool
	seen := make(map[string]bool, len(q.Answers))
	for _, a := range q.Answers {
		if a.Correct {
			hasCorrect = true
		}
		if seen[a.Text] {
			sl.ReportError(q.Answers, "answers", "Answers", dupAnswerTag, "")
			return
		}
		seen[a.Text] = true
	}
	if !hasCorrect {
		sl.ReportError(q.Answers, "answers", "Answers", noCorrectTag, "")
	}
}
