// Package grading scores a submitted answer against a question's key.
package grading

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// Result is the outcome of grading one answer.
type Result struct {
	IsCorrect bool
	Marks     float64
	// Graded is false for answers that await manual review or could not be
	// scored automatically.
	Graded bool
	// Anomaly describes an integrity problem with the question itself.
	Anomaly string
}

// Grade maps a question and a submitted answer to correctness and marks.
// It has no side effects. Choice-type answers match the correct option
// exactly (case-sensitive); fill-in-the-blank answers ignore case.
func Grade(q *model.Question, submitted string) Result {
	answer := strings.TrimSpace(submitted)

	switch q.QuestionType {
	case model.QuestionTypeMultipleChoice, model.QuestionTypeTrueFalse:
		keys := choiceKeys(q)
		if len(keys) == 0 {
			return Result{Anomaly: "choice question has no correct option"}
		}
		if answer == "" {
			return Result{Graded: true}
		}
		for _, k := range keys {
			if answer == k {
				return Result{IsCorrect: true, Marks: q.Marks, Graded: true}
			}
		}
		return Result{Graded: true}

	case model.QuestionTypeFillBlank:
		key := strings.TrimSpace(q.CorrectAnswer)
		if key == "" {
			return Result{Anomaly: "fill-in-the-blank question has no canonical answer"}
		}
		if answer != "" && strings.EqualFold(answer, key) {
			return Result{IsCorrect: true, Marks: q.Marks, Graded: true}
		}
		return Result{Graded: true}

	case model.QuestionTypeEssay:
		return Result{}

	default:
		return Result{Anomaly: "unsupported question type " + string(q.QuestionType)}
	}
}

// choiceKeys returns the trimmed texts of options flagged correct, falling
// back to CorrectAnswer for true/false questions stored without options.
func choiceKeys(q *model.Question) []string {
	var keys []string
	for _, o := range q.Options {
		if o.IsCorrect {
			keys = append(keys, strings.TrimSpace(o.Text))
		}
	}
	if len(keys) == 0 {
		if k := strings.TrimSpace(q.CorrectAnswer); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Grader wraps Grade and logs integrity anomalies instead of failing.
type Grader struct {
	log       zerolog.Logger
	onAnomaly func(model.QuestionType)
}

// NewGrader creates a Grader. onAnomaly may be nil.
func NewGrader(log zerolog.Logger, onAnomaly func(model.QuestionType)) *Grader {
	return &Grader{
		log:       log.With().Str("component", "grader").Logger(),
		onAnomaly: onAnomaly,
	}
}

// Grade scores the answer. An ungradable question degrades to zero marks.
func (g *Grader) Grade(q *model.Question, submitted string) Result {
	res := Grade(q, submitted)
	if res.Anomaly != "" {
		g.log.Warn().
			Str("question_id", q.ID.String()).
			Str("exam_id", q.ExamID.String()).
			Str("question_type", string(q.QuestionType)).
			Msg("Grading integrity warning: " + res.Anomaly)
		if g.onAnomaly != nil {
			g.onAnomaly(q.QuestionType)
		}
	}
	return res
}
