package model

import (
	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionTypeEssay          QuestionType = "ESSAY"
	QuestionTypeFillBlank      QuestionType = "FILL_BLANK"
)

// AutoGradable reports whether answers to this type are scored without a human.
func (t QuestionType) AutoGradable() bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeTrueFalse, QuestionTypeFillBlank:
		return true
	}
	return false
}

// QuestionOption is one selectable choice of a choice-type question.
type QuestionOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question represents a single exam question.
type Question struct {
	ID           uuid.UUID        `json:"id"`
	ExamID       uuid.UUID        `json:"exam_id"`
	QuestionText string           `json:"question_text"`
	QuestionType QuestionType     `json:"question_type"`
	Marks        float64          `json:"marks"`
	Options      []QuestionOption `json:"options"`
	// CorrectAnswer is the canonical text for FILL_BLANK questions.
	CorrectAnswer string `json:"correct_answer,omitempty"`
	OrderNum      int    `json:"order_num"`
}

// OptionTexts returns the option labels without correctness flags.
func (q *Question) OptionTexts() []string {
	if len(q.Options) == 0 {
		return nil
	}
	texts := make([]string, len(q.Options))
	for i, o := range q.Options {
		texts[i] = o.Text
	}
	return texts
}
