package grading

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
)

func mcq(marks float64, correct string, others ...string) *model.Question {
	opts := []model.QuestionOption{{Text: correct, IsCorrect: true}}
	for _, o := range others {
		opts = append(opts, model.QuestionOption{Text: o})
	}
	return &model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeMultipleChoice,
		Marks:        marks,
		Options:      opts,
	}
}

func TestGrade(t *testing.T) {
	capital := mcq(4, "Paris", "London", "Berlin")
	trueFalse := &model.Question{
		QuestionType: model.QuestionTypeTrueFalse,
		Marks:        1,
		Options:      []model.QuestionOption{{Text: "True"}, {Text: "False", IsCorrect: true}},
	}
	trueFalseNoOptions := &model.Question{
		QuestionType:  model.QuestionTypeTrueFalse,
		Marks:         1,
		CorrectAnswer: "True",
	}
	blank := &model.Question{
		QuestionType:  model.QuestionTypeFillBlank,
		Marks:         2,
		CorrectAnswer: " Photosynthesis ",
	}
	essay := &model.Question{QuestionType: model.QuestionTypeEssay, Marks: 10}
	unknown := &model.Question{QuestionType: "MATCHING", Marks: 3}
	noKey := &model.Question{QuestionType: model.QuestionTypeMultipleChoice, Marks: 2,
		Options: []model.QuestionOption{{Text: "A"}, {Text: "B"}}}

	tests := []struct {
		name        string
		q           *model.Question
		answer      string
		wantCorrect bool
		wantMarks   float64
		wantGraded  bool
		wantAnomaly bool
	}{
		{"choice exact match", capital, "Paris", true, 4, true, false},
		{"choice trims whitespace", capital, "  Paris\n", true, 4, true, false},
		{"choice is case-sensitive", capital, "paris", false, 0, true, false},
		{"choice wrong option", capital, "London", false, 0, true, false},
		{"choice empty answer", capital, "   ", false, 0, true, false},
		{"true/false option", trueFalse, "False", true, 1, true, false},
		{"true/false case-sensitive", trueFalse, "false", false, 0, true, false},
		{"true/false canonical text", trueFalseNoOptions, "True", true, 1, true, false},
		{"fill blank ignores case", blank, "PHOTOSYNTHESIS", true, 2, true, false},
		{"fill blank trims", blank, " photosynthesis  ", true, 2, true, false},
		{"fill blank wrong", blank, "respiration", false, 0, true, false},
		{"fill blank empty", blank, "", false, 0, true, false},
		{"essay never auto graded", essay, "a long essay", false, 0, false, false},
		{"unknown type degrades", unknown, "x", false, 0, false, true},
		{"choice without key degrades", noKey, "A", false, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Grade(tt.q, tt.answer)
			if got.IsCorrect != tt.wantCorrect || got.Marks != tt.wantMarks || got.Graded != tt.wantGraded {
				t.Errorf("Grade(%q) = %+v, want correct=%v marks=%v graded=%v",
					tt.answer, got, tt.wantCorrect, tt.wantMarks, tt.wantGraded)
			}
			if (got.Anomaly != "") != tt.wantAnomaly {
				t.Errorf("anomaly = %q, want anomaly=%v", got.Anomaly, tt.wantAnomaly)
			}
		})
	}
}

func TestGraderLogsAnomaly(t *testing.T) {
	var buf bytes.Buffer
	var seen []model.QuestionType
	g := NewGrader(zerolog.New(&buf), func(qt model.QuestionType) { seen = append(seen, qt) })

	res := g.Grade(&model.Question{ID: uuid.New(), QuestionType: "MATCHING", Marks: 5}, "A-1")
	if res.Marks != 0 || res.IsCorrect {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(buf.String(), "integrity warning") {
		t.Errorf("expected integrity warning in log, got %q", buf.String())
	}
	if len(seen) != 1 || seen[0] != "MATCHING" {
		t.Errorf("anomaly hook calls = %v", seen)
	}

	buf.Reset()
	g.Grade(mcq(1, "A"), "A")
	if buf.Len() != 0 {
		t.Errorf("clean grade should not log, got %q", buf.String())
	}
}
