package service

import (
	"encoding/binary"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// buildAnswerRecords creates one empty record per question. Positions follow
// the exam order, or a permutation seeded by the attempt id when the exam
// randomizes questions. The order is persisted, so it is rolled only once.
func buildAnswerRecords(attemptID uuid.UUID, questions []model.Question, randomize bool, now time.Time) []model.AnswerRecord {
	order := make([]int, len(questions))
	for i := range order {
		order[i] = i
	}
	if randomize {
		rng := rand.New(rand.NewPCG(
			binary.BigEndian.Uint64(attemptID[:8]),
			binary.BigEndian.Uint64(attemptID[8:]),
		))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	records := make([]model.AnswerRecord, len(questions))
	for pos, idx := range order {
		records[pos] = model.AnswerRecord{
			AttemptID:  attemptID,
			QuestionID: questions[idx].ID,
			Position:   pos + 1,
			UpdatedAt:  now,
		}
	}
	return records
}
