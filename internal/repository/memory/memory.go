// Package memory is an in-process implementation of the repository
// contracts, used by STORE_DRIVER=memory and by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/keylock"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// Store keeps exams, attempts and answer records in maps guarded by an
// RWMutex. Attempt transactions additionally hold a per-attempt lock and
// stage their writes until fn succeeds.
type Store struct {
	mu        sync.RWMutex
	exams     map[uuid.UUID]model.Exam
	questions map[uuid.UUID][]model.Question
	attempts  map[uuid.UUID]*model.ExamAttempt
	answers   map[uuid.UUID]map[uuid.UUID]model.AnswerRecord

	attemptLocks keylock.Map
}

var (
	_ repository.ExamReader   = (*Store)(nil)
	_ repository.AttemptStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		exams:     make(map[uuid.UUID]model.Exam),
		questions: make(map[uuid.UUID][]model.Question),
		attempts:  make(map[uuid.UUID]*model.ExamAttempt),
		answers:   make(map[uuid.UUID]map[uuid.UUID]model.AnswerRecord),
	}
}

// PutExam stores an exam definition with its questions, replacing any
// previous version.
func (s *Store) PutExam(exam model.Exam, questions []model.Question) {
	qs := make([]model.Question, len(questions))
	copy(qs, questions)
	for i := range qs {
		qs[i].ExamID = exam.ID
	}
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].OrderNum < qs[j].OrderNum })

	s.mu.Lock()
	s.exams[exam.ID] = exam
	s.questions[exam.ID] = qs
	s.mu.Unlock()
}

// PutAttempt stores an attempt as-is, e.g. a NOT_STARTED registration.
func (s *Store) PutAttempt(a *model.ExamAttempt) {
	s.mu.Lock()
	s.attempts[a.ID] = a.Clone()
	s.mu.Unlock()
}

func (s *Store) GetExam(_ context.Context, examID uuid.UUID) (*model.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.exams[examID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *Store) ListQuestions(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qs := s.questions[examID]
	out := make([]model.Question, len(qs))
	copy(out, qs)
	return out, nil
}

func (s *Store) GetQuestion(_ context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.questions[examID] {
		if q.ID == questionID {
			q := q
			return &q, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetAttempt(_ context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *Store) FindOpenAttempt(_ context.Context, examID uuid.UUID, studentID int) (*model.ExamAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var registered *model.ExamAttempt
	for _, a := range s.attempts {
		if a.ExamID != examID || a.StudentID != studentID {
			continue
		}
		switch a.Status {
		case model.AttemptStatusInProgress:
			return a.Clone(), nil
		case model.AttemptStatusNotStarted:
			if registered == nil || a.CreatedAt.After(registered.CreatedAt) {
				registered = a
			}
		}
	}
	if registered == nil {
		return nil, repository.ErrNotFound
	}
	return registered.Clone(), nil
}

func (s *Store) CountStartedAttempts(_ context.Context, examID uuid.UUID, studentID int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.attempts {
		if a.ExamID == examID && a.StudentID == studentID && a.Status != model.AttemptStatusNotStarted {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateStartedAttempt(_ context.Context, a *model.ExamAttempt, answers []model.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.attempts {
		if other.ID != a.ID && other.ExamID == a.ExamID && other.StudentID == a.StudentID &&
			other.Status == model.AttemptStatusInProgress {
			return repository.ErrConflict
		}
	}
	if existing, ok := s.attempts[a.ID]; ok && existing.Status != model.AttemptStatusNotStarted {
		return repository.ErrConflict
	}

	stored := a.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.UpdatedAt
	}
	s.attempts[a.ID] = stored

	recs := make(map[uuid.UUID]model.AnswerRecord, len(answers))
	for _, rec := range answers {
		recs[rec.QuestionID] = cloneAnswer(rec)
	}
	s.answers[a.ID] = recs
	return nil
}

func (s *Store) ListAnswers(_ context.Context, attemptID uuid.UUID) ([]model.AnswerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedAnswers(s.answers[attemptID]), nil
}

func (s *Store) ListInProgress(_ context.Context) ([]model.ExamAttempt, error) {
	return s.filter(func(a *model.ExamAttempt) bool {
		return a.Status == model.AttemptStatusInProgress
	}, func(x, y *model.ExamAttempt) bool {
		return x.StartTime.Before(*y.StartTime)
	}), nil
}

func (s *Store) ListByExam(_ context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	return s.filter(func(a *model.ExamAttempt) bool {
		return a.ExamID == examID
	}, func(x, y *model.ExamAttempt) bool {
		return x.CreatedAt.After(y.CreatedAt)
	}), nil
}

func (s *Store) filter(keep func(*model.ExamAttempt) bool, less func(x, y *model.ExamAttempt) bool) []model.ExamAttempt {
	s.mu.RLock()
	var out []model.ExamAttempt
	for _, a := range s.attempts {
		if keep(a) {
			out = append(out, *a.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return less(&out[i], &out[j]) })
	return out
}

// WithAttemptLock serializes transactions on the same attempt. Writes are
// staged on a private copy and published only when fn returns nil.
func (s *Store) WithAttemptLock(ctx context.Context, attemptID uuid.UUID, fn func(ctx context.Context, tx repository.AttemptTx) error) error {
	unlock := s.attemptLocks.Lock(attemptID.String())
	defer unlock()

	s.mu.RLock()
	a, ok := s.attempts[attemptID]
	if !ok {
		s.mu.RUnlock()
		return repository.ErrNotFound
	}
	tx := &memoryTx{
		attempt: a.Clone(),
		answers: make(map[uuid.UUID]model.AnswerRecord, len(s.answers[attemptID])),
	}
	for qID, rec := range s.answers[attemptID] {
		tx.answers[qID] = cloneAnswer(rec)
	}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	if tx.attemptDirty {
		s.attempts[attemptID] = tx.attempt.Clone()
	}
	if tx.answersDirty {
		s.answers[attemptID] = tx.answers
	}
	s.mu.Unlock()
	return nil
}

type memoryTx struct {
	attempt      *model.ExamAttempt
	answers      map[uuid.UUID]model.AnswerRecord
	attemptDirty bool
	answersDirty bool
}

func (t *memoryTx) Attempt() *model.ExamAttempt { return t.attempt }

func (t *memoryTx) GetAnswer(_ context.Context, questionID uuid.UUID) (*model.AnswerRecord, error) {
	rec, ok := t.answers[questionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := cloneAnswer(rec)
	return &c, nil
}

func (t *memoryTx) ListAnswers(_ context.Context) ([]model.AnswerRecord, error) {
	return sortedAnswers(t.answers), nil
}

func (t *memoryTx) UpsertAnswer(_ context.Context, rec *model.AnswerRecord) error {
	c := cloneAnswer(*rec)
	c.AttemptID = t.attempt.ID
	if prev, ok := t.answers[rec.QuestionID]; ok {
		c.Position = prev.Position
	}
	t.answers[rec.QuestionID] = c
	t.answersDirty = true
	return nil
}

func (t *memoryTx) SumMarks(_ context.Context) (float64, error) {
	var sum float64
	for _, rec := range t.answers {
		sum += rec.MarksObtained
	}
	return sum, nil
}

func (t *memoryTx) UpdateAttempt(_ context.Context, a *model.ExamAttempt) error {
	t.attempt = a.Clone()
	t.attemptDirty = true
	return nil
}

func sortedAnswers(m map[uuid.UUID]model.AnswerRecord) []model.AnswerRecord {
	out := make([]model.AnswerRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, cloneAnswer(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].QuestionID.String() < out[j].QuestionID.String()
	})
	return out
}

func cloneAnswer(rec model.AnswerRecord) model.AnswerRecord {
	if rec.AnswerText != nil {
		s := *rec.AnswerText
		rec.AnswerText = &s
	}
	if rec.IsCorrect != nil {
		b := *rec.IsCorrect
		rec.IsCorrect = &b
	}
	if rec.AnsweredAt != nil {
		t := *rec.AnsweredAt
		rec.AnsweredAt = &t
	}
	return rec
}
