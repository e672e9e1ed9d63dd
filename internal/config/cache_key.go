package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptSessionKey returns the cache key for an attempt's session view
func (r *CacheKeyStruct) AttemptSessionKey(attemptID uuid.UUID) string {
	return fmt.Sprintf("attempt:%s:session_view", attemptID)
}

// ExamDefinitionKey returns the cache key for an exam's definition
func (r *CacheKeyStruct) ExamDefinitionKey(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// ExamQuestionsKey returns the cache key for an exam's ordered questions
func (r *CacheKeyStruct) ExamQuestionsKey(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:questions", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID uuid.UUID) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
