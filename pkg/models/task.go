package models

import "time"

// TaskCategory classifies a unit of AI work. The category decides the
// default backend tier and the token/timeout budget for the call.
type TaskCategory string

const (
	TaskCategorySimple     TaskCategory = "simple"
	TaskCategoryComplex    TaskCategory = "complex"
	TaskCategoryEvaluation TaskCategory = "evaluation"
	TaskCategoryCreative   TaskCategory = "creative"
)

// TaskDescriptor carries a classified task's routing budget.
type TaskDescriptor struct {
	Category  TaskCategory  `json:"category"`
	Tier      ModelTier     `json:"tier"`
	MaxTokens int           `json:"max_tokens"`
	Timeout   time.Duration `json:"timeout"`
}
