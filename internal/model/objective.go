package model

import "time"

// ObjectiveStatus represents the lifecycle state of an objective.
type ObjectiveStatus string

const (
	ObjectivePlanning  ObjectiveStatus = "planning"  // Created, decomposition not yet scheduled
	ObjectiveExecuting ObjectiveStatus = "executing" // Owned tasks are being scheduled
	ObjectiveCompleted ObjectiveStatus = "completed" // All owned tasks completed
	ObjectiveFailed    ObjectiveStatus = "failed"    // At least one owned task failed permanently
)

// Valid reports whether the status is a known value.
func (s ObjectiveStatus) Valid() bool {
	switch s {
	case ObjectivePlanning, ObjectiveExecuting, ObjectiveCompleted, ObjectiveFailed:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transitions.
func (s ObjectiveStatus) Terminal() bool {
	return s == ObjectiveCompleted || s == ObjectiveFailed
}

// Strategy selects a decomposition template for an objective.
type Strategy string

const (
	StrategyAuto          Strategy = "auto" // Infer from the description
	StrategyResearch      Strategy = "research"
	StrategyDevelopment   Strategy = "development"
	StrategyAnalysis      Strategy = "analysis"
	StrategyTesting       Strategy = "testing"
	StrategyDocumentation Strategy = "documentation"
)

// Valid reports whether the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyAuto, StrategyResearch, StrategyDevelopment,
		StrategyAnalysis, StrategyTesting, StrategyDocumentation:
		return true
	}
	return false
}

// Objective is a goal decomposed into dependency-ordered tasks.
type Objective struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Strategy    Strategy        `json:"strategy"`
	Status      ObjectiveStatus `json:"status"`
	TaskIDs     []string        `json:"task_ids,omitempty"`
	Progress    Progress        `json:"progress"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Progress summarizes owned task outcomes.
type Progress struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Clone returns a deep copy safe to hand outside the coordinator lock.
func (o *Objective) Clone() *Objective {
	if o == nil {
		return nil
	}
	c := *o
	c.TaskIDs = append([]string(nil), o.TaskIDs...)
	c.StartedAt = cloneTime(o.StartedAt)
	c.CompletedAt = cloneTime(o.CompletedAt)
	return &c
}
