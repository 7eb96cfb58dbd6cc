// Package decompose turns objectives into dependency-ordered task lists.
// The built-in decomposer expands per-strategy templates; callers with
// richer planners can supply their own Decomposer.
package decompose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mlanders/swarmd/internal/errors"
	"github.com/mlanders/swarmd/internal/model"
)

// Decomposer breaks an objective into tasks. Returned tasks must form an
// acyclic graph; the coordinator validates before admitting them.
type Decomposer interface {
	Decompose(ctx context.Context, obj *model.Objective) ([]*model.Task, error)
}

// Defaults are applied to every task a template produces.
type Defaults struct {
	Timeout    time.Duration
	MaxRetries int
}

// step is one entry of a strategy template. Dependencies reference the keys
// of earlier steps in the same template.
type step struct {
	key      string
	name     string
	taskType model.TaskType
	caps     []string
	priority model.TaskPriority
	deps     []string
}

// templates maps each strategy to its task pipeline.
var templates = map[model.Strategy][]step{
	model.StrategyResearch: {
		{key: "gather", name: "Gather sources", taskType: model.TypeResearch, caps: []string{"research"}, priority: model.PriorityHigh},
		{key: "analyze", name: "Analyze findings", taskType: model.TypeAnalysis, caps: []string{"analysis"}, priority: model.PriorityNormal, deps: []string{"gather"}},
		{key: "synthesize", name: "Synthesize report", taskType: model.TypeDocumentation, caps: []string{"documentation"}, priority: model.PriorityNormal, deps: []string{"analyze"}},
	},
	model.StrategyDevelopment: {
		{key: "design", name: "Design solution", taskType: model.TypeAnalysis, caps: []string{"analysis"}, priority: model.PriorityHigh},
		{key: "implement", name: "Implement changes", taskType: model.TypeImplementation, caps: []string{"implementation"}, priority: model.PriorityHigh, deps: []string{"design"}},
		{key: "test", name: "Test changes", taskType: model.TypeTesting, caps: []string{"testing"}, priority: model.PriorityNormal, deps: []string{"implement"}},
		{key: "document", name: "Document changes", taskType: model.TypeDocumentation, caps: []string{"documentation"}, priority: model.PriorityLow, deps: []string{"implement", "test"}},
	},
	model.StrategyAnalysis: {
		{key: "collect", name: "Collect data", taskType: model.TypeResearch, caps: []string{"research"}, priority: model.PriorityHigh},
		{key: "analyze", name: "Analyze data", taskType: model.TypeAnalysis, caps: []string{"analysis"}, priority: model.PriorityNormal, deps: []string{"collect"}},
		{key: "report", name: "Report results", taskType: model.TypeDocumentation, caps: []string{"documentation"}, priority: model.PriorityNormal, deps: []string{"analyze"}},
	},
	model.StrategyTesting: {
		{key: "plan", name: "Plan test coverage", taskType: model.TypeAnalysis, caps: []string{"analysis"}, priority: model.PriorityHigh},
		{key: "execute", name: "Execute tests", taskType: model.TypeTesting, caps: []string{"testing"}, priority: model.PriorityNormal, deps: []string{"plan"}},
		{key: "report", name: "Report findings", taskType: model.TypeDocumentation, caps: []string{"documentation"}, priority: model.PriorityLow, deps: []string{"execute"}},
	},
	model.StrategyDocumentation: {
		{key: "outline", name: "Outline structure", taskType: model.TypeAnalysis, caps: []string{"analysis"}, priority: model.PriorityNormal},
		{key: "draft", name: "Draft content", taskType: model.TypeDocumentation, caps: []string{"documentation"}, priority: model.PriorityNormal, deps: []string{"outline"}},
		{key: "review", name: "Review draft", taskType: model.TypeReview, caps: []string{"review"}, priority: model.PriorityLow, deps: []string{"draft"}},
	},
}

// strategyKeywords drive auto-strategy detection over the description.
var strategyKeywords = map[model.Strategy][]string{
	model.StrategyResearch:      {"research", "investigate", "explore", "survey", "gather"},
	model.StrategyTesting:       {"test", "verify", "validate", "coverage", "regression"},
	model.StrategyAnalysis:      {"analyze", "analysis", "measure", "profile", "audit"},
	model.StrategyDocumentation: {"document", "documentation", "readme", "guide", "changelog"},
	model.StrategyDevelopment:   {"implement", "build", "develop", "refactor", "fix"},
}

// Template expands built-in strategy templates into task lists.
type Template struct {
	defaults Defaults
}

// NewTemplate creates the built-in decomposer.
func NewTemplate(defaults Defaults) *Template {
	return &Template{defaults: defaults}
}

// Decompose expands the objective's strategy template. The auto strategy
// picks a template by keyword detection, defaulting to development.
func (d *Template) Decompose(ctx context.Context, obj *model.Objective) ([]*model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	strat := obj.Strategy
	if strat == model.StrategyAuto {
		strat = Detect(obj.Description)
	}

	steps, ok := templates[strat]
	if !ok {
		return nil, errors.NewInvalidState("decompose", fmt.Sprintf("no template for strategy %q", strat), nil)
	}

	now := time.Now()
	ids := make(map[string]string, len(steps))
	tasks := make([]*model.Task, 0, len(steps))

	for _, s := range steps {
		id := model.NewID("task")
		ids[s.key] = id

		deps := make([]string, 0, len(s.deps))
		for _, key := range s.deps {
			depID, ok := ids[key]
			if !ok {
				return nil, errors.NewDependency(id,
					fmt.Sprintf("template step %q depends on unknown step %q", s.key, key),
					errors.ErrMissingDependency)
			}
			deps = append(deps, depID)
		}

		tasks = append(tasks, &model.Task{
			ID:           id,
			ObjectiveID:  obj.ID,
			Name:         s.name,
			Type:         s.taskType,
			Priority:     s.priority,
			DependsOn:    deps,
			Capabilities: append([]string(nil), s.caps...),
			Instructions: fmt.Sprintf("%s: %s", s.name, obj.Description),
			Status:       model.TaskPending,
			MaxRetries:   d.defaults.MaxRetries,
			Timeout:      d.defaults.Timeout,
			CreatedAt:    now,
		})
	}

	return tasks, nil
}

// Detect infers a strategy from the description by keyword frequency.
// Unmatched descriptions fall back to development.
func Detect(description string) model.Strategy {
	lower := strings.ToLower(description)

	best := model.StrategyDevelopment
	bestHits := 0

	// Fixed iteration order keeps detection deterministic on tied counts.
	order := []model.Strategy{
		model.StrategyResearch,
		model.StrategyTesting,
		model.StrategyAnalysis,
		model.StrategyDocumentation,
		model.StrategyDevelopment,
	}

	for _, strat := range order {
		hits := 0
		for _, kw := range strategyKeywords[strat] {
			hits += strings.Count(lower, kw)
		}
		if hits > bestHits {
			best, bestHits = strat, hits
		}
	}

	return best
}
