package domain

import (
	"fmt"
	"strings"
)

// TaskCategory is the closed enumeration of task kinds the bandit and
// feedback layers reason about.
type TaskCategory int

const (
	TaskCodeGeneration TaskCategory = iota
	TaskCodeReview
	TaskDebugging
	TaskExplanation
	TaskSummarization
	TaskTranslation
	TaskCreativeWriting
	TaskDataAnalysis
	TaskQuestionAnswering
	TaskPlanning
	TaskRefactoring
	TaskTesting
	TaskDocumentation
	TaskResearch
	TaskConversation
	TaskGeneral

	numTaskCategories
)

func (t TaskCategory) String() string {
	switch t {
	case TaskCodeGeneration:
		return "code_generation"
	case TaskCodeReview:
		return "code_review"
	case TaskDebugging:
		return "debugging"
	case TaskExplanation:
		return "explanation"
	case TaskSummarization:
		return "summarization"
	case TaskTranslation:
		return "translation"
	case TaskCreativeWriting:
		return "creative_writing"
	case TaskDataAnalysis:
		return "data_analysis"
	case TaskQuestionAnswering:
		return "question_answering"
	case TaskPlanning:
		return "planning"
	case TaskRefactoring:
		return "refactoring"
	case TaskTesting:
		return "testing"
	case TaskDocumentation:
		return "documentation"
	case TaskResearch:
		return "research"
	case TaskConversation:
		return "conversation"
	case TaskGeneral:
		return "general"
	default:
		return "unknown"
	}
}

// AllTaskCategories returns every category in declaration order.
func AllTaskCategories() []TaskCategory {
	out := make([]TaskCategory, 0, int(numTaskCategories))
	for t := TaskCategory(0); t < numTaskCategories; t++ {
		out = append(out, t)
	}
	return out
}

// taskKeywordOrder maps each category to the keywords that identify it.
// Checked in the declared priority order below — first match wins, so
// more specific categories (debugging) are listed ahead of more general
// ones (question_answering) when their keyword sets could overlap.
var taskKeywordOrder = []struct {
	category TaskCategory
	keywords []string
}{
	{TaskDebugging, []string{"bug", "error", "crash", "stack trace", "traceback", "fix this", "not working", "debug"}},
	{TaskCodeReview, []string{"review this code", "code review", "review my pr", "review this pr"}},
	{TaskRefactoring, []string{"refactor", "clean up this code", "simplify this code", "restructure"}},
	{TaskTesting, []string{"write a test", "unit test", "test case", "write tests"}},
	{TaskCodeGeneration, []string{"write a function", "implement", "write code", "write a script", "generate code"}},
	{TaskTranslation, []string{"translate"}},
	{TaskSummarization, []string{"summarize", "tldr", "summary of"}},
	{TaskDocumentation, []string{"write documentation", "document this", "docstring", "readme"}},
	{TaskDataAnalysis, []string{"analyze this data", "analyze the data", "csv", "dataset", "statistics on"}},
	{TaskPlanning, []string{"make a plan", "roadmap", "project plan", "break this down into steps"}},
	{TaskResearch, []string{"research", "find sources", "literature review"}},
	{TaskCreativeWriting, []string{"write a story", "write a poem", "creative writing", "write a song"}},
	{TaskExplanation, []string{"explain", "what is", "how does", "why does"}},
	{TaskQuestionAnswering, []string{"?"}},
}

// DetectFromQuery is a simple keyword matcher that classifies a raw
// query string into a TaskCategory. Falls back to TaskGeneral.
func DetectFromQuery(query string) TaskCategory {
	q := strings.ToLower(query)
	for _, entry := range taskKeywordOrder {
		for _, kw := range entry.keywords {
			if strings.Contains(q, kw) {
				return entry.category
			}
		}
	}
	return TaskGeneral
}

// TimeCluster buckets the hour of day into coarse activity periods.
type TimeCluster int

const (
	TimeNight TimeCluster = iota
	TimeMorning
	TimeAfternoon
	TimeEvening
)

func (t TimeCluster) String() string {
	switch t {
	case TimeNight:
		return "night"
	case TimeMorning:
		return "morning"
	case TimeAfternoon:
		return "afternoon"
	case TimeEvening:
		return "evening"
	default:
		return "unknown"
	}
}

// TimeClusterOf maps an hour-of-day (0-23) to its TimeCluster.
func TimeClusterOf(hour int) TimeCluster {
	switch {
	case hour >= 0 && hour < 6:
		return TimeNight
	case hour >= 6 && hour < 12:
		return TimeMorning
	case hour >= 12 && hour < 18:
		return TimeAfternoon
	default:
		return TimeEvening
	}
}

// ResourceTier classifies available memory against the tuner-managed
// MemoryTierLowGB / MemoryTierMediumGB thresholds.
type ResourceTier int

const (
	ResourceLow ResourceTier = iota
	ResourceMedium
	ResourceHigh
)

func (r ResourceTier) String() string {
	switch r {
	case ResourceLow:
		return "low"
	case ResourceMedium:
		return "medium"
	case ResourceHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ResourceTierOf classifies availableMemoryGB given the two configured
// thresholds (lowGB, mediumGB), lowGB < mediumGB.
func ResourceTierOf(availableMemoryGB, lowGB, mediumGB float64) ResourceTier {
	switch {
	case availableMemoryGB < lowGB:
		return ResourceLow
	case availableMemoryGB < mediumGB:
		return ResourceMedium
	default:
		return ResourceHigh
	}
}

// UrgencyLevel classifies how time-sensitive a task is.
type UrgencyLevel int

const (
	UrgencyLow UrgencyLevel = iota
	UrgencyNormal
	UrgencyHigh
	UrgencyCritical
)

func (u UrgencyLevel) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyNormal:
		return "normal"
	case UrgencyHigh:
		return "high"
	case UrgencyCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ComplexityLevel classifies estimated task difficulty.
type ComplexityLevel int

const (
	ComplexitySimple ComplexityLevel = iota
	ComplexityModerate
	ComplexityComplex
	ComplexityVeryComplex
)

func (c ComplexityLevel) String() string {
	switch c {
	case ComplexitySimple:
		return "simple"
	case ComplexityModerate:
		return "moderate"
	case ComplexityComplex:
		return "complex"
	case ComplexityVeryComplex:
		return "very_complex"
	default:
		return "unknown"
	}
}

// Context is the tuple the bandit keys per-context statistics by. At
// most the 3 most recent task categories are tracked.
type Context struct {
	TaskType     TaskCategory
	TimeCluster  TimeCluster
	ResourceTier ResourceTier
	RecentTasks  []TaskCategory // capped to 3 by the caller/constructor
	Urgency      UrgencyLevel
	Complexity   ComplexityLevel
}

// NewContext builds a Context, capping RecentTasks to the most recent 3.
func NewContext(task TaskCategory, tc TimeCluster, rt ResourceTier, recent []TaskCategory, urgency UrgencyLevel, complexity ComplexityLevel) Context {
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	capped := make([]TaskCategory, len(recent))
	copy(capped, recent)
	return Context{
		TaskType:     task,
		TimeCluster:  tc,
		ResourceTier: rt,
		RecentTasks:  capped,
		Urgency:      urgency,
		Complexity:   complexity,
	}
}

// Hash returns a stable string key for the context tuple, used to index
// per-context bandit statistics.
func (c Context) Hash() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%d|%d|%d|%d|", c.TaskType, c.TimeCluster, c.ResourceTier, c.Urgency, c.Complexity)
	for i, rt := range c.RecentTasks {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", rt)
	}
	return sb.String()
}
