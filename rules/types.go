package rules

import "time"

// RuleType selects which trigger payload a rule carries.
type RuleType string

const (
	RuleTimeBased      RuleType = "time_based"
	RuleConditionBased RuleType = "condition_based"
)

// TimeType selects between elapsed-days and fixed-date time triggers.
type TimeType string

const (
	TimeDays TimeType = "days"
	TimeDate TimeType = "date"
)

// Operator is a comparison applied by condition-based triggers.
// The set of operators permitted for a field depends on its FieldType.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// FilterMode controls how a filter dimension restricts its catalog.
type FilterMode string

const (
	FilterNone    FilterMode = "none"
	FilterInclude FilterMode = "include"
	FilterExclude FilterMode = "exclude"
)

// TriggerSource records what initiated an execution batch.
type TriggerSource string

const (
	TriggeredManually    TriggerSource = "manual"
	TriggeredByScheduler TriggerSource = "automatic_scheduler"
)

// TimeTrigger is the payload of a time-based rule.
// Days is used when TimeType is "days"; SpecificDate ("2006-01-02") and
// SpecificTime ("15:04") are combined in UTC when TimeType is "date".
type TimeTrigger struct {
	TimeType     TimeType `json:"timeType"`
	Days         int      `json:"days,omitempty"`
	SpecificDate string   `json:"specificDate,omitempty"`
	SpecificTime string   `json:"specificTime,omitempty"`
}

// Condition is the single field comparison of a condition-based rule.
// Value is always carried as a string and coerced according to the
// field's declared type when the rule is compiled.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Filter restricts one dimension (projects, objectives, or contributor
// projects). Mode "none" imposes no restriction regardless of Selected.
type Filter struct {
	Mode     FilterMode `json:"mode"`
	Selected []string   `json:"selected,omitempty"`
}

// FilterSet holds the three independent filter dimensions of a rule.
type FilterSet struct {
	Projects            Filter `json:"projects"`
	ProjectObjectives   Filter `json:"projectObjectives"`
	ContributorProjects Filter `json:"contributorProjects"`
}

// Rule is a persisted automation definition: a trigger plus a queue-status
// transition, scoped by filters. Exactly one of Time / Condition is set,
// matching Type.
type Rule struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Type       RuleType     `json:"type"`
	Enabled    bool         `json:"enabled"`
	FromStatus string       `json:"fromStatus"`
	ToStatus   string       `json:"toStatus"`
	Time       *TimeTrigger `json:"time,omitempty"`
	Condition  *Condition   `json:"condition,omitempty"`
	Filters    FilterSet    `json:"filters"`
	CreatedAt  time.Time    `json:"createdAt"`
	CreatedBy  string       `json:"createdBy"`
	UpdatedAt  *time.Time   `json:"updatedAt,omitempty"`
}

// RuleRef identifies a rule in confirmation responses.
type RuleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TransitionPlan is the computed, not-yet-applied outcome of evaluating one
// rule: the records whose trigger fired and the transition to apply.
// Evaluated counts the records that survived filtering and were handed to
// the trigger evaluator. RecordIDs preserves catalog iteration order.
type TransitionPlan struct {
	RuleID     string   `json:"ruleId"`
	RecordIDs  []string `json:"recordIds"`
	FromStatus string   `json:"fromStatus"`
	ToStatus   string   `json:"toStatus"`
	Evaluated  int      `json:"evaluated"`
}

// ExecutionError captures a single per-record (or per-rule) failure inside
// an execution batch.
type ExecutionError struct {
	RuleID   string `json:"ruleId"`
	RecordID string `json:"recordId,omitempty"`
	Message  string `json:"message"`
}

// ExecutionResult is the aggregate outcome of one execution batch. When
// ConfirmationRequired is set, nothing was executed: the caller must confirm
// enabling the listed disabled rules and retry.
type ExecutionResult struct {
	Processed            int              `json:"processed"`
	Updated              int              `json:"updated"`
	Errors               []ExecutionError `json:"errors"`
	Duration             time.Duration    `json:"duration"`
	ConfirmationRequired bool             `json:"confirmationRequired,omitempty"`
	DisabledRules        []RuleRef        `json:"disabledRules,omitempty"`
}

// ExecutionEntry is the append-only audit record of one rule's execution
// within a batch. Entries are never mutated after creation.
type ExecutionEntry struct {
	ID             string           `json:"id"`
	RuleID         string           `json:"ruleId"`
	ExecutionTime  time.Time        `json:"executionTime"`
	TriggeredBy    TriggerSource    `json:"triggeredBy"`
	RulesProcessed int              `json:"rulesProcessed"`
	RulesUpdated   int              `json:"rulesUpdated"`
	DurationMS     int64            `json:"duration"`
	Errors         []ExecutionError `json:"errors"`
}

// Project is a catalog record for the projects filter dimension.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectObjective is a catalog record for the objectives filter dimension.
// Each objective belongs to exactly one project.
type ProjectObjective struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
}

// ContributorProject is the unit the engine mutates: one contributor's
// participation in a project, carrying the queue status. ObjectiveID may be
// empty. StatusChangedAt is nil when the record store never tracked a status
// transition; elapsed-time triggers then fall back to UpdatedAt/CreatedAt.
// Attributes holds additional CRM fields addressable by condition rules.
type ContributorProject struct {
	ID              string         `json:"id"`
	ProjectID       string         `json:"projectId"`
	ObjectiveID     string         `json:"objectiveId,omitempty"`
	ContributorName string         `json:"contributorName"`
	QueueStatus     string         `json:"queueStatus"`
	StatusChangedAt *time.Time     `json:"statusChangedAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Attributes      map[string]any `json:"attributes,omitempty"`
}
