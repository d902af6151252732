package main

import (
	"time"

	"github.com/queueshift/queueshift/rules"
)

// Wire models. Rules travel flat over HTTP (trigger fields at the top
// level, the way the rule form submits them); the engine's nested types are
// built in toRule.

type ruleRequest struct {
	Name         string            `json:"name"`
	Type         rules.RuleType    `json:"type"`
	Enabled      *bool             `json:"enabled,omitempty"`
	FromStatus   string            `json:"fromStatus"`
	ToStatus     string            `json:"toStatus"`
	TimeType     rules.TimeType    `json:"timeType,omitempty"`
	Days         int               `json:"days,omitempty"`
	SpecificDate string            `json:"specificDate,omitempty"`
	SpecificTime string            `json:"specificTime,omitempty"`
	Condition    *rules.Condition  `json:"condition,omitempty"`
	Filters      *rules.FilterSet  `json:"filters,omitempty"`
}

// toRule maps the wire form onto a rule. Only the payload matching the
// declared type is carried over, so switching type on update resets the
// other trigger payload.
func (r ruleRequest) toRule(id string) *rules.Rule {
	rule := &rules.Rule{
		ID:         id,
		Name:       r.Name,
		Type:       r.Type,
		Enabled:    true,
		FromStatus: r.FromStatus,
		ToStatus:   r.ToStatus,
	}

	if r.Enabled != nil {
		rule.Enabled = *r.Enabled
	}
	if r.Filters != nil {
		rule.Filters = *r.Filters
	}

	switch r.Type {
	case rules.RuleTimeBased:
		rule.Time = &rules.TimeTrigger{
			TimeType:     r.TimeType,
			Days:         r.Days,
			SpecificDate: r.SpecificDate,
			SpecificTime: r.SpecificTime,
		}
	case rules.RuleConditionBased:
		rule.Condition = r.Condition
	}

	return rule
}

type ruleResponse struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Type         rules.RuleType   `json:"type"`
	Enabled      bool             `json:"enabled"`
	FromStatus   string           `json:"fromStatus"`
	ToStatus     string           `json:"toStatus"`
	TimeType     rules.TimeType   `json:"timeType,omitempty"`
	Days         int              `json:"days,omitempty"`
	SpecificDate string           `json:"specificDate,omitempty"`
	SpecificTime string           `json:"specificTime,omitempty"`
	Condition    *rules.Condition `json:"condition,omitempty"`
	Filters      rules.FilterSet  `json:"filters"`
	CreatedAt    time.Time        `json:"createdAt"`
	CreatedBy    string           `json:"createdBy"`
	UpdatedAt    *time.Time       `json:"updatedAt,omitempty"`
}

func toRuleResponse(rule *rules.Rule) ruleResponse {
	resp := ruleResponse{
		ID:         rule.ID,
		Name:       rule.Name,
		Type:       rule.Type,
		Enabled:    rule.Enabled,
		FromStatus: rule.FromStatus,
		ToStatus:   rule.ToStatus,
		Condition:  rule.Condition,
		Filters:    rule.Filters,
		CreatedAt:  rule.CreatedAt,
		CreatedBy:  rule.CreatedBy,
		UpdatedAt:  rule.UpdatedAt,
	}
	if rule.Time != nil {
		resp.TimeType = rule.Time.TimeType
		resp.Days = rule.Time.Days
		resp.SpecificDate = rule.Time.SpecificDate
		resp.SpecificTime = rule.Time.SpecificTime
	}
	return resp
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type executeRequest struct {
	RuleIDs        []string `json:"ruleIds"`
	EnableDisabled bool     `json:"enableDisabled,omitempty"`
}

type executeResponse struct {
	Processed            int                    `json:"processed"`
	Updated              int                    `json:"updated"`
	Errors               []rules.ExecutionError `json:"errors"`
	Duration             string                 `json:"duration"`
	ConfirmationRequired bool                   `json:"confirmationRequired,omitempty"`
	DisabledRules        []rules.RuleRef        `json:"disabledRules,omitempty"`
}

func toExecuteResponse(result *rules.ExecutionResult) executeResponse {
	return executeResponse{
		Processed:            result.Processed,
		Updated:              result.Updated,
		Errors:               result.Errors,
		Duration:             result.Duration.String(),
		ConfirmationRequired: result.ConfirmationRequired,
		DisabledRules:        result.DisabledRules,
	}
}
