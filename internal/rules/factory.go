package rules

import (
	"fmt"
	"strings"
)

// ConditionConfig is the declarative form of a condition, decoded from
// the ruleset file.
type ConditionConfig struct {
	Type             string  `mapstructure:"type" yaml:"type" json:"type"`
	Operator         string  `mapstructure:"operator" yaml:"operator" json:"operator,omitempty"`
	Threshold        float64 `mapstructure:"threshold" yaml:"threshold" json:"threshold,omitempty"`
	TolerancePercent float64 `mapstructure:"tolerance_percent" yaml:"tolerance_percent" json:"tolerance_percent,omitempty"`
}

// ActionConfig is the declarative form of an action.
type ActionConfig struct {
	Type               string  `mapstructure:"type" yaml:"type" json:"type"`
	Reference          string  `mapstructure:"reference" yaml:"reference" json:"reference,omitempty"`
	Percent            float64 `mapstructure:"percent" yaml:"percent" json:"percent,omitempty"`
	EntryOffsetPercent float64 `mapstructure:"entry_offset_percent" yaml:"entry_offset_percent" json:"entry_offset_percent,omitempty"`
	TakeProfitPercent  float64 `mapstructure:"take_profit_percent" yaml:"take_profit_percent" json:"take_profit_percent,omitempty"`
	StopLossPercent    float64 `mapstructure:"stop_loss_percent" yaml:"stop_loss_percent" json:"stop_loss_percent,omitempty"`
	Reason             string  `mapstructure:"reason" yaml:"reason" json:"reason,omitempty"`
}

// RuleConfig is one rule: all conditions must pass for the actions to
// run.
type RuleConfig struct {
	Name       string            `mapstructure:"name" yaml:"name" json:"name"`
	Conditions []ConditionConfig `mapstructure:"conditions" yaml:"conditions" json:"conditions"`
	Actions    []ActionConfig    `mapstructure:"actions" yaml:"actions" json:"actions"`
}

func parseOperator(raw string) (Operator, error) {
	op := Operator(strings.TrimSpace(raw))
	switch op {
	case OpGT, OpGTE, OpLT, OpLTE, OpEQ:
		return op, nil
	case "":
		return OpGTE, nil
	default:
		return "", fmt.Errorf("unknown operator %q", raw)
	}
}

func parseReference(raw string) (ReferenceType, error) {
	ref := ReferenceType(strings.ToUpper(strings.TrimSpace(raw)))
	switch ref {
	case RefOrderOpenPrice, RefCurrentPrice, RefExpertTargetPrice:
		return ref, nil
	case "":
		return RefOrderOpenPrice, nil
	default:
		return "", fmt.Errorf("unknown reference type %q", raw)
	}
}

// NewCondition builds a condition variant from its config.
func NewCondition(cfg ConditionConfig) (Condition, error) {
	op, err := parseOperator(cfg.Operator)
	if err != nil {
		return nil, err
	}
	switch ConditionType(strings.ToUpper(strings.TrimSpace(cfg.Type))) {
	case CondConfidenceThreshold:
		return &ConfidenceThresholdCondition{Operator: op, Threshold: cfg.Threshold}, nil
	case CondExpectedProfitThreshold:
		return &ExpectedProfitThresholdCondition{Operator: op, Threshold: cfg.Threshold}, nil
	case CondPositionProfitPercent:
		return &PositionProfitPercentCondition{Operator: op, Threshold: cfg.Threshold}, nil
	case CondNewTargetHigher:
		return &NewTargetHigherCondition{TolerancePercent: cfg.TolerancePercent}, nil
	case CondNewTargetLower:
		return &NewTargetLowerCondition{TolerancePercent: cfg.TolerancePercent}, nil
	default:
		return nil, fmt.Errorf("unknown condition type %q", cfg.Type)
	}
}

// NewAction builds an action variant from its config.
func NewAction(cfg ActionConfig) (Action, error) {
	ref, err := parseReference(cfg.Reference)
	if err != nil {
		return nil, err
	}
	switch ActionType(strings.ToUpper(strings.TrimSpace(cfg.Type))) {
	case ActionOpenPosition:
		return &OpenPositionAction{
			Reference:          ref,
			EntryOffsetPercent: cfg.EntryOffsetPercent,
			TakeProfitPercent:  cfg.TakeProfitPercent,
			StopLossPercent:    cfg.StopLossPercent,
		}, nil
	case ActionClosePosition:
		return &ClosePositionAction{Reason: cfg.Reason}, nil
	case ActionAdjustTakeProfit:
		return &AdjustTakeProfitAction{Reference: ref, Percent: cfg.Percent}, nil
	case ActionAdjustStopLoss:
		return &AdjustStopLossAction{Reference: ref, Percent: cfg.Percent}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", cfg.Type)
	}
}

// BuildRuleset compiles rule configs into an executable ruleset.
func BuildRuleset(id string, configs []RuleConfig) (*Ruleset, error) {
	rs := &Ruleset{ID: id}
	for i, rc := range configs {
		name := strings.TrimSpace(rc.Name)
		if name == "" {
			name = fmt.Sprintf("rule-%d", i+1)
		}
		rule := Rule{Name: name}
		if len(rc.Actions) == 0 {
			return nil, fmt.Errorf("ruleset %s: rule %s has no actions", id, name)
		}
		for _, cc := range rc.Conditions {
			cond, err := NewCondition(cc)
			if err != nil {
				return nil, fmt.Errorf("ruleset %s: rule %s: %w", id, name, err)
			}
			rule.Conditions = append(rule.Conditions, cond)
		}
		for _, ac := range rc.Actions {
			action, err := NewAction(ac)
			if err != nil {
				return nil, fmt.Errorf("ruleset %s: rule %s: %w", id, name, err)
			}
			rule.Actions = append(rule.Actions, action)
		}
		rs.Rules = append(rs.Rules, rule)
	}
	return rs, nil
}
