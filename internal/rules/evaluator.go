package rules

import (
	"context"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/logger"
)

// Rule is a conjunction of conditions mapped to the actions to run when
// all of them pass.
type Rule struct {
	Name       string
	Conditions []Condition
	Actions    []Action
}

// Ruleset is an ordered list of rules for one (expert, use case) pair.
type Ruleset struct {
	ID    string
	Rules []Rule
}

// RuleReport is the audit trail of one rule's evaluation.
type RuleReport struct {
	Rule       string            `json:"rule"`
	Passed     bool              `json:"passed"`
	Conditions []ConditionReport `json:"conditions"`
}

// ActionSummary is one deduplicated action the evaluation selected.
// Nothing has been executed yet when a summary is produced.
type ActionSummary struct {
	Action  Action
	Rule    string
	Preview CalculationPreview
	Hash    uint64
}

// EvaluationReport is the full outcome of an evaluation pass.
type EvaluationReport struct {
	RuleReports []RuleReport
	Summaries   []ActionSummary
}

// Evaluator runs rulesets. Evaluate is side-effect free; Execute is the
// separate, explicit step that materializes actions. Callers that stop
// after Evaluate change nothing in the system.
type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate walks the ruleset in order. Every condition of every rule is
// evaluated even after one fails, so the operand audit is complete.
// Actions of passing rules are collected and deduplicated by their
// stable hash: two rules independently requesting the same logical
// action yield one summary.
func (e *Evaluator) Evaluate(ctx context.Context, ec *EvalContext, ruleset *Ruleset) (*EvaluationReport, error) {
	report := &EvaluationReport{}
	if ruleset == nil {
		return report, nil
	}
	symbol := ec.Recommendation.Symbol
	seen := make(map[uint64]bool)
	for _, rule := range ruleset.Rules {
		rr := RuleReport{Rule: rule.Name, Passed: true}
		for _, cond := range rule.Conditions {
			cr := evaluateContained(ctx, cond, ec)
			if !cr.Passed {
				rr.Passed = false
			}
			rr.Conditions = append(rr.Conditions, cr)
		}
		report.RuleReports = append(report.RuleReports, rr)
		if !rr.Passed {
			continue
		}
		for _, action := range rule.Actions {
			h := action.Hash(symbol)
			if seen[h] {
				logger.Debugf("rules: dedup action %s for %s (rule=%s)", action.Type(), symbol, rule.Name)
				continue
			}
			seen[h] = true
			preview, err := action.Preview(ctx, ec)
			if err != nil {
				// Preview failures are recorded at execution time too;
				// keep the summary so the failure is auditable.
				logger.Warnf("rules: preview failed for %s %s: %v", action.Type(), symbol, err)
			}
			report.Summaries = append(report.Summaries, ActionSummary{
				Action:  action,
				Rule:    rule.Name,
				Preview: preview,
				Hash:    h,
			})
		}
	}
	return report, nil
}

// Execute materializes the summarized actions through the controller.
// Each action's errors are contained in its ActionResult; Execute only
// returns an error for a nil controller.
func (e *Evaluator) Execute(ctx context.Context, ec *EvalContext, summaries []ActionSummary, ctrl PositionController) []*ActionResult {
	results := make([]*ActionResult, 0, len(summaries))
	for _, summary := range summaries {
		res, err := summary.Action.Execute(ctx, ec, ctrl)
		if err != nil {
			logger.Warnf("rules: action %s failed for %s: %v",
				summary.Action.Type(), ec.Recommendation.Symbol, err)
		}
		if res != nil {
			results = append(results, res)
		}
	}
	return results
}
