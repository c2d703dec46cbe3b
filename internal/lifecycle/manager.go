// Package lifecycle owns the order/transaction state machine: rule
// evaluation entry points, trigger propagation, terminal-state
// synchronization, TP/SL consolidation and close handling.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/gateway/broker"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/gateway/quote"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/logger"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/notifier"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/rules"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// ErrDuplicateTransaction marks an open attempt against an (expert,
// symbol) pair that already has an active transaction. The action is
// skipped, never merged into the existing position.
var ErrDuplicateTransaction = errors.New("active transaction already exists for expert/symbol")

// RulesetProvider resolves the compiled ruleset for an (expert, use
// case) pair. The ruleset registry implements it.
type RulesetProvider interface {
	Ruleset(expertID int64, useCase types.UseCase) (*rules.Ruleset, bool)
}

// Options tune the manager.
type Options struct {
	AccountID   int64
	LockTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.LockTimeout <= 0 {
		o.LockTimeout = 500 * time.Millisecond
	}
	return o
}

// Manager drives the order lifecycle. All mutating passes for one
// (expert, use case) scope are serialized through ScopeLocks with a
// bounded timeout; on timeout the pass is skipped, not queued.
type Manager struct {
	store     store.Store
	gateway   broker.OrderGateway
	quotes    quote.Source
	rulesets  RulesetProvider
	evaluator *rules.Evaluator
	notify    notifier.TextNotifier
	locks     *ScopeLocks
	opts      Options
}

var _ rules.PositionController = (*Manager)(nil)

// NewManager wires the lifecycle manager. notify may be nil.
func NewManager(st store.Store, gw broker.OrderGateway, quotes quote.Source, rulesets RulesetProvider, notify notifier.TextNotifier, opts Options) (*Manager, error) {
	if st == nil {
		return nil, fmt.Errorf("lifecycle: store is required")
	}
	if gw == nil {
		return nil, fmt.Errorf("lifecycle: order gateway is required")
	}
	if quotes == nil {
		return nil, fmt.Errorf("lifecycle: quote source is required")
	}
	return &Manager{
		store:     st,
		gateway:   gw,
		quotes:    quotes,
		rulesets:  rulesets,
		evaluator: rules.NewEvaluator(),
		notify:    notify,
		locks:     NewScopeLocks(),
		opts:      opts.withDefaults(),
	}, nil
}

// PassReport summarizes one EvaluateAndExecute invocation.
type PassReport struct {
	ExpertInstanceID int64                      `json:"expert_instance_id"`
	UseCase          types.UseCase              `json:"use_case"`
	Skipped          bool                       `json:"skipped"`
	SkipReason       string                     `json:"skip_reason,omitempty"`
	Evaluated        int                        `json:"evaluated"`
	Results          []store.ActionResultRecord `json:"results,omitempty"`
}

func scopeKey(expertID int64, useCase types.UseCase) string {
	return fmt.Sprintf("expert:%d:%s", expertID, useCase)
}

// EvaluateAndExecute is the single entry point invoked after a
// recommendation batch lands (and by the periodic open-positions pass).
// A lock timeout yields a skipped report, not an error: the next
// scheduled pass picks the work up because recommendations persist.
func (m *Manager) EvaluateAndExecute(ctx context.Context, expertID int64, useCase types.UseCase) (*PassReport, error) {
	report := &PassReport{ExpertInstanceID: expertID, UseCase: useCase}
	release, ok := m.locks.Acquire(scopeKey(expertID, useCase), m.opts.LockTimeout)
	if !ok {
		report.Skipped = true
		report.SkipReason = "scope lock busy"
		logger.Warnf("lifecycle: skip pass expert=%d use_case=%s: lock busy", expertID, useCase)
		return report, nil
	}
	defer release()

	ruleset, ok := m.rulesets.Ruleset(expertID, useCase)
	if !ok {
		report.Skipped = true
		report.SkipReason = "no ruleset configured"
		logger.Debugf("lifecycle: no ruleset for expert=%d use_case=%s", expertID, useCase)
		return report, nil
	}

	switch useCase {
	case types.UseCaseEnterMarket:
		return report, m.runEnterMarketPass(ctx, expertID, ruleset, report)
	case types.UseCaseOpenPositions:
		return report, m.runOpenPositionsPass(ctx, expertID, ruleset, report)
	default:
		return report, fmt.Errorf("unknown use case %q", useCase)
	}
}

// runEnterMarketPass consumes unprocessed recommendations.
func (m *Manager) runEnterMarketPass(ctx context.Context, expertID int64, ruleset *rules.Ruleset, report *PassReport) error {
	recs, err := m.store.ListUnprocessedRecommendations(ctx, expertID)
	if err != nil {
		return fmt.Errorf("list recommendations: %w", err)
	}
	for _, rec := range recs {
		ec, err := m.buildEvalContext(ctx, expertID, types.UseCaseEnterMarket, rec.Recommendation())
		if err != nil {
			logger.Errorf("lifecycle: build context rec=%d: %v", rec.ID, err)
			continue
		}
		// Mark the recommendation processed the moment its actions have
		// run, before surfacing any error: a later failure in the batch
		// must not re-execute actions on the next pass.
		executed, evalErr := m.evaluateOne(ctx, ec, ruleset, report)
		if executed {
			if err := m.store.MarkRecommendationsProcessed(ctx, []int64{rec.ID}); err != nil {
				return fmt.Errorf("mark recommendation %d processed: %w", rec.ID, err)
			}
		}
		if evalErr != nil {
			return evalErr
		}
	}
	return nil
}

// runOpenPositionsPass re-evaluates every active transaction against
// the latest recommendation for its symbol (TP/SL adjustment, closes).
func (m *Manager) runOpenPositionsPass(ctx context.Context, expertID int64, ruleset *rules.Ruleset, report *PassReport) error {
	txs, err := m.store.ListActiveTransactions(ctx, expertID)
	if err != nil {
		return fmt.Errorf("list active transactions: %w", err)
	}
	for _, tx := range txs {
		if tx.Status == types.TxClosing {
			continue
		}
		rec, err := m.store.LatestRecommendation(ctx, expertID, tx.Symbol)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return fmt.Errorf("latest recommendation for %s: %w", tx.Symbol, err)
		}
		ec, err := m.buildEvalContext(ctx, expertID, types.UseCaseOpenPositions, rec.Recommendation())
		if err != nil {
			logger.Errorf("lifecycle: build context tx=%d: %v", tx.ID, err)
			continue
		}
		if _, err := m.evaluateOne(ctx, ec, ruleset, report); err != nil {
			return err
		}
	}
	return nil
}

// evaluateOne runs evaluate-then-execute for one recommendation and
// persists the audit records. The bool reports whether Execute ran:
// once it has, the recommendation is spent even if persisting an audit
// record fails afterwards.
func (m *Manager) evaluateOne(ctx context.Context, ec *rules.EvalContext, ruleset *rules.Ruleset, report *PassReport) (bool, error) {
	evalReport, err := m.evaluator.Evaluate(ctx, ec, ruleset)
	if err != nil {
		return false, fmt.Errorf("evaluate rec=%d: %w", ec.Recommendation.ID, err)
	}
	report.Evaluated++
	results := m.evaluator.Execute(ctx, ec, evalReport.Summaries, m)
	for _, res := range results {
		record := m.resultRecord(ec, res)
		if err := m.store.InsertActionResult(ctx, &record); err != nil {
			return true, fmt.Errorf("persist action result: %w", err)
		}
		report.Results = append(report.Results, record)
	}
	return true, nil
}

func (m *Manager) resultRecord(ec *rules.EvalContext, res *rules.ActionResult) store.ActionResultRecord {
	outcome := "executed"
	detail := ""
	if res.Err != nil {
		if errors.Is(res.Err, ErrDuplicateTransaction) {
			outcome = "skipped"
		} else {
			outcome = "error"
		}
		detail = res.Err.Error()
	}
	return store.ActionResultRecord{
		ExpertInstanceID:  ec.ExpertInstanceID,
		RecommendationID:  ec.Recommendation.ID,
		Symbol:            ec.Recommendation.Symbol,
		ActionType:        string(res.ActionType),
		ReferenceType:     string(res.ReferenceType),
		ReferencePrice:    res.ReferencePrice,
		AdjustmentPercent: res.AdjustmentPercent,
		CalculatedPrice:   res.CalculatedPrice,
		OrderIDs:          res.OrderIDs,
		Outcome:           outcome,
		Detail:            detail,
		CreatedAt:         res.CreatedAt,
	}
}

// buildEvalContext loads the position state a condition or action may
// reference.
func (m *Manager) buildEvalContext(ctx context.Context, expertID int64, useCase types.UseCase, rec types.Recommendation) (*rules.EvalContext, error) {
	ec := &rules.EvalContext{
		ExpertInstanceID: expertID,
		AccountID:        m.opts.AccountID,
		UseCase:          useCase,
		Recommendation:   rec,
		Quotes:           m.quotes,
	}
	tx, err := m.store.FindActiveTransaction(ctx, expertID, rec.Symbol)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ec, nil
		}
		return nil, err
	}
	ec.Transaction = tx
	orders, err := m.store.ListOrdersByTransaction(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		o := orders[i]
		if o.DependsOnOrderID == 0 && !o.IsClosingOrder() {
			ec.EntryOrder = &orders[i]
			break
		}
	}
	if ec.EntryOrder != nil {
		opp, err := m.store.FindOppositeOrder(ctx, tx.ID, ec.EntryOrder.Side.Opposite())
		if err == nil {
			ec.CurrentTakeProfit = opp.LimitPrice
			ec.CurrentStopLoss = opp.StopPrice
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return ec, nil
}

func (m *Manager) sendNotification(text string) {
	if m.notify == nil {
		return
	}
	if err := m.notify.SendText(text); err != nil {
		logger.Warnf("lifecycle: notification failed: %v", err)
	}
}
