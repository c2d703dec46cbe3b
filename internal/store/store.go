package store

import (
	"context"
	"errors"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("store: record not found")

// Store is the persistence contract the engine depends on. The query
// set mirrors what the lifecycle manager, evaluator and sizer need:
// active transaction by (expert, symbol), dependents of an order, and
// the WAITING_TRIGGER backlog.
type Store interface {
	// Recommendations.
	InsertRecommendation(ctx context.Context, rec *RecommendationRecord) error
	GetRecommendation(ctx context.Context, id int64) (*RecommendationRecord, error)
	ListUnprocessedRecommendations(ctx context.Context, expertID int64) ([]RecommendationRecord, error)
	LatestRecommendation(ctx context.Context, expertID int64, symbol string) (*RecommendationRecord, error)
	MarkRecommendationsProcessed(ctx context.Context, ids []int64) error

	// Orders.
	InsertOrder(ctx context.Context, order *TradingOrderRecord) error
	UpdateOrder(ctx context.Context, order *TradingOrderRecord) error
	UpdateOrdersBatch(ctx context.Context, orders []TradingOrderRecord) error
	DeleteOrder(ctx context.Context, id int64) error
	GetOrder(ctx context.Context, id int64) (*TradingOrderRecord, error)
	ListOrdersByStatus(ctx context.Context, statuses ...types.OrderStatus) ([]TradingOrderRecord, error)
	ListDependentOrders(ctx context.Context, parentID int64) ([]TradingOrderRecord, error)
	ListOrdersByTransaction(ctx context.Context, txID int64) ([]TradingOrderRecord, error)
	ListUnsizedOrders(ctx context.Context, expertID int64) ([]TradingOrderRecord, error)
	FindOppositeOrder(ctx context.Context, txID int64, side types.OrderSide) (*TradingOrderRecord, error)

	// Transactions.
	InsertTransaction(ctx context.Context, tx *TransactionRecord) error
	UpdateTransaction(ctx context.Context, tx *TransactionRecord) error
	GetTransaction(ctx context.Context, id int64) (*TransactionRecord, error)
	FindActiveTransaction(ctx context.Context, expertID int64, symbol string) (*TransactionRecord, error)
	ListActiveTransactions(ctx context.Context, expertID int64) ([]TransactionRecord, error)

	// Audit.
	InsertActionResult(ctx context.Context, res *ActionResultRecord) error
	ListActionResults(ctx context.Context, expertID int64, limit int) ([]ActionResultRecord, error)

	// Expert settings.
	GetExpertSettings(ctx context.Context, expertID int64) (*ExpertSettingsRecord, error)
	UpsertExpertSettings(ctx context.Context, rec *ExpertSettingsRecord) error
}
