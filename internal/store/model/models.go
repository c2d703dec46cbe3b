package model

import (
	"gorm.io/datatypes"
)

type RecommendationModel struct {
	ID                    int64   `gorm:"column:id;primaryKey"`
	ExpertInstanceID      int64   `gorm:"column:expert_instance_id;index:idx_rec_expert"`
	Symbol                string  `gorm:"column:symbol;index:idx_rec_symbol"`
	Action                string  `gorm:"column:action"`
	Confidence            float64 `gorm:"column:confidence"`
	ExpectedProfitPercent float64 `gorm:"column:expected_profit_percent"`
	ReferencePrice        float64 `gorm:"column:reference_price"`
	TimeHorizon           string  `gorm:"column:time_horizon"`
	RiskLevel             string  `gorm:"column:risk_level"`
	Processed             int     `gorm:"column:processed;index:idx_rec_processed"`
	CreatedAtUnix         int64   `gorm:"column:created_at"`
}

func (RecommendationModel) TableName() string { return "recommendations" }

type TradingOrderModel struct {
	ID               int64          `gorm:"column:id;primaryKey"`
	AccountID        int64          `gorm:"column:account_id"`
	ExpertInstanceID int64          `gorm:"column:expert_instance_id;index:idx_order_expert"`
	RecommendationID int64          `gorm:"column:recommendation_id"`
	TransactionID    int64          `gorm:"column:transaction_id;index:idx_order_tx"`
	Symbol           string         `gorm:"column:symbol;index:idx_order_symbol"`
	Side             string         `gorm:"column:side"`
	OrderType        string         `gorm:"column:order_type"`
	Quantity         float64        `gorm:"column:quantity"`
	LimitPrice       float64        `gorm:"column:limit_price"`
	StopPrice        float64        `gorm:"column:stop_price"`
	Status           string         `gorm:"column:status;index:idx_order_status"`
	DependsOnOrderID int64          `gorm:"column:depends_on_order_id;index:idx_order_parent"`
	BrokerOrderID    string         `gorm:"column:broker_order_id"`
	StatusReason     string         `gorm:"column:status_reason"`
	MetadataJSON     datatypes.JSON `gorm:"column:metadata_json;type:TEXT"`
	CreatedAtUnix    int64          `gorm:"column:created_at"`
	UpdatedAtUnix    int64          `gorm:"column:updated_at"`
}

func (TradingOrderModel) TableName() string { return "trading_orders" }

type TransactionModel struct {
	ID               int64   `gorm:"column:id;primaryKey"`
	AccountID        int64   `gorm:"column:account_id"`
	ExpertInstanceID int64   `gorm:"column:expert_instance_id;index:idx_tx_expert_symbol,priority:1"`
	Symbol           string  `gorm:"column:symbol;index:idx_tx_expert_symbol,priority:2"`
	Quantity         float64 `gorm:"column:quantity"`
	OpenPrice        float64 `gorm:"column:open_price"`
	Status           string  `gorm:"column:status;index:idx_tx_status"`
	OpenDateUnix     *int64  `gorm:"column:open_date"`
	CloseDateUnix    *int64  `gorm:"column:close_date"`
	CreatedAtUnix    int64   `gorm:"column:created_at"`
	UpdatedAtUnix    int64   `gorm:"column:updated_at"`
}

func (TransactionModel) TableName() string { return "transactions" }

type ActionResultModel struct {
	ID                int64          `gorm:"column:id;primaryKey"`
	ExpertInstanceID  int64          `gorm:"column:expert_instance_id;index:idx_result_expert"`
	RecommendationID  int64          `gorm:"column:recommendation_id"`
	Symbol            string         `gorm:"column:symbol"`
	ActionType        string         `gorm:"column:action_type"`
	ReferenceType     string         `gorm:"column:reference_type"`
	ReferencePrice    float64        `gorm:"column:reference_price"`
	AdjustmentPercent float64        `gorm:"column:adjustment_percent"`
	CalculatedPrice   float64        `gorm:"column:calculated_price"`
	OrderIDsJSON      datatypes.JSON `gorm:"column:order_ids_json;type:TEXT"`
	Outcome           string         `gorm:"column:outcome"`
	Detail            string         `gorm:"column:detail"`
	CreatedAtUnix     int64          `gorm:"column:created_at"`
}

func (ActionResultModel) TableName() string { return "action_results" }

type ExpertSettingsModel struct {
	ExpertInstanceID          int64   `gorm:"column:expert_instance_id;primaryKey"`
	AccountID                 int64   `gorm:"column:account_id"`
	VirtualBalance            float64 `gorm:"column:virtual_balance"`
	MaxEquityPerInstrumentPct float64 `gorm:"column:max_equity_per_instrument_pct"`
	AllocationFraction        float64 `gorm:"column:allocation_fraction"`
	TopRankException          int     `gorm:"column:top_rank_exception"`
	UpdatedAtUnix             int64   `gorm:"column:updated_at"`
}

func (ExpertSettingsModel) TableName() string { return "expert_settings" }
