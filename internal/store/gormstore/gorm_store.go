// Package gormstore implements store.Store on top of Gorm + SQLite.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	storemodel "github.com/bmigette/BA2TradePlatform-sub003/internal/store/model"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore persists engine state in a single SQLite database.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// New opens (creating if needed) the database at path and migrates the
// schema.
func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&storemodel.RecommendationModel{},
		&storemodel.TradingOrderModel{},
		&storemodel.TransactionModel{},
		&storemodel.ActionResultModel{},
		&storemodel.ExpertSettingsModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep the pool tiny to avoid writer lock contention.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func notInitialized() error { return fmt.Errorf("gorm store not initialized") }

// --------------------- Recommendations -------------------------

func (s *GormStore) InsertRecommendation(ctx context.Context, rec *store.RecommendationRecord) error {
	if s == nil || s.db == nil {
		return notInitialized()
	}
	if rec == nil {
		return fmt.Errorf("recommendation is required")
	}
	m := recommendationToModel(*rec)
	if m.CreatedAtUnix == 0 {
		m.CreatedAtUnix = time.Now().Unix()
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	rec.ID = m.ID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Unix(m.CreatedAtUnix, 0)
	}
	return nil
}

func (s *GormStore) GetRecommendation(ctx context.Context, id int64) (*store.RecommendationRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	var m storemodel.RecommendationModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	rec := recommendationToRecord(m)
	return &rec, nil
}

func (s *GormStore) ListUnprocessedRecommendations(ctx context.Context, expertID int64) ([]store.RecommendationRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	var models []storemodel.RecommendationModel
	err := s.db.WithContext(ctx).
		Where("expert_instance_id = ? AND processed = 0", expertID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.RecommendationRecord, 0, len(models))
	for _, m := range models {
		out = append(out, recommendationToRecord(m))
	}
	return out, nil
}

// LatestRecommendation returns the most recent recommendation for the
// (expert, symbol) pair regardless of processed state.
func (s *GormStore) LatestRecommendation(ctx context.Context, expertID int64, symbol string) (*store.RecommendationRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	var m storemodel.RecommendationModel
	err := s.db.WithContext(ctx).
		Where("expert_instance_id = ? AND symbol = ?", expertID, symbol).
		Order("id DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	rec := recommendationToRecord(m)
	return &rec, nil
}

func (s *GormStore) MarkRecommendationsProcessed(ctx context.Context, ids []int64) error {
	if s == nil || s.db == nil {
		return notInitialized()
	}
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&storemodel.RecommendationModel{}).
		Where("id IN ?", ids).
		Update("processed", 1).Error
}

// --------------------- Orders -------------------------

func (s *GormStore) InsertOrder(ctx context.Context, order *store.TradingOrderRecord) error {
	if s == nil || s.db == nil {
		return notInitialized()
	}
	if order == nil {
		return fmt.Errorf("order is required")
	}
	now := time.Now()
	m, err := orderToModel(*order)
	if err != nil {
		return err
	}
	if m.CreatedAtUnix == 0 {
		m.CreatedAtUnix = now.Unix()
	}
	m.UpdatedAtUnix = now.Unix()
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	order.ID = m.ID
	order.CreatedAt = time.Unix(m.CreatedAtUnix, 0)
	order.UpdatedAt = time.Unix(m.UpdatedAtUnix, 0)
	return nil
}

func (s *GormStore) UpdateOrder(ctx context.Context, order *store.TradingOrderRecord) error {
	if s == nil || s.db == nil {
		return notInitialized()
	}
	if order == nil || order.ID == 0 {
		return fmt.Errorf("order id is required")
	}
	m, err := orderToModel(*order)
	if err != nil {
		return err
	}
	m.UpdatedAtUnix = time.Now().Unix()
	return s.db.WithContext(ctx).
		Model(&storemodel.TradingOrderModel{}).
		Where("id = ?", m.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(&m).Error
}

// UpdateOrdersBatch writes all orders inside one transaction so a
// sizing pass can never be persisted partially.
func (s *GormStore) UpdateOrdersBatch(ctx context.Context, orders []store.TradingOrderRecord) error {
	if s == nil || s.db == nil {
		return notInitialized()
	}
	if len(orders) == 0 {
		return nil
	}
	now := time.Now().Unix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range orders {
			m, err := orderToModel(orders[i])
			if err != nil {
				return err
			}
			m.UpdatedAtUnix = now
			if err := tx.Model(&storemodel.TradingOrderModel{}).
				Where("id = ?", m.ID).
				Select("*").
				Omit("id", "created_at").
				Updates(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) DeleteOrder(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return notInitialized()
	}
	return s.db.WithContext(ctx).Delete(&storemodel.TradingOrderModel{}, "id = ?", id).Error
}

func (s *GormStore) GetOrder(ctx context.Context, id int64) (*store.TradingOrderRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	var m storemodel.TradingOrderModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	rec, err := orderToRecord(m)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) ListOrdersByStatus(ctx context.Context, statuses ...types.OrderStatus) ([]store.TradingOrderRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	raw := make([]string, 0, len(statuses))
	for _, st := range statuses {
		raw = append(raw, string(st))
	}
	var models []storemodel.TradingOrderModel
	q := s.db.WithContext(ctx).Order("id ASC")
	if len(raw) > 0 {
		q = q.Where("status IN ?", raw)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return ordersToRecords(models)
}

func (s *GormStore) ListDependentOrders(ctx context.Context, parentID int64) ([]store.TradingOrderRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	var models []storemodel.TradingOrderModel
	err := s.db.WithContext(ctx).
		Where("depends_on_order_id = ?", parentID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return ordersToRecords(models)
}

func (s *GormStore) ListOrdersByTransaction(ctx context.Context, txID int64) ([]store.TradingOrderRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	var models []storemodel.TradingOrderModel
	err := s.db.WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return ordersToRecords(models)
}

// ListUnsizedOrders returns entry orders still waiting for the sizing
// pass (quantity zero, not terminal).
func (s *GormStore) ListUnsizedOrders(ctx context.Context, expertID int64) ([]store.TradingOrderRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	var models []storemodel.TradingOrderModel
	err := s.db.WithContext(ctx).
		Where("expert_instance_id = ? AND quantity = 0 AND status = ?", expertID, string(types.StatusPendingNew)).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return ordersToRecords(models)
}

// FindOppositeOrder returns the non-terminal order on the given side of
// a transaction, or store.ErrNotFound. At most one can exist under the
// one-opposite-order broker constraint.
func (s *GormStore) FindOppositeOrder(ctx context.Context, txID int64, side types.OrderSide) (*store.TradingOrderRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	nonTerminal := []string{
		string(types.StatusPendingNew),
		string(types.StatusOpen),
		string(types.StatusWaitingTrigger),
	}
	var m storemodel.TradingOrderModel
	err := s.db.WithContext(ctx).
		Where("transaction_id = ? AND side = ? AND status IN ?", txID, string(side), nonTerminal).
		Order("id DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	rec, err := orderToRecord(m)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// --------------------- Transactions -------------------------

func (s *GormStore) InsertTransaction(ctx context.Context, tx *store.TransactionRecord) error {
	if s == nil || s.db == nil {
		return notInitialized()
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	now := time.Now()
	m := transactionToModel(*tx)
	if m.CreatedAtUnix == 0 {
		m.CreatedAtUnix = now.Unix()
	}
	m.UpdatedAtUnix = now.Unix()
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	tx.ID = m.ID
	return nil
}

func (s *GormStore) UpdateTransaction(ctx context.Context, tx *store.TransactionRecord) error {
	if s == nil || s.db == nil {
		return notInitialized()
	}
	if tx == nil || tx.ID == 0 {
		return fmt.Errorf("transaction id is required")
	}
	m := transactionToModel(*tx)
	m.UpdatedAtUnix = time.Now().Unix()
	return s.db.WithContext(ctx).
		Model(&storemodel.TransactionModel{}).
		Where("id = ?", m.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(&m).Error
}

func (s *GormStore) GetTransaction(ctx context.Context, id int64) (*store.TransactionRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	var m storemodel.TransactionModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	rec := transactionToRecord(m)
	return &rec, nil
}

func (s *GormStore) FindActiveTransaction(ctx context.Context, expertID int64, symbol string) (*store.TransactionRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	active := []string{string(types.TxWaiting), string(types.TxOpened)}
	var m storemodel.TransactionModel
	err := s.db.WithContext(ctx).
		Where("expert_instance_id = ? AND symbol = ? AND status IN ?", expertID, symbol, active).
		Order("id DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	rec := transactionToRecord(m)
	return &rec, nil
}

func (s *GormStore) ListActiveTransactions(ctx context.Context, expertID int64) ([]store.TransactionRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	active := []string{string(types.TxWaiting), string(types.TxOpened), string(types.TxClosing)}
	var models []storemodel.TransactionModel
	err := s.db.WithContext(ctx).
		Where("expert_instance_id = ? AND status IN ?", expertID, active).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.TransactionRecord, 0, len(models))
	for _, m := range models {
		out = append(out, transactionToRecord(m))
	}
	return out, nil
}

// --------------------- Action results -------------------------

func (s *GormStore) InsertActionResult(ctx context.Context, res *store.ActionResultRecord) error {
	if s == nil || s.db == nil {
		return notInitialized()
	}
	if res == nil {
		return fmt.Errorf("action result is required")
	}
	m, err := actionResultToModel(*res)
	if err != nil {
		return err
	}
	if m.CreatedAtUnix == 0 {
		m.CreatedAtUnix = time.Now().Unix()
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	res.ID = m.ID
	return nil
}

func (s *GormStore) ListActionResults(ctx context.Context, expertID int64, limit int) ([]store.ActionResultRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	if limit <= 0 {
		limit = 100
	}
	var models []storemodel.ActionResultModel
	q := s.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if expertID > 0 {
		q = q.Where("expert_instance_id = ?", expertID)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.ActionResultRecord, 0, len(models))
	for _, m := range models {
		rec, err := actionResultToRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// --------------------- Expert settings -------------------------

func (s *GormStore) GetExpertSettings(ctx context.Context, expertID int64) (*store.ExpertSettingsRecord, error) {
	if s == nil || s.db == nil {
		return nil, notInitialized()
	}
	var m storemodel.ExpertSettingsModel
	if err := s.db.WithContext(ctx).First(&m, "expert_instance_id = ?", expertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	rec := expertSettingsToRecord(m)
	return &rec, nil
}

func (s *GormStore) UpsertExpertSettings(ctx context.Context, rec *store.ExpertSettingsRecord) error {
	if s == nil || s.db == nil {
		return notInitialized()
	}
	if rec == nil || rec.ExpertInstanceID == 0 {
		return fmt.Errorf("expert_instance_id is required")
	}
	m := expertSettingsToModel(*rec)
	m.UpdatedAtUnix = time.Now().Unix()
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "expert_instance_id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

// --------------------- mapping -------------------------

func recommendationToModel(rec store.RecommendationRecord) storemodel.RecommendationModel {
	processed := 0
	if rec.Processed {
		processed = 1
	}
	var created int64
	if !rec.CreatedAt.IsZero() {
		created = rec.CreatedAt.Unix()
	}
	return storemodel.RecommendationModel{
		ID:                    rec.ID,
		ExpertInstanceID:      rec.ExpertInstanceID,
		Symbol:                rec.Symbol,
		Action:                string(rec.Action),
		Confidence:            rec.Confidence,
		ExpectedProfitPercent: rec.ExpectedProfitPercent,
		ReferencePrice:        rec.ReferencePrice,
		TimeHorizon:           rec.TimeHorizon,
		RiskLevel:             rec.RiskLevel,
		Processed:             processed,
		CreatedAtUnix:         created,
	}
}

func recommendationToRecord(m storemodel.RecommendationModel) store.RecommendationRecord {
	return store.RecommendationRecord{
		ID:                    m.ID,
		ExpertInstanceID:      m.ExpertInstanceID,
		Symbol:                m.Symbol,
		Action:                types.RecommendationAction(m.Action),
		Confidence:            m.Confidence,
		ExpectedProfitPercent: m.ExpectedProfitPercent,
		ReferencePrice:        m.ReferencePrice,
		TimeHorizon:           m.TimeHorizon,
		RiskLevel:             m.RiskLevel,
		Processed:             m.Processed != 0,
		CreatedAt:             time.Unix(m.CreatedAtUnix, 0),
	}
}

func orderToModel(rec store.TradingOrderRecord) (storemodel.TradingOrderModel, error) {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return storemodel.TradingOrderModel{}, fmt.Errorf("marshal order metadata: %w", err)
	}
	var created int64
	if !rec.CreatedAt.IsZero() {
		created = rec.CreatedAt.Unix()
	}
	return storemodel.TradingOrderModel{
		ID:               rec.ID,
		AccountID:        rec.AccountID,
		ExpertInstanceID: rec.ExpertInstanceID,
		RecommendationID: rec.RecommendationID,
		TransactionID:    rec.TransactionID,
		Symbol:           rec.Symbol,
		Side:             string(rec.Side),
		OrderType:        string(rec.OrderType),
		Quantity:         rec.Quantity,
		LimitPrice:       rec.LimitPrice,
		StopPrice:        rec.StopPrice,
		Status:           string(rec.Status),
		DependsOnOrderID: rec.DependsOnOrderID,
		BrokerOrderID:    rec.BrokerOrderID,
		StatusReason:     rec.StatusReason,
		MetadataJSON:     datatypes.JSON(meta),
		CreatedAtUnix:    created,
	}, nil
}

func orderToRecord(m storemodel.TradingOrderModel) (store.TradingOrderRecord, error) {
	var meta types.OrderMetadata
	if len(m.MetadataJSON) > 0 {
		if err := json.Unmarshal(m.MetadataJSON, &meta); err != nil {
			return store.TradingOrderRecord{}, fmt.Errorf("unmarshal order %d metadata: %w", m.ID, err)
		}
	}
	return store.TradingOrderRecord{
		ID:               m.ID,
		AccountID:        m.AccountID,
		ExpertInstanceID: m.ExpertInstanceID,
		RecommendationID: m.RecommendationID,
		TransactionID:    m.TransactionID,
		Symbol:           m.Symbol,
		Side:             types.OrderSide(m.Side),
		OrderType:        types.OrderType(m.OrderType),
		Quantity:         m.Quantity,
		LimitPrice:       m.LimitPrice,
		StopPrice:        m.StopPrice,
		Status:           types.OrderStatus(m.Status),
		DependsOnOrderID: m.DependsOnOrderID,
		BrokerOrderID:    m.BrokerOrderID,
		StatusReason:     m.StatusReason,
		Metadata:         meta,
		CreatedAt:        time.Unix(m.CreatedAtUnix, 0),
		UpdatedAt:        time.Unix(m.UpdatedAtUnix, 0),
	}, nil
}

func ordersToRecords(models []storemodel.TradingOrderModel) ([]store.TradingOrderRecord, error) {
	out := make([]store.TradingOrderRecord, 0, len(models))
	for _, m := range models {
		rec, err := orderToRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func transactionToModel(rec store.TransactionRecord) storemodel.TransactionModel {
	var created int64
	if !rec.CreatedAt.IsZero() {
		created = rec.CreatedAt.Unix()
	}
	m := storemodel.TransactionModel{
		ID:               rec.ID,
		AccountID:        rec.AccountID,
		ExpertInstanceID: rec.ExpertInstanceID,
		Symbol:           rec.Symbol,
		Quantity:         rec.Quantity,
		OpenPrice:        rec.OpenPrice,
		Status:           string(rec.Status),
		CreatedAtUnix:    created,
	}
	if rec.OpenDate != nil {
		v := rec.OpenDate.Unix()
		m.OpenDateUnix = &v
	}
	if rec.CloseDate != nil {
		v := rec.CloseDate.Unix()
		m.CloseDateUnix = &v
	}
	return m
}

func transactionToRecord(m storemodel.TransactionModel) store.TransactionRecord {
	rec := store.TransactionRecord{
		ID:               m.ID,
		AccountID:        m.AccountID,
		ExpertInstanceID: m.ExpertInstanceID,
		Symbol:           m.Symbol,
		Quantity:         m.Quantity,
		OpenPrice:        m.OpenPrice,
		Status:           types.TransactionStatus(m.Status),
		CreatedAt:        time.Unix(m.CreatedAtUnix, 0),
		UpdatedAt:        time.Unix(m.UpdatedAtUnix, 0),
	}
	if m.OpenDateUnix != nil {
		v := time.Unix(*m.OpenDateUnix, 0)
		rec.OpenDate = &v
	}
	if m.CloseDateUnix != nil {
		v := time.Unix(*m.CloseDateUnix, 0)
		rec.CloseDate = &v
	}
	return rec
}

func actionResultToModel(rec store.ActionResultRecord) (storemodel.ActionResultModel, error) {
	ids, err := json.Marshal(rec.OrderIDs)
	if err != nil {
		return storemodel.ActionResultModel{}, fmt.Errorf("marshal order ids: %w", err)
	}
	var created int64
	if !rec.CreatedAt.IsZero() {
		created = rec.CreatedAt.Unix()
	}
	return storemodel.ActionResultModel{
		ID:                rec.ID,
		ExpertInstanceID:  rec.ExpertInstanceID,
		RecommendationID:  rec.RecommendationID,
		Symbol:            rec.Symbol,
		ActionType:        rec.ActionType,
		ReferenceType:     rec.ReferenceType,
		ReferencePrice:    rec.ReferencePrice,
		AdjustmentPercent: rec.AdjustmentPercent,
		CalculatedPrice:   rec.CalculatedPrice,
		OrderIDsJSON:      datatypes.JSON(ids),
		Outcome:           rec.Outcome,
		Detail:            rec.Detail,
		CreatedAtUnix:     created,
	}, nil
}

func actionResultToRecord(m storemodel.ActionResultModel) (store.ActionResultRecord, error) {
	var ids []int64
	if len(m.OrderIDsJSON) > 0 {
		if err := json.Unmarshal(m.OrderIDsJSON, &ids); err != nil {
			return store.ActionResultRecord{}, fmt.Errorf("unmarshal result %d order ids: %w", m.ID, err)
		}
	}
	return store.ActionResultRecord{
		ID:                m.ID,
		ExpertInstanceID:  m.ExpertInstanceID,
		RecommendationID:  m.RecommendationID,
		Symbol:            m.Symbol,
		ActionType:        m.ActionType,
		ReferenceType:     m.ReferenceType,
		ReferencePrice:    m.ReferencePrice,
		AdjustmentPercent: m.AdjustmentPercent,
		CalculatedPrice:   m.CalculatedPrice,
		OrderIDs:          ids,
		Outcome:           m.Outcome,
		Detail:            m.Detail,
		CreatedAt:         time.Unix(m.CreatedAtUnix, 0),
	}, nil
}

func expertSettingsToModel(rec store.ExpertSettingsRecord) storemodel.ExpertSettingsModel {
	return storemodel.ExpertSettingsModel{
		ExpertInstanceID:          rec.ExpertInstanceID,
		AccountID:                 rec.AccountID,
		VirtualBalance:            rec.VirtualBalance,
		MaxEquityPerInstrumentPct: rec.MaxEquityPerInstrumentPct,
		AllocationFraction:        rec.AllocationFraction,
		TopRankException:          rec.TopRankException,
	}
}

func expertSettingsToRecord(m storemodel.ExpertSettingsModel) store.ExpertSettingsRecord {
	return store.ExpertSettingsRecord{
		ExpertInstanceID:          m.ExpertInstanceID,
		AccountID:                 m.AccountID,
		VirtualBalance:            m.VirtualBalance,
		MaxEquityPerInstrumentPct: m.MaxEquityPerInstrumentPct,
		AllocationFraction:        m.AllocationFraction,
		TopRankException:          m.TopRankException,
		UpdatedAt:                 time.Unix(m.UpdatedAtUnix, 0),
	}
}
