package enginehttp

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bmigette/BA2TradePlatform-sub003/internal/lifecycle"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/logger"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/risk"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/store"
	"github.com/bmigette/BA2TradePlatform-sub003/internal/types"
)

// Router exposes the engine operations over /api/engine.
type Router struct {
	Manager *lifecycle.Manager
	Sizer   *risk.Sizer
	Store   store.Store
}

func NewRouter(manager *lifecycle.Manager, sizer *risk.Sizer, st store.Store) *Router {
	return &Router{Manager: manager, Sizer: sizer, Store: st}
}

// Register mounts the engine routes on the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/recommendations", r.handleInsertRecommendation)
	group.POST("/experts/:id/evaluate", r.handleEvaluate)
	group.POST("/experts/:id/size", r.handleSize)
	group.POST("/transactions/:id/close", r.handleClose)
	group.POST("/transactions/:id/retry-close", r.handleRetryClose)
	group.GET("/transactions", r.handleListTransactions)
	group.GET("/orders", r.handleListOrders)
	group.GET("/results", r.handleListResults)
}

type recommendationRequest struct {
	ExpertInstanceID      int64   `json:"expert_instance_id" binding:"required"`
	Symbol                string  `json:"symbol" binding:"required"`
	Action                string  `json:"action" binding:"required"`
	Confidence            float64 `json:"confidence"`
	ExpectedProfitPercent float64 `json:"expected_profit_percent"`
	ReferencePrice        float64 `json:"reference_price"`
	TimeHorizon           string  `json:"time_horizon"`
	RiskLevel             string  `json:"risk_level"`
}

func (r *Router) handleInsertRecommendation(c *gin.Context) {
	var req recommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec := store.RecommendationRecord{
		ExpertInstanceID:      req.ExpertInstanceID,
		Symbol:                strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Action:                types.RecommendationAction(strings.ToUpper(strings.TrimSpace(req.Action))),
		Confidence:            req.Confidence,
		ExpectedProfitPercent: req.ExpectedProfitPercent,
		ReferencePrice:        req.ReferencePrice,
		TimeHorizon:           req.TimeHorizon,
		RiskLevel:             req.RiskLevel,
	}
	if err := r.Store.InsertRecommendation(c.Request.Context(), &rec); err != nil {
		logger.Errorf("[api] insert recommendation failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": rec.ID})
}

func (r *Router) handleEvaluate(c *gin.Context) {
	expertID, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	if expertID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expert id"})
		return
	}
	useCase := types.UseCase(strings.ToUpper(strings.TrimSpace(c.DefaultQuery("use_case", string(types.UseCaseEnterMarket)))))
	if useCase != types.UseCaseEnterMarket && useCase != types.UseCaseOpenPositions {
		c.JSON(http.StatusBadRequest, gin.H{"error": "use_case must be ENTER_MARKET or OPEN_POSITIONS"})
		return
	}
	report, err := r.Manager.EvaluateAndExecute(c.Request.Context(), expertID, useCase)
	if err != nil {
		logger.Errorf("[api] evaluate failed ip=%s expert=%d use_case=%s err=%v", c.ClientIP(), expertID, useCase, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] evaluate ip=%s expert=%d use_case=%s evaluated=%d skipped=%v",
		c.ClientIP(), expertID, useCase, report.Evaluated, report.Skipped)
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (r *Router) handleSize(c *gin.Context) {
	expertID, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	if expertID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expert id"})
		return
	}
	sized, err := r.Sizer.SizePendingOrders(c.Request.Context(), expertID)
	if err != nil {
		logger.Errorf("[api] sizing failed ip=%s expert=%d err=%v", c.ClientIP(), expertID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	submitted, err := r.Manager.SubmitSizedOrders(c.Request.Context(), expertID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sized": len(sized), "submitted": submitted})
}

func (r *Router) handleClose(c *gin.Context) {
	txID, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	if txID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction id"})
		return
	}
	if err := r.Manager.CloseTransaction(c.Request.Context(), txID); err != nil {
		logger.Errorf("[api] close failed ip=%s tx=%d err=%v", c.ClientIP(), txID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] close ip=%s tx=%d", c.ClientIP(), txID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleRetryClose(c *gin.Context) {
	txID, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	if txID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction id"})
		return
	}
	if err := r.Manager.RetryClose(c.Request.Context(), txID); err != nil {
		logger.Errorf("[api] retry close failed ip=%s tx=%d err=%v", c.ClientIP(), txID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleListTransactions(c *gin.Context) {
	expertID, _ := strconv.ParseInt(c.DefaultQuery("expert", "0"), 10, 64)
	if expertID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expert query param is required"})
		return
	}
	txs, err := r.Store.ListActiveTransactions(c.Request.Context(), expertID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (r *Router) handleListOrders(c *gin.Context) {
	raw := strings.TrimSpace(c.DefaultQuery("status", ""))
	statuses := []types.OrderStatus{types.StatusPendingNew, types.StatusOpen, types.StatusWaitingTrigger}
	if raw != "" {
		statuses = statuses[:0]
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, types.OrderStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	orders, err := r.Store.ListOrdersByStatus(c.Request.Context(), statuses...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (r *Router) handleListResults(c *gin.Context) {
	expertID, _ := strconv.ParseInt(c.DefaultQuery("expert", "0"), 10, 64)
	if expertID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expert query param is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	results, err := r.Store.ListActionResults(c.Request.Context(), expertID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
