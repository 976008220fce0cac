package apihttp

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"coinward/internal/risk"
	"coinward/internal/store/auditlog"
)

// Router exposes ledger and audit reads. Everything here is read-only except
// the pause toggle.
type Router struct {
	ledger *risk.Ledger
	audit  *auditlog.Store
}

func NewRouter(ledger *risk.Ledger, audit *auditlog.Store) *Router {
	return &Router{ledger: ledger, audit: audit}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/positions", r.handlePositions)
	group.GET("/trades", r.handleTrades)
	group.GET("/risk", r.handleRisk)
	group.POST("/pause", r.handlePause)
	if r.audit != nil {
		group.GET("/oracle/log", r.handleOracleLog)
	}
}

type positionView struct {
	TradeID        string    `json:"trade_id"`
	Symbol         string    `json:"symbol"`
	EntryPrice     float64   `json:"entry_price"`
	Quantity       float64   `json:"quantity"`
	Remaining      float64   `json:"remaining_quantity"`
	EntryTime      time.Time `json:"entry_time"`
	StopLoss       float64   `json:"stop_loss"`
	HighestPrice   float64   `json:"highest_price_seen"`
	FirstTargetHit bool      `json:"first_target_hit"`
	StopTightened  bool      `json:"stop_tightened"`
	Confidence     float64   `json:"confidence"`
	RealizedPnL    float64   `json:"realized_pnl"`
}

func (r *Router) handlePositions(c *gin.Context) {
	positions := r.ledger.OpenPositions()
	out := make([]positionView, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionView{
			TradeID:        p.TradeID,
			Symbol:         p.Symbol,
			EntryPrice:     p.EntryPrice,
			Quantity:       p.Quantity,
			Remaining:      p.Remaining,
			EntryTime:      p.EntryTime,
			StopLoss:       p.StopLoss,
			HighestPrice:   p.HighestPrice,
			FirstTargetHit: p.FirstTargetHit,
			StopTightened:  p.StopTightened,
			Confidence:     p.Confidence,
			RealizedPnL:    p.RealizedPnL,
		})
	}
	c.JSON(http.StatusOK, gin.H{"positions": out, "count": len(out)})
}

func (r *Router) handleTrades(c *gin.Context) {
	closed := r.ledger.ClosedPositions()
	c.JSON(http.StatusOK, gin.H{"trades": closed, "count": len(closed)})
}

func (r *Router) handleRisk(c *gin.Context) {
	c.JSON(http.StatusOK, r.ledger.Snapshot())
}

func (r *Router) handlePause(c *gin.Context) {
	var body struct {
		Paused *bool `json:"paused"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Paused == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"paused\": bool}"})
		return
	}
	r.ledger.SetPaused(*body.Paused)
	c.JSON(http.StatusOK, gin.H{"paused": *body.Paused})
}

func (r *Router) handleOracleLog(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := r.audit.Recent(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}
