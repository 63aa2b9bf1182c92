package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bruno-portfolio/basismind/internal/decision"
	"github.com/bruno-portfolio/basismind/internal/market"
	"github.com/bruno-portfolio/basismind/internal/observ"
	"github.com/bruno-portfolio/basismind/internal/schema"
	"github.com/bruno-portfolio/basismind/internal/store"
	"github.com/bruno-portfolio/basismind/internal/transport"
)

// Event types published on the hub.
const (
	EventDecision = "decision"
	EventBook     = "book"
	EventRun      = "run"
)

type handlers struct {
	cfg Config
}

func (h *handlers) register(g *gin.RouterGroup) {
	g.POST("/decisions", h.handleDecide)
	g.GET("/reports", h.handleReports)
	g.GET("/reports/:date", h.handleReport)
	g.GET("/book", h.handleBook)
	g.PUT("/book", h.handlePutBook)
	g.POST("/book/adjust", h.handleAdjustBook)
	g.GET("/runs", h.handleRuns)
	g.POST("/runs", h.handleRun)
	g.GET("/events", gin.WrapH(transport.SSEHandler{Hub: h.cfg.Hub}))
}

type decisionRequest struct {
	Inputs decision.MarketInputs `json:"inputs"`
	Book   *decision.BookState   `json:"book,omitempty"`
}

func (h *handlers) handleDecide(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := schema.Validate(schema.DecisionRequest, raw); err != nil {
		badRequest(c, err)
		return
	}
	var req decisionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		unprocessable(c, err)
		return
	}
	book := h.cfg.Book.Book()
	if req.Book != nil {
		book = *req.Book
	}

	start := time.Now()
	rep, err := h.cfg.Engine.Run(req.Inputs, book)
	observ.RecordDecision("api", rep.FiredIDs(), time.Since(start), err)
	if err != nil {
		unprocessable(c, err)
		return
	}
	if persist, _ := strconv.ParseBool(c.Query("persist")); persist {
		id, err := h.cfg.Store.SaveReport(c.Request.Context(), rep, req.Inputs)
		if err != nil {
			observ.Error("report_save_failed", err, map[string]any{"date": req.Inputs.Date.Format(market.DateLayout)})
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save report"})
			return
		}
		c.Header("X-Report-ID", id)
	}
	h.publish(EventDecision, rep)
	c.JSON(http.StatusOK, rep)
}

func (h *handlers) handleReports(c *gin.Context) {
	limit := queryInt(c, "limit", 30, 365)
	list, err := h.cfg.Store.ListReports(c.Request.Context(), limit)
	if err != nil {
		internalError(c, "list_reports", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": list, "count": len(list)})
}

func (h *handlers) handleReport(c *gin.Context) {
	date, err := market.ParseDate(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	rep, err := h.cfg.Store.Report(c.Request.Context(), date)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report for " + c.Param("date")})
		return
	}
	if err != nil {
		internalError(c, "get_report", err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handlers) handleBook(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfg.Book.Snapshot())
}

func (h *handlers) handlePutBook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := schema.Validate(schema.Book, raw); err != nil {
		badRequest(c, err)
		return
	}
	var b decision.BookState
	if err := json.Unmarshal(raw, &b); err != nil {
		unprocessable(c, err)
		return
	}
	snap, err := h.cfg.Book.Update(b, updatedBy(c))
	if err != nil {
		unprocessable(c, err)
		return
	}
	h.publish(EventBook, snap)
	c.JSON(http.StatusOK, snap)
}

type adjustRequest struct {
	PhysicalPP float64 `json:"physical_pp"`
	HedgePP    float64 `json:"hedge_pp"`
}

// handleAdjustBook records an executed trade as a move in exposure or hedge.
func (h *handlers) handleAdjustBook(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	by := updatedBy(c)
	snap := h.cfg.Book.Snapshot()
	var err error
	if req.PhysicalPP != 0 {
		if snap, err = h.cfg.Book.ApplyPhysical(req.PhysicalPP, by); err != nil {
			unprocessable(c, err)
			return
		}
	}
	if req.HedgePP != 0 {
		if snap, err = h.cfg.Book.ApplyHedge(req.HedgePP, by); err != nil {
			unprocessable(c, err)
			return
		}
	}
	h.publish(EventBook, snap)
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) handleRuns(c *gin.Context) {
	runs, err := h.cfg.Store.Runs(c.Request.Context(), queryInt(c, "limit", 20, 200))
	if err != nil {
		internalError(c, "list_runs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (h *handlers) handleRun(c *gin.Context) {
	if h.cfg.Pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline not configured"})
		return
	}
	date := time.Now().UTC()
	if v := strings.TrimSpace(c.Query("date")); v != "" {
		d, err := market.ParseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = d
	}
	res, err := h.cfg.Pipeline.Run(c.Request.Context(), date)
	h.publish(EventRun, res)
	if res.Report != nil {
		h.publish(EventDecision, *res.Report)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) publish(typ string, payload any) {
	if _, err := h.cfg.Hub.Publish(typ, payload); err != nil {
		observ.Error("event_publish_failed", err, map[string]any{"type": typ})
	}
}

func updatedBy(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader("X-Updated-By")); v != "" {
		return v
	}
	return "api"
}

func queryInt(c *gin.Context, key string, def, maxV int) int {
	n, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxV)
}

func badRequest(c *gin.Context, err error) {
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "causes": ve.Causes})
		return
	}
	internalError(c, "schema", err)
}

// unprocessable maps engine validation failures to 422 and everything else to 500.
func unprocessable(c *gin.Context, err error) {
	var de *decision.Error
	if errors.As(err, &de) && errors.Is(err, decision.ErrValidation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": de.Error(), "field": de.Field})
		return
	}
	internalError(c, "decision", err)
}

func internalError(c *gin.Context, op string, err error) {
	observ.Error("http_handler_failed", err, map[string]any{"op": op, "path": c.Request.URL.Path})
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
