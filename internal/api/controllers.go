package api

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hk-gateway/internal/order"
	"hk-gateway/internal/scenario"
	"hk-gateway/pkg/quantity"
)

type createOrderQuery struct {
	Symbol           string `form:"symbol" binding:"required"`
	Side             string `form:"side" binding:"required"`
	Type             string `form:"type" binding:"required"`
	Quantity         string `form:"quantity"`
	Amount           string `form:"amount"`
	Price            string `form:"price"`
	NewClientOrderID string `form:"newClientOrderId"`
	TimeInForce      string `form:"timeInForce,default=GTC"`
}

type limitOrderQuery struct {
	Symbol   string `form:"symbol"`
	Price    string `form:"price" binding:"required"`
	Quantity string `form:"quantity" binding:"required"`
}

type orderbookQuery struct {
	Symbol string `form:"symbol"`
	Limit  int    `form:"limit,default=5"`
}

type scenarioQuery struct {
	Iteration    int     `form:"iteration,default=100"`
	DelaySeconds float64 `form:"delay_seconds,default=5"`
}

// parseDecimals reads named decimal query values into dst, in order.
func parseDecimals(names []string, raw []string, dst []*decimal.Decimal) error {
	for i, v := range raw {
		d, err := quantity.Parse(strings.TrimSpace(v))
		if err != nil {
			return &badInput{msg: names[i] + " is not a number"}
		}
		*dst[i] = d
	}
	return nil
}

type badInput struct{ msg string }

func (e *badInput) Error() string { return e.msg }
func (e *badInput) Unwrap() error { return order.ErrInvalidRequest }

// createOrder places an arbitrary order from query parameters.
func (s *Server) createOrder(c *gin.Context) {
	var q createOrderQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "symbol, side and type are required")
		return
	}
	req := order.Request{
		Symbol:        q.Symbol,
		Side:          q.Side,
		Type:          q.Type,
		ClientOrderID: q.NewClientOrderID,
		TimeInForce:   q.TimeInForce,
	}
	if err := parseDecimals(
		[]string{"quantity", "amount", "price"},
		[]string{q.Quantity, q.Amount, q.Price},
		[]*decimal.Decimal{&req.Quantity, &req.Amount, &req.Price},
	); err != nil {
		s.respondFailure(c, err)
		return
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	placed, err := s.Orders.Create(c.Request.Context(), req)
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondUpstream(c, http.StatusOK, placed.Response)
}

func (s *Server) openOrders(c *gin.Context) {
	resp, err := s.Orders.OpenOrders(c.Request.Context())
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondUpstream(c, http.StatusOK, resp.Body)
}

func (s *Server) balance(c *gin.Context) {
	resp, err := s.Orders.Balance(c.Request.Context())
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondUpstream(c, http.StatusOK, resp.Body)
}

func (s *Server) buyMarket(c *gin.Context) {
	placed, err := s.Orders.BuyMarket(c.Request.Context())
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondUpstream(c, http.StatusOK, placed.Response)
}

func (s *Server) sellMarket(c *gin.Context) {
	placed, err := s.Orders.SellMarket(c.Request.Context())
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondUpstream(c, http.StatusOK, placed.Response)
}

func (s *Server) buyLimit(c *gin.Context) {
	s.limitOrder(c, s.Orders.BuyLimit)
}

func (s *Server) sellLimit(c *gin.Context) {
	s.limitOrder(c, s.Orders.SellLimit)
}

type limitFunc func(ctx context.Context, symbol string, price, qty decimal.Decimal) (*order.Placed, error)

func (s *Server) limitOrder(c *gin.Context, place limitFunc) {
	var q limitOrderQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "price and quantity are required")
		return
	}
	var price, qty decimal.Decimal
	if err := parseDecimals(
		[]string{"price", "quantity"},
		[]string{q.Price, q.Quantity},
		[]*decimal.Decimal{&price, &qty},
	); err != nil {
		s.respondFailure(c, err)
		return
	}

	placed, err := place(c.Request.Context(), q.Symbol, price, qty)
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondUpstream(c, http.StatusOK, placed.Response)
}

// cancelOrdersAll cancels every open order on the account.
func (s *Server) cancelOrdersAll(c *gin.Context) {
	resp, err := s.Orders.CancelAll(c.Request.Context())
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondUpstream(c, http.StatusOK, resp.Body)
}

func (s *Server) getOrderbook(c *gin.Context) {
	var q orderbookQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be an integer")
		return
	}
	resp, err := s.Orders.OrderBook(c.Request.Context(), q.Symbol, q.Limit)
	if err != nil {
		s.respondFailure(c, err)
		return
	}
	respondUpstream(c, http.StatusOK, resp.Body)
}

// maxScenarioDelay bounds the per-step delay accepted from callers.
const maxScenarioDelay = 24 * time.Hour

// runScenario executes the camp2 loop and answers with every exchange
// response in placement order. The run outlives a dropped client connection.
func (s *Server) runScenario(c *gin.Context) {
	var q scenarioQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "iteration and delay_seconds must be numbers")
		return
	}
	if d := q.DelaySeconds; math.IsNaN(d) || d < 0 || d > maxScenarioDelay.Seconds() {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "delay_seconds must be between 0 and 86400")
		return
	}
	params := scenario.Params{
		Iterations: q.Iteration,
		Delay:      time.Duration(q.DelaySeconds * float64(time.Second)),
	}

	rep, err := s.Scenario.Run(s.runCtx, params)
	if err != nil {
		if rep != nil {
			s.log.Warn("scenario ended early",
				zap.String("run", rep.ID),
				zap.Int("orders_placed", len(rep.Steps)),
				zap.Error(err),
			)
		}
		if rep != nil && scenario.IsCancelled(err) {
			c.JSON(http.StatusConflict, gin.H{
				"status":  "cancelled",
				"message": "scenario cancelled",
				"code":    "CANCELLED",
				"report":  rep,
			})
			return
		}
		s.respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, rep.Responses())
}

func (s *Server) scenarioStatus(c *gin.Context) {
	rep := s.Scenario.Status()
	if rep == nil {
		c.JSON(http.StatusOK, gin.H{"status": "idle"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) cancelScenario(c *gin.Context) {
	if !s.Scenario.Cancel() {
		respondError(c, http.StatusConflict, "NOT_RUNNING", "no scenario is running")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}
