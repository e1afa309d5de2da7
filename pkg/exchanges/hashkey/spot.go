package hashkey

import (
	"context"
	"errors"
	"strconv"

	"hk-gateway/pkg/exchanges/common"
)

// REST paths.
const (
	PathOrder      = "/api/v1/spot/order"
	PathOpenOrders = "/api/v1/spot/openOrders"
	PathAccount    = "/api/v1/account"
	PathDepth      = "/quote/v1/depth"
	PathTime       = "/api/v1/time"
)

// OrderParams assembles the order query. MARKET orders carry symbol, side,
// type and quantity; LIMIT orders add price and timeInForce.
func OrderParams(req common.OrderRequest) *Params {
	p := NewParams().
		Add("symbol", req.Symbol).
		Add("side", string(req.Side)).
		Add("type", string(req.Type)).
		Add("quantity", req.Qty.String())
	if req.Type == common.OrderTypeLimit {
		tif := req.TimeInForce
		if tif == "" {
			tif = common.TIFGTC
		}
		p.Add("price", req.Price.String()).
			Add("timeInForce", string(tif))
	}
	if req.ClientID != "" {
		p.AddEscaped("newClientOrderId", req.ClientID)
	}
	return p
}

// CreateOrder places a spot order.
func (c *Client) CreateOrder(ctx context.Context, req common.OrderRequest) (*Response, error) {
	return c.Post(ctx, PathOrder, OrderParams(req), true)
}

// OpenOrders lists open orders across all symbols.
func (c *Client) OpenOrders(ctx context.Context) (*Response, error) {
	return c.Get(ctx, PathOpenOrders, NewParams(), true)
}

// Account fetches balances. An empty accountID queries the default account.
func (c *Client) Account(ctx context.Context, accountID string) (*Response, error) {
	p := NewParams()
	if accountID != "" {
		p.Add("accountId", accountID)
	}
	return c.Get(ctx, PathAccount, p, true)
}

// CancelAllOpenOrders cancels every open order. No symbol filter is sent.
func (c *Client) CancelAllOpenOrders(ctx context.Context) (*Response, error) {
	return c.Delete(ctx, PathOpenOrders, NewParams(), true)
}

// Depth fetches the public order book.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (*Response, error) {
	p := NewParams().Add("symbol", symbol)
	if limit > 0 {
		p.Add("limit", strconv.Itoa(limit))
	}
	return c.Get(ctx, PathDepth, p, false)
}

// ServerTime fetches server time (ms).
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	resp, err := c.Get(ctx, PathTime, nil, false)
	if err != nil {
		return 0, err
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := resp.Decode(&res); err != nil {
		return 0, err
	}
	if res.ServerTime == 0 {
		return 0, errors.New("hashkey: empty server time")
	}
	return res.ServerTime, nil
}
