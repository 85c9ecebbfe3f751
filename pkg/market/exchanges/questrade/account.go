package questrade

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Order state filters accepted by Orders.
const (
	OrderStateAll    = "All"
	OrderStateOpen   = "Open"
	OrderStateClosed = "Closed"
)

// Accounts lists the accounts owned by the authenticated user.
func (c *Client) Accounts(ctx context.Context) (*AccountsResponse, error) {
	var resp AccountsResponse
	if err := c.doRequest(ctx, "v1/accounts", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Positions lists open positions for an account.
func (c *Client) Positions(ctx context.Context, accountID string) ([]Position, error) {
	path, err := accountPath(accountID, "positions")
	if err != nil {
		return nil, err
	}
	var resp PositionsResponse
	if err := c.doRequest(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

// Balances returns current and start-of-day balances for an account.
func (c *Client) Balances(ctx context.Context, accountID string) (*BalancesResponse, error) {
	path, err := accountPath(accountID, "balances")
	if err != nil {
		return nil, err
	}
	var resp BalancesResponse
	if err := c.doRequest(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Executions lists fills in [start, end]. Zero times are omitted and the API
// falls back to the start of the current day.
func (c *Client) Executions(ctx context.Context, accountID string, start, end time.Time) ([]Execution, error) {
	path, err := accountPath(accountID, "executions")
	if err != nil {
		return nil, err
	}
	var resp ExecutionsResponse
	if err := c.doRequest(ctx, path, timeRange(start, end), &resp); err != nil {
		return nil, err
	}
	return resp.Executions, nil
}

// Orders lists orders in [start, end] filtered by state (All, Open, Closed).
func (c *Client) Orders(ctx context.Context, accountID string, start, end time.Time, stateFilter string) ([]Order, error) {
	path, err := accountPath(accountID, "orders")
	if err != nil {
		return nil, err
	}
	q := timeRange(start, end)
	if s := strings.TrimSpace(stateFilter); s != "" {
		if q == nil {
			q = url.Values{}
		}
		q.Set("stateFilter", s)
	}
	var resp OrdersResponse
	if err := c.doRequest(ctx, path, q, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// Order fetches a single order by id.
func (c *Client) Order(ctx context.Context, accountID string, orderID int64) (*Order, error) {
	path, err := accountPath(accountID, "orders")
	if err != nil {
		return nil, err
	}
	var resp OrdersResponse
	if err := c.doRequest(ctx, fmt.Sprintf("%s/%d", path, orderID), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Orders) == 0 {
		return nil, fmt.Errorf("questrade: order %d not returned", orderID)
	}
	return &resp.Orders[0], nil
}

// Activities lists ledger activity in [start, end]. The API caps a single
// request at 31 days.
func (c *Client) Activities(ctx context.Context, accountID string, start, end time.Time) ([]Activity, error) {
	path, err := accountPath(accountID, "activities")
	if err != nil {
		return nil, err
	}
	var resp ActivitiesResponse
	if err := c.doRequest(ctx, path, timeRange(start, end), &resp); err != nil {
		return nil, err
	}
	return resp.Activities, nil
}

func accountPath(accountID, resource string) (string, error) {
	id := strings.TrimSpace(accountID)
	if id == "" {
		return "", fmt.Errorf("questrade: account id is required")
	}
	return "v1/accounts/" + url.PathEscape(id) + "/" + resource, nil
}

func timeRange(start, end time.Time) url.Values {
	if start.IsZero() && end.IsZero() {
		return nil
	}
	q := url.Values{}
	if !start.IsZero() {
		q.Set("startTime", formatTime(start))
	}
	if !end.IsZero() {
		q.Set("endTime", formatTime(end))
	}
	return q
}
