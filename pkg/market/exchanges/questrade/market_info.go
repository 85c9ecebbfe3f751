package questrade

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ServerTime returns the API server's current time.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var resp ServerTimeResponse
	if err := c.doRequest(ctx, "v1/time", nil, &resp); err != nil {
		return time.Time{}, err
	}
	return resp.Time.Time, nil
}

// Markets lists the markets the API supports.
func (c *Client) Markets(ctx context.Context) ([]Market, error) {
	var resp MarketsResponse
	if err := c.doRequest(ctx, "v1/markets", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Markets, nil
}

// Quote returns the level 1 quote for a symbol id.
func (c *Client) Quote(ctx context.Context, symbolID int64) (*Quote, error) {
	var resp QuotesResponse
	if err := c.doRequest(ctx, fmt.Sprintf("v1/markets/quotes/%d", symbolID), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Quotes) == 0 {
		return nil, fmt.Errorf("questrade: no quote for symbol id %d", symbolID)
	}
	return &resp.Quotes[0], nil
}

// Quotes returns level 1 quotes for several symbol ids in one call.
func (c *Client) Quotes(ctx context.Context, symbolIDs []int64) ([]Quote, error) {
	if len(symbolIDs) == 0 {
		return nil, nil
	}
	q := url.Values{}
	q.Set("ids", joinIDs(symbolIDs))
	var resp QuotesResponse
	if err := c.doRequest(ctx, "v1/markets/quotes", q, &resp); err != nil {
		return nil, err
	}
	return resp.Quotes, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
