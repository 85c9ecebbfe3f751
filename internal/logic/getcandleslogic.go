package logic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"qtcache/internal/svc"
	"qtcache/internal/types"
	"qtcache/pkg/market"
)

type GetCandlesLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
	now    func() time.Time
}

func NewGetCandlesLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetCandlesLogic {
	return &GetCandlesLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
		now:    time.Now,
	}
}

// GetCandles reads cached bars in [start, end). A missing interval means the
// configured sync interval, a missing end means now and a missing start
// means the beginning of the cache.
func (l *GetCandlesLogic) GetCandles(req *types.CandlesRequest) (resp *types.CandlesResponse, err error) {
	interval := l.svcCtx.Config.SyncInterval()
	if strings.TrimSpace(req.Interval) != "" {
		if interval, err = market.ParseInterval(req.Interval); err != nil {
			return nil, err
		}
	}
	end := l.now().UTC()
	if req.End != "" {
		if end, err = parseTime("end", req.End); err != nil {
			return nil, err
		}
	}
	start := time.Unix(0, 0).UTC()
	if req.Start != "" {
		if start, err = parseTime("start", req.Start); err != nil {
			return nil, err
		}
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s is not after start %s", market.ErrValidation, req.End, req.Start)
	}

	candles, err := l.svcCtx.Candles.ReadRange(l.ctx, req.Symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	resp = &types.CandlesResponse{
		Symbol:   market.NormalizeSymbol(req.Symbol),
		Interval: string(interval),
		Start:    formatTime(start),
		End:      formatTime(end),
		Count:    len(candles),
		Candles:  make([]types.Candle, 0, len(candles)),
	}
	for _, c := range candles {
		resp.Candles = append(resp.Candles, toCandle(c))
	}
	return resp, nil
}

func parseTime(name, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339: %v", market.ErrValidation, name, err)
	}
	return t, nil
}
