package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"qtcache/internal/svc"
	"qtcache/internal/types"
	"qtcache/pkg/market"
)

type GetPriceLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetPriceLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetPriceLogic {
	return &GetPriceLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetPriceLogic) GetPrice(req *types.PriceRequest) (resp *types.PriceResponse, err error) {
	price, err := l.svcCtx.Candles.LatestPrice(l.ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	return &types.PriceResponse{
		Symbol: market.NormalizeSymbol(req.Symbol),
		Price:  price,
	}, nil
}
