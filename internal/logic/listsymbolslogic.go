package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"qtcache/internal/svc"
	"qtcache/internal/types"
)

type ListSymbolsLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewListSymbolsLogic(ctx context.Context, svcCtx *svc.ServiceContext) *ListSymbolsLogic {
	return &ListSymbolsLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *ListSymbolsLogic) ListSymbols() (resp *types.SymbolListResponse, err error) {
	records, err := l.svcCtx.Symbols.GetAll(l.ctx)
	if err != nil {
		return nil, err
	}
	resp = &types.SymbolListResponse{
		Count:   len(records),
		Symbols: make([]types.Symbol, 0, len(records)),
	}
	for i := range records {
		resp.Symbols = append(resp.Symbols, toSymbol(&records[i]))
	}
	return resp, nil
}
