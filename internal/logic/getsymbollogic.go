package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	marketpersist "qtcache/internal/persistence/market"
	"qtcache/internal/svc"
	"qtcache/internal/types"
)

type GetSymbolLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetSymbolLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetSymbolLogic {
	return &GetSymbolLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetSymbolLogic) GetSymbol(req *types.SymbolRequest) (resp *types.Symbol, err error) {
	policy, err := marketpersist.ParsePolicy(req.Policy)
	if err != nil {
		return nil, err
	}
	rec, err := l.svcCtx.Symbols.Get(l.ctx, req.Symbol, policy)
	if err != nil {
		return nil, err
	}
	out := toSymbol(rec)
	return &out, nil
}
