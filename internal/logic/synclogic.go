package logic

import (
	"context"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	marketpersist "qtcache/internal/persistence/market"
	"qtcache/internal/svc"
	"qtcache/internal/types"
	"qtcache/pkg/market"
)

type SyncLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewSyncLogic(ctx context.Context, svcCtx *svc.ServiceContext) *SyncLogic {
	return &SyncLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Sync runs SyncSymbol when a symbol is given and a SyncAll sweep otherwise.
// A single-symbol failure is returned as the request error; sweep failures
// are reported per symbol.
func (l *SyncLogic) Sync(req *types.SyncRequest) (resp *types.SyncResponse, err error) {
	interval := l.svcCtx.Config.SyncInterval()
	if strings.TrimSpace(req.Interval) != "" {
		if interval, err = market.ParseInterval(req.Interval); err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(req.Symbol) != "" {
		res, err := l.svcCtx.Candles.SyncSymbol(l.ctx, req.Symbol, interval)
		if err != nil {
			return nil, err
		}
		return &types.SyncResponse{
			Interval:  string(interval),
			Succeeded: 1,
			Results:   []types.SyncResult{toSyncResult(res)},
		}, nil
	}

	backup := l.svcCtx.Config.Sync.Backup
	if req.Backup != nil {
		backup = *req.Backup
	}
	// the sweep outlives a dropped client connection
	report, err := l.svcCtx.Candles.SyncAll(context.WithoutCancel(l.ctx), interval, backup)
	if err != nil {
		return nil, err
	}
	return toSyncResponse(report), nil
}

func toSyncResponse(report *marketpersist.SyncReport) *types.SyncResponse {
	resp := &types.SyncResponse{
		SweepID:     report.SweepID,
		Interval:    string(report.Interval),
		BackupPath:  report.BackupPath,
		JournalPath: report.JournalPath,
		Succeeded:   report.Succeeded,
		Failed:      report.Failed,
		Results:     make([]types.SyncResult, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		resp.Results = append(resp.Results, toSyncResult(res))
	}
	return resp
}
