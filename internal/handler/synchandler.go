package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"qtcache/internal/logic"
	"qtcache/internal/svc"
	"qtcache/internal/types"
)

func SyncHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SyncRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, badRequest(err))
			return
		}

		l := logic.NewSyncLogic(r.Context(), svcCtx)
		resp, err := l.Sync(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
