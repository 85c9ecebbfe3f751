package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"qtcache/internal/logic"
	"qtcache/internal/svc"
)

func ListSymbolsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logic.NewListSymbolsLogic(r.Context(), svcCtx)
		resp, err := l.ListSymbols()
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
