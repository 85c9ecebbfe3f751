// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"qtcache/internal/svc"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/symbols",
				Handler: ListSymbolsHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/symbols/:symbol",
				Handler: GetSymbolHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/candles/:symbol",
				Handler: GetCandlesHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/price/:symbol",
				Handler: GetPriceHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/sync",
				Handler: SyncHandler(serverCtx),
			},
		},
		rest.WithPrefix("/api"),
	)
}
