package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zeromicro/go-zero/core/logx"

	"qtcache/internal/types"
	"qtcache/pkg/market"
)

// ErrorHandler maps store and gateway errors onto HTTP statuses. It is
// installed with httpx.SetErrorHandlerCtx.
func ErrorHandler(ctx context.Context, err error) (int, any) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.WithContext(ctx).Errorf("handler: status=%d err=%v", status, err)
	}
	return status, &types.ErrorResponse{Code: status, Message: err.Error()}
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, market.ErrNotFound), errors.Is(err, market.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, market.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", market.ErrValidation, err)
}
