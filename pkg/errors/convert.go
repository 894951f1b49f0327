package errors

import "net/http"

// 에러 코드별 HTTP 상태 코드
var httpStatus = map[string]int{
	ErrInternal:        http.StatusInternalServerError,
	ErrNotFound:        http.StatusNotFound,
	ErrInvalidArgument: http.StatusBadRequest,
	ErrUnauthenticated: http.StatusUnauthorized,
	ErrConflict:        http.StatusConflict,
	ErrPaymentDeclined: http.StatusPaymentRequired,
	ErrUnavailable:     http.StatusServiceUnavailable,
	ErrInconsistent:    http.StatusInternalServerError,
}
