package errors

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ToHTTPStatus는 에러 코드를 HTTP 상태 코드로 변환합니다
func ToHTTPStatus(code string) int {
	if status, ok := httpStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ToHTTPError는 에러를 Echo HTTP 에러로 변환합니다
func ToHTTPError(err error) *echo.HTTPError {
	if err == nil {
		return nil
	}

	// Echo 에러인 경우 그대로 반환
	var echoErr *echo.HTTPError
	if As(err, &echoErr) {
		return echoErr
	}

	var appErr *AppError
	if As(err, &appErr) {
		return echo.NewHTTPError(ToHTTPStatus(appErr.Code()), appErr.Message())
	}

	// 도메인 에러는 코드만 노출하고 내부 상세는 숨깁니다
	var coder Coder
	if As(err, &coder) {
		status := ToHTTPStatus(coder.Code())
		return echo.NewHTTPError(status, http.StatusText(status))
	}

	// 기본 에러는 500으로 처리
	return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
