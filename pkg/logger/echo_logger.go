// File: pkg/logger/echo_logger.go
package logger

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	apperrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/errors"
)

// 서명 헤더는 앞부분만 기록합니다
var maskedHeaders = map[string]bool{
	"Authorization":     true,
	"Stripe-Signature":  true,
	"X-Nowpayments-Sig": true,
}

// NewEchoRequestLogger는 Echo 서버를 위한 Request Logger를 생성합니다.
// 요청마다 request_id가 붙은 로거를 context에 넣어 핸들러와 유스케이스가 같은 필드로 기록하게 합니다.
func NewEchoRequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	config := middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health" || c.Request().URL.Path == "/metrics"
		},
		BeforeNextFunc: func(c echo.Context) {
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			if reqID == "" {
				reqID = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			scoped := logger.With(zap.String("request_id", reqID))
			c.SetRequest(c.Request().WithContext(WithContext(c.Request().Context(), scoped)))
		},
		HandleError: true,

		LogLatency:   true,
		LogRemoteIP:  true,
		LogMethod:    true,
		LogURIPath:   true,
		LogRoutePath: true,
		LogRequestID: true,
		LogUserAgent: true,
		LogStatus:    true,
		LogError:     true,
		LogHeaders:   []string{"Content-Type", "Authorization", "Stripe-Signature", "X-Nowpayments-Sig"},

		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request.remote_ip", v.RemoteIP),
				zap.String("request.method", v.Method),
				zap.String("request.path", v.URIPath),
				zap.String("request.route", v.RoutePath),
				zap.String("request.user_agent", v.UserAgent),
				zap.String("request.request_id", v.RequestID),
				zap.Int("response.status", v.Status),
				zap.Duration("response.latency", v.Latency),
			}

			if len(v.Headers) > 0 {
				headers := make(map[string]string, len(v.Headers))
				for k, values := range v.Headers {
					if len(values) == 0 {
						continue
					}
					val := values[0]
					if maskedHeaders[http.CanonicalHeaderKey(k)] {
						if len(val) > 15 {
							val = val[:10] + "..."
						} else {
							val = "[MASKED]"
						}
					}
					headers[k] = val
				}
				fields = append(fields, zap.Any("request.headers", headers))
			}

			switch {
			case v.Error != nil:
				fields = append(fields, zap.Error(v.Error))
				logger.Error("Request failed", fields...)
			case v.Status >= 500:
				logger.Error("Server error", fields...)
			case v.Status >= 400:
				logger.Warn("Client error", fields...)
			default:
				logger.Info("Request completed", fields...)
			}
			return nil
		},
	}

	return middleware.RequestLoggerWithConfig(config)
}

// WithEchoLogger Echo에 대한 커스텀 에러 핸들러를 설정합니다.
// 응답에는 코드별 짧은 메시지만 노출하고 상세 내용은 로그에만 남깁니다.
func WithEchoLogger(e *echo.Echo, logger *zap.Logger) {
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		he := apperrors.ToHTTPError(err)

		fields := []zap.Field{
			zap.Int("status", he.Code),
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.String("ip", c.RealIP()),
		}
		if he.Code >= http.StatusInternalServerError {
			apperrors.LogError(logger, err, "HTTP error", fields...)
		} else {
			logger.Warn("HTTP error", append(fields, zap.Error(err))...)
		}

		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, echo.Map{
				"error": he.Message,
				"code":  apperrors.CodeOf(err),
			})
		}
		if err != nil {
			logger.Error("Failed to send error response", zap.Error(err))
		}
	}
}
