package classifier

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Middleware rejects requests the classifier marks as automated
func Middleware(c *Client, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			verdict := c.Classify(req.Context(), Request{
				IP:        ctx.RealIP(),
				UserAgent: req.UserAgent(),
				Path:      req.URL.Path,
				Referer:   req.Referer(),
			})
			if !verdict.Allow {
				logger.Info("Request blocked by traffic classifier",
					zap.String("ip", ctx.RealIP()),
					zap.String("path", req.URL.Path),
					zap.String("reason", verdict.Reason))
				return ctx.JSON(http.StatusForbidden, map[string]string{
					"error": "request blocked",
				})
			}
			return next(ctx)
		}
	}
}
