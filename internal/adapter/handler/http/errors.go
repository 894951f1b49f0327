package http

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	apperrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/errors"
	pkglogger "github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/logger"
)

// RequestValidator plugs go-playground/validator into echo
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New()}
}

func (v *RequestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "invalid field: " + verrs[0].Field()
	}
	return "invalid request"
}

// bindAndValidate decodes the body into req and checks its tags
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return c.JSON(he.Code, echo.Map{"error": he.Message})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	return nil
}

// respondError writes a terse error body. Processor codes and internal
// details only reach the logs.
func respondError(c echo.Context, logger *zap.Logger, err error, msg string) error {
	status, body := errorResponse(err)
	logger = pkglogger.FromContext(c.Request().Context(), logger)
	if status >= http.StatusInternalServerError {
		apperrors.LogError(logger, err, msg,
			zap.String("path", c.Request().URL.Path),
			zap.String("method", c.Request().Method))
	} else {
		logger.Info(msg,
			zap.Error(err),
			zap.Int("status", status),
			zap.String("path", c.Request().URL.Path))
	}
	return c.JSON(status, body)
}

func errorResponse(err error) (int, echo.Map) {
	switch {
	case errors.Is(err, domainErrors.ErrPaymentNotFound),
		errors.Is(err, domainErrors.ErrPlanNotFound),
		errors.Is(err, domainErrors.ErrResourceNotFound),
		errors.Is(err, domainErrors.ErrSubscriptionNotFound):
		return http.StatusNotFound, echo.Map{"error": err.Error()}
	case errors.Is(err, domainErrors.ErrDomainUnavailable),
		errors.Is(err, domainErrors.ErrSubscriptionNotPastDue):
		return http.StatusConflict, echo.Map{"error": err.Error()}
	case errors.Is(err, domainErrors.ErrUnsupportedCurrency):
		return http.StatusBadRequest, echo.Map{"error": err.Error()}
	case errors.Is(err, domainErrors.ErrAmountMismatch):
		return http.StatusConflict, echo.Map{"error": domainErrors.ErrAmountMismatch.Error()}
	case errors.Is(err, domainErrors.ErrPaymentPending):
		return http.StatusAccepted, echo.Map{"error": domainErrors.ErrPaymentPending.Error()}
	case errors.Is(err, domainErrors.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable, echo.Map{"error": domainErrors.ErrProviderNotConfigured.Error()}
	}

	var declined *domainErrors.ProviderDeclinedError
	if errors.As(err, &declined) {
		return http.StatusPaymentRequired, echo.Map{"error": declined.UserMessage()}
	}

	he := apperrors.ToHTTPError(err)
	return he.Code, echo.Map{"error": he.Message}
}
