package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/service"
)

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, dto.Envelope{Success: true, Data: data})
}

func okList[T any](c *gin.Context, items []T, page *dto.Pagination) {
	n := len(items)
	c.JSON(http.StatusOK, dto.Envelope{Success: true, Data: items, Count: &n, Pagination: page})
}

func okMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, dto.Envelope{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, dto.Envelope{Success: false, Message: message})
}

func bindFailed(c *gin.Context, err error) {
	fail(c, http.StatusBadRequest, err.Error())
}

// respondError answers with the status matching a business error. Anything
// else is logged and hidden behind a 500.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		fail(c, statusFor(svcErr.Kind), svcErr.Error())
		return
	}
	log.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, "Server Error")
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindInsufficientStock, service.KindInvalidState, service.KindUpstream:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
