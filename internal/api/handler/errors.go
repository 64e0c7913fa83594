package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/photoshot-be/internal/api/dto"
	"github.com/cuongbtq/photoshot-be/internal/domain"
)

// StatusForKind maps an error kind to its HTTP status
func StatusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidQuantity, domain.KindPromptMissing, domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindPaymentRequired:
		return http.StatusPaymentRequired
	case domain.KindQuotaExhausted:
		return http.StatusForbidden
	case domain.KindModelNotReady, domain.KindOutputNotReady:
		return http.StatusConflict
	case domain.KindProviderUnavailable, domain.KindEnhancementFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as an ErrorResponse. Only the tagged message is
// exposed; the cause goes to the log.
func WriteError(c *gin.Context, logger *slog.Logger, err error) {
	writeError(c, logger, err, dto.ErrorResponse{})
}

func writeError(c *gin.Context, logger *slog.Logger, err error, body dto.ErrorResponse) {
	var tagged *domain.Error
	if !errors.As(err, &tagged) {
		tagged = domain.NewError(domain.KindPersistenceError, "Internal server error", err)
	}

	status := StatusForKind(tagged.Kind)
	attrs := []any{
		slog.String("kind", string(tagged.Kind)),
		slog.Int("status", status),
		slog.Any("error", err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", attrs...)
	} else {
		logger.Warn("Request rejected", attrs...)
	}

	body.Error = string(tagged.Kind)
	body.Message = tagged.Message
	c.AbortWithStatusJSON(status, body)
}
