package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/homeopathy-case-engine/internal/domain"
)

// errorStatus maps an error onto its HTTP status and APIError code.
func errorStatus(err error) (int, string) {
	switch {
	case domain.IsValidationError(err),
		errors.Is(err, domain.ErrInvalidOutcomeStatus),
		errors.Is(err, domain.ErrInvalidCategory):
		return http.StatusBadRequest, domain.ErrCodeInvalidInput
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, domain.ErrCodeUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, domain.ErrCodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.ErrCodeNotFound
	default:
		return http.StatusInternalServerError, domain.ErrCodeInternalServer
	}
}

// respondError writes err as an APIError. Internal failures are logged with
// their cause and reported without it.
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	requestID := c.GetString("request_id")

	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID,
			"path":       c.FullPath(),
		}).Error("Request failed")
		message = "internal server error"
	}

	details := ""
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		message = ve.Message
		details = ve.Field
	}

	c.AbortWithStatusJSON(status, gin.H{"error": domain.NewAPIError(code, message, details, requestID)})
}

func invalidBody(err error) error {
	return domain.NewValidationError("body", "malformed request body: "+err.Error(), nil)
}
