package handler

import (
	"errors"
	"net/http"

	"github.com/Lunnius/Npstest/model"
	"github.com/Lunnius/Npstest/pkg/codec"
	"github.com/Lunnius/Npstest/pkg/document"
	"github.com/Lunnius/Npstest/service"
	"github.com/gin-gonic/gin"
)

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	var (
		validationErr *model.ValidationError
		imageErr      *document.InvalidImagePayloadError
		missingErr    *service.ArtifactMissingError
		sourceErr     *document.SourceUnreadableError
		storageErr    *service.StorageWriteFailedError
	)

	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &imageErr),
		errors.Is(err, codec.ErrInvalidEncoding):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrProcessNotFound),
		errors.As(err, &missingErr):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyFinalized),
		errors.Is(err, service.ErrStatusConflict),
		errors.Is(err, model.ErrIllegalTransition):
		return http.StatusConflict
	case errors.As(err, &sourceErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &storageErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError records err for the access log and writes the JSON error
// body. Internal failures are not echoed to the client.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
