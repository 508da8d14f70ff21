package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type JSONResponse struct {
	Status    bool        `json:"status"`
	Message   string      `json:"message"`
	Invariant string      `json:"invariant,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, err error) {
	c.JSON(code, JSONResponse{
		Status:    false,
		Message:   err.Error(),
		Invariant: InvariantOf(err),
		Retryable: IsTransaction(err),
	})
}

// RespondServiceError picks the status code from the error taxonomy:
// validation 400 (409 when it collides with current state), not found 404,
// everything else 500.
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case IsConflict(err):
		RespondError(c, http.StatusConflict, err)
	case IsValidation(err):
		RespondError(c, http.StatusBadRequest, err)
	case errors.Is(err, ErrNotFound):
		RespondError(c, http.StatusNotFound, err)
	default:
		ErrorLogger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		RespondError(c, http.StatusInternalServerError, err)
	}
}
