package handler

import (
	"errors"
	"net/http"

	"agency-ledger/internal/adapter/http/dto"
	"agency-ledger/pkg/apperror"
	"agency-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// bindJSON decodes and validates the request body into req and sanitizes
// its string fields. On failure it writes the error response and returns
// false.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, apperror.ErrPayloadTooLarge())
			return false
		}
		response.Error(c, apperror.Validation(err.Error()))
		return false
	}
	dto.SanitizeStruct(req)
	return true
}

// userIDQuery reads the required userId query parameter.
func userIDQuery(c *gin.Context) (string, bool) {
	userID := c.Query("userId")
	if userID == "" {
		response.Error(c, apperror.ErrMissingField("userId is required"))
		return "", false
	}
	if !dto.SafeID(userID) {
		response.Error(c, apperror.Validation("userId is malformed"))
		return "", false
	}
	return userID, true
}

// idParam reads the :id path parameter.
func idParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !dto.SafeID(id) {
		response.Error(c, apperror.Validation("id is malformed"))
		return "", false
	}
	return id, true
}
