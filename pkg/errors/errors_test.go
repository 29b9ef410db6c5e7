package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorUnwrapsAppError(t *testing.T) {
	inner := NewNotFoundError("CHATBOT_NOT_FOUND", "chatbot not found")
	wrapped := fmt.Errorf("lookup: %w", inner)

	assert.Same(t, inner, FromError(wrapped))
	assert.Equal(t, http.StatusNotFound, StatusCode(wrapped))
	assert.True(t, IsCode(wrapped, "CHATBOT_NOT_FOUND"))
}

func TestFromErrorWrapsPlainError(t *testing.T) {
	cause := stderrors.New("disk full")
	appErr := FromError(cause)

	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", appErr.Code)
	assert.ErrorIs(t, appErr, cause)
	assert.Nil(t, FromError(nil))
}

func TestErrorHandlerRendersEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(NewBadRequestError("INVALID_BODY", "bad body").WithDetails("name is required"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_BODY", body.Error.Code)
	assert.Equal(t, "name is required", body.Error.Details)
}

func TestRecoveryWithLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoveryWithLogger())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "SERVER_ERROR")
}
