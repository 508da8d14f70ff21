package utils

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	tests := map[string]string{
		"0":          "0.00",
		"15000.5":    "15,000.50",
		"999":        "999.00",
		"1234567.89": "1,234,567.89",
		"-1000":      "-1,000.00",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatMoney(decimal.RequireFromString(in)), in)
	}
}

func TestRespondServiceError_StatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err  error
		want int
	}{
		{NewValidationError("invalid quantity", "got %d", -1), http.StatusBadRequest},
		{NewValidationError("duplicate label in tenant", "label 4"), http.StatusConflict},
		{fmt.Errorf("table 9: %w", ErrNotFound), http.StatusNotFound},
		{&TransactionError{Op: "close order", Err: errors.New("disk full")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/x", nil)

		RespondServiceError(c, tt.err)
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
	}
}

func TestErrorTaxonomy(t *testing.T) {
	ve := NewValidationError("table/branch mismatch", "table %d", 3)
	wrapped := fmt.Errorf("create order: %w", ve)

	assert.True(t, IsValidation(wrapped))
	assert.Equal(t, "table/branch mismatch", InvariantOf(wrapped))
	assert.Equal(t, "table/branch mismatch: table 3", ve.Error())
	assert.False(t, IsConflict(wrapped))

	te := &TransactionError{Op: "save", Err: ErrNotFound}
	assert.True(t, IsTransaction(te))
	assert.True(t, te.Retryable())
	assert.True(t, errors.Is(te, ErrNotFound))
	assert.Empty(t, InvariantOf(te))
}

func TestTokenRoundTrip(t *testing.T) {
	SetJWTSecret("unit-test-secret")
	defer SetJWTSecret("dev-secret-change-me")

	token, err := GenerateToken(3, 8, "admin", time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(3), claims.UserID)
	assert.Equal(t, uint(8), claims.TenantID)

	SetJWTSecret("another-secret")
	_, err = ParseToken(token)
	assert.Error(t, err)
}
