package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
	"github.com/AnshRaj112/expense-tracker-backend/internal/services"
	"github.com/AnshRaj112/expense-tracker-backend/internal/validation"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", validation.Field("amount", "is required"), http.StatusBadRequest, "Validation failed"},
		{"bad body", errBadBody, http.StatusBadRequest, "Invalid request body"},
		{"duplicate email", services.ErrDuplicateEmail, http.StatusBadRequest, "Email already registered"},
		{"duplicate username", services.ErrDuplicateUsername, http.StatusBadRequest, "Username already taken"},
		{"bad credentials", services.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
		{"locked reads as bad credentials", services.ErrAccountLocked, http.StatusUnauthorized, "Invalid email or password"},
		{"expired token", services.ErrExpiredToken, http.StatusUnauthorized, "Token expired"},
		{"invalid token", services.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
		{"user not found", fmt.Errorf("lookup: %w", services.ErrUserNotFound), http.StatusNotFound, "User not found"},
		{"expense not found", services.ErrExpenseNotFound, http.StatusNotFound, "Expense not found"},
		{"uploads disabled", services.ErrUploadsDisabled, http.StatusServiceUnavailable, "File uploads are not configured"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
			respondError(rec, req, zap.NewNop(), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestRespondErrorLogsOnlyUnexpected(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)
	req := httptest.NewRequest(http.MethodDelete, "/api/expenses/1", nil)

	respondError(httptest.NewRecorder(), req, log, services.ErrExpenseNotFound)
	assert.Equal(t, 0, logs.Len())

	respondError(httptest.NewRecorder(), req, log, errors.New("disk full"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "/api/expenses/1", entry.ContextMap()["path"])
}

func TestDecodeJSON(t *testing.T) {
	var dst models.LoginRequest

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com","password":"pw"}`))
	require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, "a@x.com", dst.Email)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com"}{"email":"b@x.com"}`))
	assert.ErrorIs(t, decodeJSON(httptest.NewRecorder(), req, &dst), errBadBody)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.ErrorIs(t, decodeJSON(httptest.NewRecorder(), req, &dst), errBadBody)

	big := `{"email":"` + strings.Repeat("a", maxJSONBody) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	assert.ErrorIs(t, decodeJSON(httptest.NewRecorder(), req, &dst), errBadBody)
}

func TestParseExpenseQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/expenses?page=2&size=25&sortBy=amount&sortDir=asc&category=Personal%20Care&startDate=2024-01-01&endDate=2024-01-31", nil)
	q, err := parseExpenseQuery(req)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, 25, q.Size)
	assert.Equal(t, "amount", q.SortBy)
	assert.Equal(t, "asc", q.SortDir)
	assert.Equal(t, models.CategoryPersonalCare, q.Category)
	require.NotNil(t, q.StartDate)
	require.NotNil(t, q.EndDate)
	assert.Equal(t, "2024-01-31", q.EndDate.Format(models.DateLayout))

	req = httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
	q, err = parseExpenseQuery(req)
	require.NoError(t, err)
	assert.Zero(t, q.Page)
	assert.Nil(t, q.StartDate)
	assert.Empty(t, q.Category)

	req = httptest.NewRequest(http.MethodGet, "/api/expenses?page=one&category=GROCERIES&endDate=31/01/2024", nil)
	_, err = parseExpenseQuery(req)
	var verrs validation.Errors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, "page")
	assert.Contains(t, verrs, "category")
	assert.Contains(t, verrs, "endDate")
}

type seekBuffer struct {
	*bytes.Reader
}

func (seekBuffer) Close() error { return nil }

func TestCheckImage(t *testing.T) {
	gif := seekBuffer{bytes.NewReader([]byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"))}
	require.NoError(t, checkImage(gif))
	pos, err := gif.Seek(0, 1)
	require.NoError(t, err)
	assert.Zero(t, pos)

	text := seekBuffer{bytes.NewReader([]byte("hello"))}
	var verrs validation.Errors
	require.ErrorAs(t, checkImage(text), &verrs)
	assert.Contains(t, verrs, "file")
}

func TestCategories(t *testing.T) {
	rec := httptest.NewRecorder()
	Categories(rec, httptest.NewRequest(http.MethodGet, "/api/categories", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var options []models.CategoryOption
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &options))
	require.Len(t, options, 9)
	assert.Equal(t, models.CategoryOption{Value: models.CategoryPersonalCare, Label: "Personal Care"}, options[7])
}

func TestHealthWithoutDatabase(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, nil, nil).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "down", body.Status)
	assert.Equal(t, "disabled", body.Components["database"])
}
