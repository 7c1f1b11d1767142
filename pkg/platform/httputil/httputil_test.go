package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "arcpay/pkg/domain-errors"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"ok": "yes"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "yes", body["ok"])
}

func TestWriteErrorIncludesDescription(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, dErrors.New(dErrors.CodeValidation, "amount must be positive"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation_error", body["error"])
	assert.Equal(t, "amount must be positive", body["error_description"])
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("dial tcp 10.0.0.1: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body["error"])
	assert.NotContains(t, body, "error_description")
}

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code dErrors.Code
		want int
	}{
		{dErrors.CodeValidation, http.StatusBadRequest},
		{dErrors.CodeInvalidRecipient, http.StatusBadRequest},
		{dErrors.CodeNotFound, http.StatusNotFound},
		{dErrors.CodeConflict, http.StatusConflict},
		{dErrors.CodePolicyDenied, http.StatusUnprocessableEntity},
		{dErrors.CodeCollaboratorUnavailable, http.StatusServiceUnavailable},
		{dErrors.CodeStoreUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteError(rec, dErrors.New(tt.code, "x"))
		assert.Equal(t, tt.want, rec.Code, "code %s", tt.code)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"known":1,"mystery":2}`))
	var dst struct {
		Known int `json:"known"`
	}
	err := Decode(req, &dst)
	assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
}

func TestDecodeValidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"known":7}`))
	var dst struct {
		Known int `json:"known"`
	}
	require.NoError(t, Decode(req, &dst))
	assert.Equal(t, 7, dst.Known)
}
