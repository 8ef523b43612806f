package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		payload      any
		expectedBody string
	}{
		{"simple map", http.StatusOK, map[string]string{"message": "hello"}, `{"message":"hello"}`},
		{"struct", http.StatusCreated, struct{ ID string }{ID: "123"}, `{"ID":"123"}`},
		{"error response", http.StatusBadRequest, ErrorResponse{Error: "bad request", Code: "invalid_input"}, `{"error":"bad request","code":"invalid_input"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.status, tt.payload)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewValidationError("price", "must not be negative"))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "validation_error", response.Code)
	assert.Contains(t, response.Error, "price")
}

func TestWriteError_DomainErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"product not found", domainErrors.ErrProductNotFound, http.StatusNotFound, "not_found"},
		{"order not found", domainErrors.ErrOrderNotFound, http.StatusNotFound, "not_found"},
		{"record not found", domainErrors.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("lookup: %w", domainErrors.ErrOrderNotFound), http.StatusNotFound, "not_found"},
		{
			"not cancelable",
			domainErrors.NewDomainError("not_cancelable", "order is shipped", domainErrors.ErrNotCancelable),
			http.StatusConflict, "not_cancelable",
		},
		{
			"invalid transition",
			domainErrors.NewDomainError("invalid_transition", "cannot go back", domainErrors.ErrInvalidStateTransition),
			http.StatusBadRequest, "invalid_transition",
		},
		{"broker unavailable", domainErrors.NewBrokerError("publish", "product_events", errors.New("down")), http.StatusServiceUnavailable, "broker_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedCode, response.Code)
		})
	}
}

func TestWriteError_GenericDomainError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewDomainError("custom_error", "custom error message", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "custom_error", response.Code)
	assert.Equal(t, "custom error message", response.Error)
}

func TestWriteError_UnknownError_FallbackToInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, errors.New("unexpected error"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "internal_error", response.Code)
	assert.Equal(t, "internal server error", response.Error)
}

func TestWriteMutation_PublishHeader(t *testing.T) {
	w := httptest.NewRecorder()
	writeMutation(w, http.StatusCreated, map[string]string{"id": "1"}, nil)
	assert.Equal(t, "true", w.Header().Get(EventPublishedHeader))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	writeMutation(w, http.StatusNoContent, nil, errors.New("broker down"))
	assert.Equal(t, "false", w.Header().Get(EventPublishedHeader))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestDecodeAndValidate(t *testing.T) {
	type payload struct {
		Name  string `json:"name" validate:"required"`
		Price int    `json:"price" validate:"gte=0"`
	}

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"valid", `{"name":"Lamp","price":3}`, ""},
		{"missing required", `{"price":3}`, "Name"},
		{"failed constraint", `{"name":"Lamp","price":-1}`, "Price"},
		{"malformed json", `{"name":`, "body"},
		{"unknown field", `{"name":"Lamp","colour":"red"}`, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))

			var dst payload
			err := decodeAndValidate(req, &dst)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, "Lamp", dst.Name)
				return
			}

			var ve *domainErrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}
