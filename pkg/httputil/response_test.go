package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "world", body["hello"])
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantError  string
	}{
		{
			name:       "bad request",
			write:      func(w http.ResponseWriter) { WriteBadRequest(w, "invalid input") },
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid input",
		},
		{
			name:       "forbidden",
			write:      func(w http.ResponseWriter) { WriteForbidden(w, "not allowed") },
			wantStatus: http.StatusForbidden,
			wantError:  "not allowed",
		},
		{
			name:       "not found",
			write:      func(w http.ResponseWriter) { WriteNotFound(w, "resource not found") },
			wantStatus: http.StatusNotFound,
			wantError:  "resource not found",
		},
		{
			name:       "conflict",
			write:      func(w http.ResponseWriter) { WriteConflict(w, "already exists") },
			wantStatus: http.StatusConflict,
			wantError:  "already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

func TestParseJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"villa"}`))
		var p payload
		require.NoError(t, ParseJSON(r, &p))
		assert.Equal(t, "villa", p.Name)
	})

	t.Run("malformed body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
		var p payload
		assert.Error(t, ParseJSON(r, &p))
	})
}

func TestParsePathInt64(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/invoices/42", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "42"})

	id, err := ParsePathInt64(r, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = ParsePathInt64(r, "missing")
	assert.Error(t, err)
}

func TestParseQueryParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/tenants?page=3&active=true&sort=name", nil)

	page, err := ParseQueryInt(r, "page", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, page)

	limit, err := ParseQueryInt(r, "limit", 25)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	active, err := ParseQueryBool(r, "active", false)
	require.NoError(t, err)
	assert.True(t, active)

	assert.Equal(t, "name", ParseQueryString(r, "sort", "id"))
	assert.Equal(t, "id", ParseQueryString(r, "order", "id"))
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates one when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("propagates upstream header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "upstream-id")
		handler.ServeHTTP(rec, r)
		assert.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
	})
}
