package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/address-cli/internal/canonical"
	"github.com/sells-group/address-cli/internal/resolver"
	"github.com/sells-group/address-cli/internal/store"
)

func newTestEnv(t *testing.T) *appEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(t.Context()))

	return &appEnv{
		Store: st,
		Canon: canonical.New(st, nil, resolver.Options{}),
	}
}

func TestServeMux_Health(t *testing.T) {
	mux := newServeMux(newTestEnv(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestServeMux_Resolve_Components(t *testing.T) {
	mux := newServeMux(newTestEnv(t))

	body := `{
		"raw": "10808 S River Front Pkwy #3066, South Jordan, UT",
		"country": "United States", "country_code": "US",
		"state": "Utah", "state_code": "UT",
		"locality": "South Jordan", "postal_code": "84095",
		"street_number": "10808", "route": "S River Front Pkwy",
		"subpremise": "3066"
	}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/resolve", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "South Jordan", resp["locality"])
	assert.Equal(t, "UT", resp["state_code"])
}

func TestServeMux_Resolve_BadBody(t *testing.T) {
	mux := newServeMux(newTestEnv(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/resolve", strings.NewReader("not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeMux_Resolve_InvalidLatitude(t *testing.T) {
	mux := newServeMux(newTestEnv(t))

	body := `{"raw": "somewhere", "latitude": "garbage"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/resolve", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "latitude")
}

func TestServeMux_Resolve_EmptyRaw(t *testing.T) {
	mux := newServeMux(newTestEnv(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/resolve", strings.NewReader(`{"raw": ""}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeMux_GetAddress(t *testing.T) {
	env := newTestEnv(t)
	mux := newServeMux(env)

	addr, err := env.Canon.Normalize(t.Context(), "1 Somewhere Street, Melbourne")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/addresses/%d", addr.ID), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1 Somewhere Street, Melbourne")
}

func TestServeMux_GetAddress_NotFound(t *testing.T) {
	mux := newServeMux(newTestEnv(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/addresses/9999", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeMux_GetAddress_BadID(t *testing.T) {
	mux := newServeMux(newTestEnv(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/addresses/abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeMux_ListAddresses(t *testing.T) {
	env := newTestEnv(t)
	mux := newServeMux(env)

	for _, raw := range []string{"first address", "second address"} {
		_, err := env.Canon.Normalize(t.Context(), raw)
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/addresses?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "second address", resp[0]["raw"])
}

func TestClassifyError(t *testing.T) {
	status, _ := classifyError(&canonical.InvalidValueError{Value: 3.14})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = classifyError(&canonical.InvalidNumericError{Field: "latitude", Value: "x"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, msg := classifyError(&resolver.PartialMatchError{Raw: "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, msg, "partial match")

	status, msg = classifyError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", msg)
}
