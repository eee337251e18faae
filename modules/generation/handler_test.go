package generation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data"`
	ErrorCode    string          `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage"`
}

func newRouter(f *fixture) *mux.Router {
	r := mux.NewRouter()
	NewHandler(f.service, zap.NewNop()).RegisterRoutes(r)
	return r
}

func call(t *testing.T, r http.Handler, method, path, userID, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHandlerRequiresUser(t *testing.T) {
	f := newFixture(t)
	code, env := call(t, newRouter(f), http.MethodGet, "/api/generations", "", "")
	require.Equal(t, http.StatusUnauthorized, code)
	require.False(t, env.Success)
	require.Equal(t, "UNAUTHORIZED", env.ErrorCode)
}

func TestHandlerCreateAndQueryBatch(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	code, env := call(t, r, http.MethodPost, "/api/generations", owner,
		`{"brandId":"brand-1","productId":"product-1","conceptId":"concept-1"}`)
	require.Equal(t, http.StatusAccepted, code)
	require.True(t, env.Success)

	var accepted Accepted
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	require.Len(t, accepted.VariationIDs, 6)

	code, env = call(t, r, http.MethodGet, "/api/generations/batch/"+accepted.BatchID, owner, "")
	require.Equal(t, http.StatusOK, code)
	var batch BatchStatus
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	require.Equal(t, StatusProcessing, batch.Status)
	require.Equal(t, 6, batch.Total)

	code, env = call(t, r, http.MethodGet, "/api/generations/"+accepted.VariationIDs[0]+"/results", owner, "")
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "GENERATION_NOT_COMPLETED", env.ErrorCode)

	code, env = call(t, r, http.MethodPost, "/api/generations/batch/"+accepted.BatchID+"/cancel", owner, "")
	require.Equal(t, http.StatusOK, code)
	var cancelled struct {
		CancelledCount int `json:"cancelledCount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cancelled))
	require.Equal(t, 6, cancelled.CancelledCount)
}

func TestHandlerMapsDomainErrors(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	code, env := call(t, r, http.MethodPost, "/api/generations", owner,
		`{"brandId":"brand-2","productId":"product-1","conceptId":"concept-1"}`)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "BRAND_NOT_FOUND", env.ErrorCode)

	code, env = call(t, r, http.MethodPost, "/api/generations", owner, `{not json`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "INVALID_REQUEST", env.ErrorCode)

	code, env = call(t, r, http.MethodGet, "/api/generations/unknown/status", owner, "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "GENERATION_NOT_FOUND", env.ErrorCode)
}

func TestHandlerUpdateFixAndList(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)
	original := f.completedVariation(t)

	code, env := call(t, r, http.MethodPatch, "/api/generations/"+original.ID, owner, `{"isFavorite":true}`)
	require.Equal(t, http.StatusOK, code)
	var view StatusView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.True(t, view.IsFavorite)

	code, _ = call(t, r, http.MethodPost, "/api/generations/"+original.ID+"/fix", owner, `{"description":"blurry logo"}`)
	require.Equal(t, http.StatusAccepted, code)

	code, _ = call(t, r, http.MethodPost, "/api/generations/"+original.ID+"/regenerate", owner, "")
	require.Equal(t, http.StatusAccepted, code)

	code, env = call(t, r, http.MethodGet, "/api/generations?favorite=true", owner, "")
	require.Equal(t, http.StatusOK, code)
	var list ListResult
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.EqualValues(t, 1, list.Total)
	require.Equal(t, original.ID, list.Items[0].ID)
}
