package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medsupply/medsupply-backend/pkg/httputil"
	"github.com/medsupply/medsupply-backend/pkg/testutil"
	"github.com/stretchr/testify/require"
)

// envelope mirrors httputil.Response with the payload left raw
type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *httputil.ErrorBody `json:"error"`
	Meta    *httputil.Meta      `json:"meta"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	testutil.ParseJSONBody(t, rr, &env)
	return env
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) envelope {
	t.Helper()
	env := decode(t, rr)
	require.NoError(t, json.Unmarshal(env.Data, target), "data: %s", env.Data)
	return env
}

// uploadRequest builds a catalog upload. An empty fileName leaves out the file part.
func uploadRequest(t *testing.T, fields map[string]string, fileName, content string) *http.Request {
	t.Helper()
	var upload *testutil.Upload
	if fileName != "" {
		upload = &testutil.Upload{Field: "file", FileName: fileName, Content: []byte(content)}
	}
	return testutil.NewMultipartRequest(t, "/api/v1/import/sessions", fields, upload)
}

// asUser injects an authenticated operator the way the JWT middleware does
func asUser(userID, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := httputil.WithUserContext(r.Context(), userID, userID+"@example.com", role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
