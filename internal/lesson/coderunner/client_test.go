package coderunner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer svc", r.Header.Get("Authorization"))

		var req executeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "print(42)", req.Code)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{"output": "42\n", "error": "", "exitCode": 0})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, "svc", time.Second).Execute(context.Background(), "print(42)")
	require.NoError(t, err)
	assert.Equal(t, "42\n", res.Output)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecute_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"sandbox down"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Execute(context.Background(), "print(1)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sandbox down")
}

func TestExecute_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL, "", 5*time.Second).Execute(ctx, "while True: pass")
	assert.Error(t, err)
}
