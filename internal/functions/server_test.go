package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/lesson/engine"
	"github.com/codeowl/platform/pkg/config"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, code string) (*engine.ExecutionResult, error) {
	args := m.Called(ctx, code)
	if r := args.Get(0); r != nil {
		return r.(*engine.ExecutionResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func testConfig() config.FunctionsConfig {
	return config.FunctionsConfig{
		ServiceKey:     "service-key",
		CronSecret:     "cron-secret",
		ExecTimeout:    time.Second,
		ForwardTimeout: time.Second,
	}
}

func call(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("b", func(context.Context) (interface{}, error) { return "B", nil })
	r.Register("a", func(context.Context) (interface{}, error) { return "A", nil })

	out, err := r.Call(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "A", out)
	assert.Equal(t, []string{"a", "b"}, r.Names())

	_, err = r.Call(context.Background(), "missing")
	assert.Error(t, err)
}

func TestProcessWeeklyLeagues(t *testing.T) {
	tests := []struct {
		name       string
		proc       Procedure
		headers    map[string]string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			proc:       func(context.Context) (interface{}, error) { return map[string]int{"promoted": 2}, nil },
			headers:    bearer("service-key"),
			wantStatus: http.StatusOK,
			wantBody:   `"success":true`,
		},
		{
			name:       "wrong key",
			proc:       func(context.Context) (interface{}, error) { return nil, nil },
			headers:    bearer("nope"),
			wantStatus: http.StatusUnauthorized,
			wantBody:   `"error"`,
		},
		{
			name:       "overlapping run",
			proc:       func(context.Context) (interface{}, error) { return nil, errors.Conflict("already running") },
			headers:    bearer("service-key"),
			wantStatus: http.StatusConflict,
			wantBody:   "already running",
		},
		{
			name:       "failure",
			proc:       func(context.Context) (interface{}, error) { return nil, fmt.Errorf("db down") },
			headers:    bearer("service-key"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "db down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			reg.Register(ProcessWeeklyLeagues, tt.proc)
			h := NewServer(testConfig(), "", reg, nil).Router()

			w := call(h, http.MethodPost, "/process-weekly-leagues", "", tt.headers)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestWeeklyLeagueTrigger(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"busy"}`))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.ProcessLeaguesURL = upstream.URL
	h := NewServer(cfg, "", NewRegistry(), nil).Router()

	w := call(h, http.MethodGet, "/weekly-league-trigger", "", bearer("cron-secret"))
	assert.Equal(t, http.StatusConflict, w.Code, "upstream status is relayed")
	assert.JSONEq(t, `{"error":"busy"}`, w.Body.String())
	assert.Equal(t, "Bearer service-key", gotAuth)

	w = call(h, http.MethodPost, "/weekly-league-trigger", "", bearer("wrong"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(h, http.MethodDelete, "/weekly-league-trigger", "", bearer("cron-secret"))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestWeeklyLeagueTrigger_TransportFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	cfg := testConfig()
	cfg.CronSecret = ""
	cfg.ProcessLeaguesURL = url
	h := NewServer(cfg, "", NewRegistry(), nil).Router()

	w := call(h, http.MethodPost, "/weekly-league-trigger", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
}

func TestExecuteCode(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, "print(42)").
		Return(&engine.ExecutionResult{Output: "42\n", ExitCode: 0}, nil).Once()
	exec.On("Execute", mock.Anything, "boom()").
		Return(nil, fmt.Errorf("piston returned 502")).Once()
	h := NewServer(testConfig(), "", NewRegistry(), exec).Router()

	w := call(h, http.MethodPost, "/execute-code", `{"code":"print(42)"}`, bearer("service-key"))
	require.Equal(t, http.StatusOK, w.Code)
	var result engine.ExecutionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "42\n", result.Output)
	assert.Contains(t, w.Body.String(), `"exitCode":0`)

	w = call(h, http.MethodPost, "/execute-code", `{}`, bearer("service-key"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(h, http.MethodPost, "/execute-code", `{"code":"boom()"}`, bearer("service-key"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "502")

	exec.AssertExpectations(t)
}

func TestVerifyAdmin(t *testing.T) {
	h := NewServer(testConfig(), "root", NewRegistry(), nil).Router()

	w := call(h, http.MethodPost, "/verify-admin", `{"secret":"root"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":true}`, w.Body.String())

	w = call(h, http.MethodPost, "/verify-admin", `{"secret":"guess"}`, nil)
	assert.JSONEq(t, `{"valid":false}`, w.Body.String())

	w = call(h, http.MethodPost, "/verify-admin", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	unset := NewServer(testConfig(), "", NewRegistry(), nil).Router()
	w = call(unset, http.MethodPost, "/verify-admin", `{"secret":"root"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPistonClient(t *testing.T) {
	var got pistonRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		switch got.Files[0].Content {
		case "compile error":
			_, _ = w.Write([]byte(`{"compile":{"stderr":"syntax","code":1},"run":{}}`))
		case "killed":
			_, _ = w.Write([]byte(`{"run":{"stdout":"","stderr":"","code":null,"signal":"SIGKILL"}}`))
		case "bad":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"runtime unknown"}`))
		default:
			_, _ = w.Write([]byte(`{"run":{"stdout":"hi\n","stderr":"","output":"hi\n","code":0}}`))
		}
	}))
	defer srv.Close()

	client := NewPistonClient(srv.URL, "python", "3.10.0", time.Second)
	ctx := context.Background()

	res, err := client.Execute(ctx, "print('hi')")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", res.Output)
	assert.Equal(t, "python", got.Language)
	assert.Equal(t, "3.10.0", got.Version)

	res, err = client.Execute(ctx, "compile error")
	require.NoError(t, err)
	assert.Equal(t, "syntax", res.Error)
	assert.Equal(t, 1, res.ExitCode)

	res, err = client.Execute(ctx, "killed")
	require.NoError(t, err)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, res.Error, "SIGKILL")

	_, err = client.Execute(ctx, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime unknown")
}
