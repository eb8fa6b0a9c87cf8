package piston

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"insight-qa-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pistonServer(t *testing.T, handler func(req executeRequest) (int, string)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handler(req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/runtimes", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"language":"python","version":"3.10.0"},{"language":"python","version":"3.12.0"},{"language":"go","version":"1.16.2"}]`))
	})
	return httptest.NewServer(mux)
}

func TestExecuteSuccess(t *testing.T) {
	srv := pistonServer(t, func(req executeRequest) (int, string) {
		assert.Equal(t, "python", req.Language)
		assert.Equal(t, "3.10.0", req.Version)
		require.Len(t, req.Files, 1)
		assert.Equal(t, "main.py", req.Files[0].Name)
		assert.Equal(t, "print(1)\nprint(2)\n", req.Files[0].Content)
		assert.Equal(t, 10000, req.CompileTimeout)
		assert.Equal(t, -1, req.RunMemoryLimit)
		return http.StatusOK, `{"run":{"stdout":"1\n2\n","stderr":"","code":0}}`
	})
	defer srv.Close()

	res := NewClient(config.PistonConfig{BaseURL: srv.URL}).Execute(context.Background(), "print(1)\r\nprint(2)\r", "python")
	assert.True(t, res.Success)
	assert.Equal(t, "1\n2", res.Output)
	assert.Empty(t, res.Error)
}

func TestExecuteRuntimeAndCompileErrors(t *testing.T) {
	srv := pistonServer(t, func(req executeRequest) (int, string) {
		if req.Language == "go" {
			return http.StatusOK, `{"compile":{"stdout":"","stderr":"","code":2},"run":{"stdout":"","code":0}}`
		}
		return http.StatusOK, `{"run":{"stdout":"partial","stderr":"Traceback: boom\n","code":1}}`
	})
	defer srv.Close()
	c := NewClient(config.PistonConfig{BaseURL: srv.URL})

	res := c.Execute(context.Background(), "raise", "python")
	assert.False(t, res.Success)
	assert.Equal(t, "Traceback: boom", res.Error)
	assert.Equal(t, 1, res.ReturnCode)

	res = c.Execute(context.Background(), "package main", "go")
	assert.False(t, res.Success)
	assert.Equal(t, "Compilation failed", res.Error)
	assert.Equal(t, 2, res.ReturnCode)
}

func TestExecuteAPIError(t *testing.T) {
	srv := pistonServer(t, func(executeRequest) (int, string) { return http.StatusTooManyRequests, "" })
	defer srv.Close()

	res := NewClient(config.PistonConfig{BaseURL: srv.URL}).Execute(context.Background(), "x", "ruby")
	assert.False(t, res.Success)
	assert.Equal(t, "Piston API error: 429", res.Error)
}

func TestExecuteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(config.PistonConfig{BaseURL: srv.URL})
	c.http.Timeout = 20 * time.Millisecond
	res := c.Execute(context.Background(), "x", "python")
	assert.Contains(t, res.Error, "Execution timed out")
}

func TestExecuteUnsupported(t *testing.T) {
	res := NewClient(config.PistonConfig{BaseURL: "http://127.0.0.1:1"}).Execute(context.Background(), "x", "cobol")
	assert.Equal(t, "Language cobol not supported by Piston", res.Error)
	assert.False(t, Supported("cobol"))
	assert.Equal(t, "kt", Extension("kotlin"))
	assert.Equal(t, "txt", Extension("cobol"))
}

func TestRuntimes(t *testing.T) {
	srv := pistonServer(t, nil)
	defer srv.Close()
	c := NewClient(config.PistonConfig{BaseURL: srv.URL})

	assert.True(t, c.Available(context.Background()))
	rts, err := c.Runtimes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"3.10.0", "3.12.0"}, rts["python"])
	assert.Len(t, rts, 2)

	assert.False(t, NewClient(config.PistonConfig{BaseURL: "http://127.0.0.1:1"}).Available(context.Background()))
}
