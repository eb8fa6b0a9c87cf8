// Package piston 封装 Piston 沙箱执行服务，所有语言（包括 Python）均在远端执行。
package piston

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"insight-qa-go/internal/config"
	"insight-qa-go/pkg/log"
	"insight-qa-go/pkg/metrics"
)

// runtimes 把语言名映射为 Piston 运行时名、首选版本与源文件后缀。
var runtimes = map[string]struct {
	runtime string
	version string
	ext     string
}{
	"python":     {"python", "3.10.0", "py"},
	"javascript": {"javascript", "18.15.0", "js"},
	"java":       {"java", "15.0.2", "java"},
	"cpp":        {"cpp", "10.2.0", "cpp"},
	"c":          {"c", "*", "c"},
	"csharp":     {"csharp", "6.12.0", "cs"},
	"go":         {"go", "1.16.2", "go"},
	"rust":       {"rust", "*", "rs"},
	"ruby":       {"ruby", "*", "rb"},
	"php":        {"php", "*", "php"},
	"swift":      {"swift", "*", "swift"},
	"kotlin":     {"kotlin", "*", "kt"},
	"typescript": {"typescript", "*", "ts"},
}

// Supported 报告语言能否交给 Piston 执行。
func Supported(language string) bool {
	_, ok := runtimes[language]
	return ok
}

// Extension 返回语言对应的源文件后缀，未知语言返回 txt。
func Extension(language string) string {
	if r, ok := runtimes[language]; ok {
		return r.ext
	}
	return "txt"
}

// Result 是一次执行的结果。
type Result struct {
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	Error      string `json:"error"`
	ReturnCode int    `json:"returncode"`
}

// Executor 执行一段代码。
type Executor interface {
	Execute(ctx context.Context, code, language string) Result
	Available(ctx context.Context) bool
}

// Client 是 Piston HTTP API 的客户端。
type Client struct {
	baseURL        string
	timeout        time.Duration
	compileTimeout int
	runTimeout     int
	http           *http.Client
}

// NewClient 创建 Piston 客户端。
func NewClient(cfg config.PistonConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		timeout:        timeout,
		compileTimeout: cfg.CompileTimeoutMs,
		runTimeout:     cfg.RunTimeoutMs,
		http:           &http.Client{Timeout: timeout},
	}
	if c.compileTimeout <= 0 {
		c.compileTimeout = 10000
	}
	if c.runTimeout <= 0 {
		c.runTimeout = 5000
	}
	return c
}

type file struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type executeRequest struct {
	Language           string   `json:"language"`
	Version            string   `json:"version"`
	Files              []file   `json:"files"`
	Stdin              string   `json:"stdin"`
	Args               []string `json:"args"`
	CompileTimeout     int      `json:"compile_timeout"`
	RunTimeout         int      `json:"run_timeout"`
	CompileMemoryLimit int      `json:"compile_memory_limit"`
	RunMemoryLimit     int      `json:"run_memory_limit"`
}

type stage struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   *int   `json:"code"`
}

type executeResponse struct {
	Compile *stage `json:"compile"`
	Run     *stage `json:"run"`
}

// Execute 在 Piston 中运行代码。失败不会返回 error，而是体现在 Result 中。
func (c *Client) Execute(ctx context.Context, code, language string) Result {
	rt, ok := runtimes[language]
	if !ok {
		return Result{Error: fmt.Sprintf("Language %s not supported by Piston", language), ReturnCode: -1}
	}
	clean := strings.ReplaceAll(strings.ReplaceAll(code, "\r\n", "\n"), "\r", "\n")
	payload := executeRequest{
		Language:           rt.runtime,
		Version:            rt.version,
		Files:              []file{{Name: "main." + rt.ext, Content: clean}},
		Args:               []string{},
		CompileTimeout:     c.compileTimeout,
		RunTimeout:         c.runTimeout,
		CompileMemoryLimit: -1,
		RunMemoryLimit:     -1,
	}

	start := time.Now()
	res, err := c.execute(ctx, payload)
	metrics.ExternalRequestDuration.WithLabelValues("piston").Observe(time.Since(start).Seconds())
	metrics.ExternalRequestsTotal.WithLabelValues("piston", metrics.Status(err)).Inc()
	if err != nil {
		log.Warnf("[Piston] 执行失败, Language: %s, Error: %v", language, err)
		var netErr interface{ Timeout() bool }
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return Result{Error: fmt.Sprintf("Execution timed out (%d seconds)", int(c.timeout.Seconds())), ReturnCode: -1}
		}
		return Result{Error: err.Error(), ReturnCode: -1}
	}
	return res
}

func (c *Client) execute(ctx context.Context, payload executeRequest) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Result{}, fmt.Errorf("Piston API error: %d", resp.StatusCode)
	}

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode piston response: %w", err)
	}

	if out.Compile != nil && out.Compile.Code != nil && *out.Compile.Code != 0 {
		msg := out.Compile.Stderr
		if msg == "" {
			msg = "Compilation failed"
		}
		return Result{Output: out.Compile.Stdout, Error: msg, ReturnCode: *out.Compile.Code}, nil
	}

	var run stage
	if out.Run != nil {
		run = *out.Run
	}
	exit := 0
	if run.Code != nil {
		exit = *run.Code
	}
	res := Result{
		Success:    exit == 0,
		Output:     strings.TrimSpace(run.Stdout),
		ReturnCode: exit,
	}
	if exit != 0 {
		res.Error = strings.TrimSpace(run.Stderr)
	}
	return res, nil
}

// Available 检查 Piston 服务是否可达。
func (c *Client) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/runtimes", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Runtimes 返回 Piston 上可用的语言及其版本。
func (c *Client) Runtimes(ctx context.Context) (map[string][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/runtimes", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Piston API error: %d", resp.StatusCode)
	}
	var list []struct {
		Language string `json:"language"`
		Version  string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, r := range list {
		if r.Language != "" && r.Version != "" {
			out[r.Language] = append(out[r.Language], r.Version)
		}
	}
	return out, nil
}

var _ Executor = (*Client)(nil)
