package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeowl/platform/internal/lesson/engine"
)

type pistonFile struct {
	Content string `json:"content"`
}

type pistonRequest struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Files    []pistonFile `json:"files"`
}

type pistonStage struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Output string `json:"output"`
	Code   *int   `json:"code"`
	Signal string `json:"signal"`
}

type pistonResponse struct {
	Run     pistonStage  `json:"run"`
	Compile *pistonStage `json:"compile,omitempty"`
	Message string       `json:"message"`
}

// PistonClient runs code on a Piston-compatible execution API with a fixed
// language and version.
type PistonClient struct {
	url      string
	language string
	version  string
	http     *http.Client
}

func NewPistonClient(url, language, version string, timeout time.Duration) *PistonClient {
	return &PistonClient{
		url:      url,
		language: language,
		version:  version,
		http:     &http.Client{Timeout: timeout},
	}
}

// Execute submits code as a single file and maps the run stage onto an
// ExecutionResult. A failed compile stage is reported as the error.
func (p *PistonClient) Execute(ctx context.Context, code string) (*engine.ExecutionResult, error) {
	payload, err := json.Marshal(pistonRequest{
		Language: p.language,
		Version:  p.version,
		Files:    []pistonFile{{Content: code}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build piston request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call piston: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read piston response: %w", err)
	}

	var out pistonResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode piston response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Message == "" {
			out.Message = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("piston returned %d: %s", resp.StatusCode, out.Message)
	}

	if out.Compile != nil && out.Compile.Code != nil && *out.Compile.Code != 0 {
		return &engine.ExecutionResult{
			Error:    out.Compile.Stderr,
			ExitCode: *out.Compile.Code,
		}, nil
	}

	result := &engine.ExecutionResult{
		Output: out.Run.Stdout,
		Error:  out.Run.Stderr,
	}
	if out.Run.Code != nil {
		result.ExitCode = *out.Run.Code
	} else if out.Run.Signal != "" {
		// killed by the sandbox, usually the time limit
		result.ExitCode = -1
		if result.Error == "" {
			result.Error = "terminated by " + out.Run.Signal
		}
	}
	return result, nil
}
