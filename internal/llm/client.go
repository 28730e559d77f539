// Package llm talks to an Ollama-compatible generate API and extracts
// structured analysis results from the model's free-form output.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zabbixstack/zabbix-rca/internal/utils"
)

// fallbackConfidence is used when the model's output cannot be parsed as a
// structured result.
const fallbackConfidence = 0.5

// Result is the model's answer for one analysis prompt. Degraded marks
// results where the structured fields could not be recovered and RCA holds
// the raw model text instead.
type Result struct {
	RCA             string
	Confidence      float64
	Recommendations []string
	Degraded        bool
}

// Client produces an analysis Result for a prompt. Implementations return
// *utils.ModelError for transport or server failures; unparseable output is
// not an error, it yields a degraded Result.
type Client interface {
	Analyze(ctx context.Context, prompt string) (*Result, error)
}

// Config holds the generate-endpoint settings.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaClient implements Client over the Ollama /api/generate endpoint.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewOllamaClient constructs a client for the given endpoint.
func NewOllamaClient(cfg Config, logger *slog.Logger) *OllamaClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// structuredResult is the JSON shape the prompt instructs the model to emit.
type structuredResult struct {
	RCA             string   `json:"rca"`
	Confidence      *float64 `json:"confidence"`
	Recommendations []string `json:"recommendations"`
}

// Analyze sends the prompt and parses the model's answer.
func (c *OllamaClient) Analyze(ctx context.Context, prompt string) (*Result, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return nil, &utils.ModelError{Msg: "encode generate request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, &utils.ModelError{Msg: "build generate request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &utils.ModelError{Msg: "generate request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &utils.ModelError{Msg: fmt.Sprintf("generate returned status %d", resp.StatusCode)}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &utils.ModelError{Msg: "read generate response", Err: err}
	}

	var gen generateResponse
	if err := json.Unmarshal(payload, &gen); err != nil {
		return nil, &utils.ModelError{Msg: "decode generate response", Err: err}
	}

	result := ParseResult(gen.Response)
	if result.Degraded {
		c.logger.Warn("model output not parseable, returning degraded result",
			slog.String("model", c.model))
	}
	return result, nil
}

// ParseResult extracts the structured analysis embedded in the model's text.
// The model often wraps its JSON answer in prose, so the parse takes the
// outermost brace-delimited span. Anything unparseable, or missing the rca
// or confidence fields, degrades to the raw text with fallback confidence.
func ParseResult(text string) *Result {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return degraded(text)
	}

	var parsed structuredResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return degraded(text)
	}
	if parsed.RCA == "" || parsed.Confidence == nil {
		return degraded(text)
	}

	recommendations := parsed.Recommendations
	if recommendations == nil {
		recommendations = []string{}
	}
	return &Result{
		RCA:             parsed.RCA,
		Confidence:      utils.Clamp(*parsed.Confidence, 0, 1),
		Recommendations: recommendations,
	}
}

func degraded(text string) *Result {
	return &Result{
		RCA:             strings.TrimSpace(text),
		Confidence:      fallbackConfidence,
		Recommendations: []string{},
		Degraded:        true,
	}
}
