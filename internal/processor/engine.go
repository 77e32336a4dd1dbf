package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Engine es el motor de generación de texto que este worker consume.
type Engine interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPEngine llama a un motor externo por HTTP con timeout acotado.
type HTTPEngine struct {
	URL     string
	Timeout time.Duration
	HTTP    *http.Client
}

func NewHTTPEngine(url string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEngine{
		URL:     url,
		Timeout: timeout,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEngine) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{"prompt": prompt, "stream": false})
	if err != nil {
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}
