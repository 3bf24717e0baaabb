// Package api is the typed client for the video-generation backend's control
// API. The backend owns the actual pipeline (LLM, TTS, subtitling, video
// muxing); this client only saves settings, starts runs, and lists results.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client talks to one backend instance.
type Client struct {
	base   string
	http   *http.Client
	stream *http.Client // no overall timeout: run streams are long-lived
}

// NewClient creates a client for the backend at baseURL. A zero timeout
// falls back to the default request timeout; the run stream never times out
// and is bounded by its context instead.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: timeout},
		stream: &http.Client{},
	}
}

// BaseURL returns the backend base URL the client was created with.
func (c *Client) BaseURL() string { return c.base }

// OKResult is the generic response shape of the backend's POST endpoints.
type OKResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// OutputItem is one entry of the backend's output directory.
type OutputItem struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

// TTSProvider describes one speech provider's capability entry.
type TTSProvider struct {
	Name    string   `json:"name"`
	Premium int      `json:"premium"`
	Codes   []string `json:"codes"`
}

// TTSCapabilities is the backend's speech-provider discovery document.
type TTSCapabilities struct {
	DisplayNames map[string]string `json:"display_names"`
	GTTS         TTSProvider       `json:"gtts"`
	ElevenLabs   TTSProvider       `json:"elevenlabs"`
	Piper        TTSProvider       `json:"piper"`
}

// LLMCapabilities is the backend's generation-provider discovery document.
type LLMCapabilities struct {
	Providers []string `json:"providers"`
	OpenAI    struct {
		Free    []string `json:"free"`
		Premium []string `json:"premium"`
	} `json:"openai"`
	Ollama struct {
		Suggested []string `json:"suggested"`
	} `json:"ollama"`
}

// Edition reports whether the backend has premium features unlocked.
func (c *Client) Edition(ctx context.Context) (bool, error) {
	var out struct {
		PremiumUnlocked bool `json:"premium_unlocked"`
	}
	if err := c.getJSON(ctx, "/api/edition", &out); err != nil {
		return false, err
	}
	return out.PremiumUnlocked, nil
}

// Activate submits a premium activation code. A rejected code comes back as
// ok=false with the backend's error string, not as a transport error.
func (c *Client) Activate(ctx context.Context, code string) (OKResult, error) {
	return c.postJSON(ctx, "/api/activate", map[string]string{"code": code})
}

// TTSCapabilities fetches speech provider and language coverage.
func (c *Client) TTSCapabilities(ctx context.Context) (TTSCapabilities, error) {
	var out TTSCapabilities
	err := c.getJSON(ctx, "/api/tts-capabilities", &out)
	return out, err
}

// LLMCapabilities fetches generation provider and model coverage.
func (c *Client) LLMCapabilities(ctx context.Context) (LLMCapabilities, error) {
	var out LLMCapabilities
	err := c.getJSON(ctx, "/api/llm-capabilities", &out)
	return out, err
}

// TextFiles lists the backend's input files for a mode/level pair.
func (c *Client) TextFiles(ctx context.Context, mode, level string) ([]string, error) {
	var out struct {
		Files []string `json:"files"`
	}
	q := url.Values{"mode": {mode}, "level": {level}}
	if err := c.getJSON(ctx, "/api/text-files?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// SaveSettings pushes the run settings document. Warnings carry the backend's
// edition-gating downgrades (e.g. premium TTS requested on a free edition).
func (c *Client) SaveSettings(ctx context.Context, payload any) (OKResult, error) {
	return c.postJSON(ctx, "/api/save", payload)
}

// ClearCache empties the backend's TTS/image/video caches.
func (c *Client) ClearCache(ctx context.Context) (OKResult, error) {
	return c.postJSON(ctx, "/api/clear-cache", struct{}{})
}

// ClearOutput removes every produced artifact.
func (c *Client) ClearOutput(ctx context.Context) (OKResult, error) {
	return c.postJSON(ctx, "/api/clear-output", struct{}{})
}

// ListOutputs returns the backend's output directory entries, sorted by name.
func (c *Client) ListOutputs(ctx context.Context) ([]OutputItem, error) {
	var out struct {
		Items []OutputItem `json:"items"`
	}
	if err := c.getJSON(ctx, "/api/list-outputs", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// RunOnce fetches the complete run log as newline-delimited plain text. It is
// the one-shot fallback used when the event stream drops mid-run.
func (c *Client) RunOnce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/run-once", nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch run log: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch run log: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read run log: %w", err)
	}
	return string(body), nil
}

// FetchOutput streams one produced artifact into w.
func (c *Client) FetchOutput(ctx context.Context, name string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/out/"+url.PathEscape(name), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("fetch output %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch output %s: unexpected status %s", name, resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download output %s: %w", name, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return nil
}

// postJSON sends a JSON POST and decodes the generic ok/error/warnings shape.
// A body that is not valid JSON is reported as ok=false "Bad JSON" rather
// than an error: the run must go on, and the operator sees a toast either way.
func (c *Client) postJSON(ctx context.Context, path string, payload any) (OKResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OKResult{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return OKResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return OKResult{}, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return OKResult{}, fmt.Errorf("POST %s: read response: %w", path, err)
	}

	var out OKResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return OKResult{OK: false, Error: "Bad JSON"}, nil
	}
	return out, nil
}
