package shortlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the full ad-provider surface the core depends on. Every
// provider-specific response shape stays behind this boundary.
type Client interface {
	Shorten(ctx context.Context, target string) (string, error)
}

var ErrNotConfigured = errors.New("shortlink provider not configured")

// HTTPClient talks to shortxlinks-style providers:
// GET {base}/api?api={key}&url={target}.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func New(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// shortenResponse covers the shapes observed across provider deployments.
// Data is kept raw because some providers put an object there instead of
// the shortened URL.
type shortenResponse struct {
	Status       string          `json:"status"`
	ShortenedURL string          `json:"shortenedUrl"`
	Short        string          `json:"short"`
	Data         json.RawMessage `json:"data"`
	Message      string          `json:"message"`
}

func (c *HTTPClient) Shorten(ctx context.Context, target string) (string, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return "", ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/api?%s", c.baseURL, url.Values{
		"api": {c.apiKey},
		"url": {target},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("shorten request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("shorten response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("shorten: provider returned %d", resp.StatusCode)
	}

	var parsed shortenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("shorten: malformed provider response: %w", err)
	}
	if !strings.EqualFold(parsed.Status, "success") {
		return "", fmt.Errorf("shorten: provider status %q: %s", parsed.Status, parsed.Message)
	}

	short := firstUsableURL(parsed)
	if short == "" {
		return "", errors.New("shorten: no usable url in provider response")
	}
	return short, nil
}

func firstUsableURL(r shortenResponse) string {
	for _, candidate := range []string{r.ShortenedURL, r.Short, dataString(r.Data)} {
		if strings.HasPrefix(candidate, "http://") || strings.HasPrefix(candidate, "https://") {
			return candidate
		}
	}
	return ""
}

func dataString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}
