package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultVoice   = "Kore"
	maxErrorBody   = 512
)

// Config carries the backend credential and model selection.
// It is passed in at construction; nothing is read from the environment per call.
type Config struct {
	APIKey            string
	BaseURL           string
	TextModel         string
	SpeechModel       string
	ImageModel        string
	Voice             string
	Timeout           time.Duration
	RequestsPerMinute int
}

// Client talks to the generative backend's generateContent endpoint
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client. A missing API key is not an error here;
// each operation reports ErrConfiguration instead.
func New(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultVoice
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, 2),
		logger:     log.Default().WithPrefix("generate"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type contentRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []map[string]any  `json:"tools,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseMimeType   string         `json:"responseMimeType,omitempty"`
	ResponseSchema     map[string]any `json:"responseSchema,omitempty"`
	ResponseModalities []string       `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig  `json:"speechConfig,omitempty"`
	ImageConfig        *imageConfig   `json:"imageConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoice `json:"prebuiltVoiceConfig"`
}

type prebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio"`
}

type contentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// parts returns the parts of the first candidate
func (r *contentResponse) parts() []part {
	if len(r.Candidates) == 0 {
		return nil
	}
	return r.Candidates[0].Content.Parts
}

// text concatenates every text part of the first candidate
func (r *contentResponse) text() string {
	var sb strings.Builder
	for _, p := range r.parts() {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String())
}

func userText(prompt string) []content {
	return []content{{Role: "user", Parts: []part{{Text: prompt}}}}
}

// generateContent performs one request/response round trip.
// The credential check happens before anything touches the network.
func (c *Client) generateContent(ctx context.Context, op, model string, req contentRequest) (*contentResponse, error) {
	if c.cfg.APIKey == "" {
		return nil, Wrap(ErrConfiguration, op, "GEMINI_API_KEY not set", nil)
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, Wrap(ErrBackend, op, "rate limiter", err)
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, Wrap(ErrBackend, op, "marshal request", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, Wrap(ErrBackend, op, "build request", err)
	}
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, Wrap(ErrBackend, op, "request", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Wrap(ErrBackend, op, "read response", err)
	}
	c.logger.Debug("backend call", "op", op, "model", model, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(respBytes)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, Wrap(ErrBackend, op, "", &HTTPStatusError{StatusCode: resp.StatusCode, Body: body})
	}

	var parsed contentResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, Wrap(ErrBackend, op, "parse response", err)
	}
	if parsed.Error != nil {
		return nil, Wrap(ErrBackend, op, fmt.Sprintf("%s: %s", parsed.Error.Status, parsed.Error.Message), nil)
	}
	return &parsed, nil
}
