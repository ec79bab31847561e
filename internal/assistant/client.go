package assistant

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
	"unicode/utf8"

	"github.com/locallink/locallink-backend/pkg/config"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
)

const (
	defaultTimeout         = 60 * time.Second
	readChunkSize          = 4096
	errorBodyReadLimit     = 1024
	defaultAudioMimeType   = "audio/webm"
	generationTemperature  = 0.7
	generationTopP         = 0.9
	generationTopK         = 40
	defaultFallbackMessage = "Namaste! Main thoda busy hoon, please ek baar phir try karein."
)

var errNotConfigured = errors.New("assistant endpoint not configured")

// ChunkFunc receives reply text as it streams in. Returning an error stops
// the stream.
type ChunkFunc func(chunk string) error

// Client talks to the text generation and transcription endpoints.
type Client struct {
	httpClient    *http.Client
	endpoint      string
	transcribeURL string
	apiKey        string
	fallback      string
	logg          *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the assistant client. Missing endpoints are allowed;
// replies then degrade to the fallback message and transcription to "".
func NewClient(cfg config.AssistantConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	fallback := strings.TrimSpace(cfg.FallbackResponse)
	if fallback == "" {
		fallback = defaultFallbackMessage
	}

	client := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		endpoint:      strings.TrimSpace(cfg.Endpoint),
		transcribeURL: strings.TrimSpace(cfg.TranscribeURL),
		apiKey:        strings.TrimSpace(cfg.APIKey),
		fallback:      fallback,
		logg:          logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"topP"`
	TopK        int     `json:"topK"`
}

type replyRequest struct {
	History           []Turn           `json:"history"`
	SystemInstruction string           `json:"systemInstruction"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

// Reply streams the assistant's next message for the transcript through
// onChunk and returns the full text. Upstream failures surface as the
// fallback message, never as an error; only onChunk errors and context
// cancellation are returned.
func (c *Client) Reply(ctx context.Context, history []Turn, onChunk ChunkFunc) (string, error) {
	if onChunk == nil {
		onChunk = func(string) error { return nil }
	}

	sequenced := Sequence(history)
	if len(sequenced) == 0 {
		return greeting, onChunk(greeting)
	}

	resp, err := c.openReplyStream(ctx, sequenced)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "assistant.reply.unavailable")
		return c.fallback, onChunk(c.fallback)
	}
	defer func() { _ = resp.Body.Close() }()

	var (
		full    strings.Builder
		pending []byte
		buf     = make([]byte, readChunkSize)
	)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := completePrefix(pending)
			if cut > 0 {
				chunk := string(pending[:cut])
				pending = append(pending[:0], pending[cut:]...)
				full.WriteString(chunk)
				if err := onChunk(chunk); err != nil {
					return full.String(), err
				}
			}
		}
		if readErr == nil {
			continue
		}
		if len(pending) > 0 {
			full.Write(pending)
			if err := onChunk(string(pending)); err != nil {
				return full.String(), err
			}
		}
		if errors.Is(readErr, io.EOF) {
			return full.String(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return full.String(), ctxErr
		}
		c.logg.Warn(c.logg.WithField(ctx, "error", readErr.Error()), "assistant.reply.stream_interrupted")
		full.WriteString(streamInterrupted)
		return full.String(), onChunk(streamInterrupted)
	}
}

func (c *Client) openReplyStream(ctx context.Context, history []Turn) (*http.Response, error) {
	if c.endpoint == "" {
		return nil, errNotConfigured
	}
	payload, err := json.Marshal(replyRequest{
		History:           history,
		SystemInstruction: SystemInstruction,
		GenerationConfig: generationConfig{
			Temperature: generationTemperature,
			TopP:        generationTopP,
			TopK:        generationTopK,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal reply request: %w", err)
	}

	req, err := c.newRequest(ctx, c.endpoint, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute reply request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return nil, fmt.Errorf("reply request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

type transcribeRequest struct {
	AudioBase64 string `json:"audioBase64"`
	MimeType    string `json:"mimeType"`
	Prompt      string `json:"prompt"`
}

// Transcribe turns base64 audio into text. Empty audio is a validation
// error; any upstream failure yields "".
func (c *Client) Transcribe(ctx context.Context, audioBase64, mimeType string) (string, error) {
	audio := strings.TrimSpace(audioBase64)
	if audio == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "no audio data")
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = defaultAudioMimeType
	}

	text, err := c.transcribe(ctx, transcribeRequest{
		AudioBase64: audio,
		MimeType:    mimeType,
		Prompt:      transcribePrompt,
	})
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "assistant.transcribe.failed")
		return "", nil
	}
	return text, nil
}

func (c *Client) transcribe(ctx context.Context, body transcribeRequest) (string, error) {
	if c.transcribeURL == "" {
		return "", errNotConfigured
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal transcribe request: %w", err)
	}
	req, err := c.newRequest(ctx, c.transcribeURL, payload)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute transcribe request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return "", fmt.Errorf("transcribe request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcribe response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

func (c *Client) newRequest(ctx context.Context, url string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// completePrefix returns how many leading bytes of b end on a rune boundary.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
