package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/callforge/voicecall/pkg/voice"
)

// Credentials are the per-session secrets and endpoints handed out by the
// credentials service. They are fetched once per call, at dial time, and
// never cached across sessions.
type Credentials struct {
	VoiceID          string `json:"voice_id"`
	SynthesisURL     string `json:"synthesis_url"`
	TranscriptionURL string `json:"transcription_url"`
	Token            string `json:"token"`
}

func (c *Credentials) validate() error {
	if c.SynthesisURL == "" {
		return fmt.Errorf("credentials missing synthesis_url")
	}
	if c.TranscriptionURL == "" {
		return fmt.Errorf("credentials missing transcription_url")
	}
	if c.Token == "" {
		return fmt.Errorf("credentials missing token")
	}
	return nil
}

// CredentialsProvider fetches session credentials.
type CredentialsProvider interface {
	Fetch(ctx context.Context) (*Credentials, error)
}

// HTTPCredentialsProvider fetches credentials over HTTP with bounded
// exponential backoff. Auth rejections are not retried.
type HTTPCredentialsProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client

	// MaxRetries bounds the retry loop. Default: 3.
	MaxRetries uint64
	// BaseBackoff is the initial backoff interval. Default: 500ms.
	BaseBackoff time.Duration
}

// NewHTTPCredentialsProvider creates a provider against the given endpoint.
func NewHTTPCredentialsProvider(endpoint, apiKey string) *HTTPCredentialsProvider {
	return &HTTPCredentialsProvider{
		endpoint:    endpoint,
		apiKey:      apiKey,
		client:      &http.Client{Timeout: 10 * time.Second},
		MaxRetries:  3,
		BaseBackoff: 500 * time.Millisecond,
	}
}

// Fetch requests fresh credentials, retrying transient failures.
func (p *HTTPCredentialsProvider) Fetch(ctx context.Context) (*Credentials, error) {
	backoff := retry.WithMaxRetries(p.MaxRetries, retry.NewExponential(p.BaseBackoff))

	var creds *Credentials
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := p.fetchOnce(ctx)
		if err != nil {
			if voice.IsRetryable(voice.KindOf(err)) {
				return retry.RetryableError(err)
			}
			return err
		}
		creds = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return creds, nil
}

func (p *HTTPCredentialsProvider) fetchOnce(ctx context.Context) (*Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, voice.WrapError(voice.KindSynthesisConnectionFailed, "Could not reach voice service", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, voice.WrapError(voice.KindSynthesisConnectionFailed, "Could not reach voice service", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, voice.NewError(voice.KindSynthesisAuthFailed, "Voice service rejected credentials")
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, voice.WrapError(voice.KindSynthesisConnectionFailed, "Could not reach voice service",
			fmt.Errorf("credentials endpoint returned %d: %s", resp.StatusCode, body))
	}

	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, voice.WrapError(voice.KindSynthesisConnectionFailed, "Could not reach voice service", err)
	}
	if err := creds.validate(); err != nil {
		return nil, voice.WrapError(voice.KindSynthesisConnectionFailed, "Could not reach voice service", err)
	}
	return &creds, nil
}

// StaticCredentialsProvider returns fixed credentials, for configurations
// where the endpoints and token are known up front.
type StaticCredentialsProvider struct {
	Credentials Credentials
}

// Fetch returns the fixed credentials.
func (p *StaticCredentialsProvider) Fetch(context.Context) (*Credentials, error) {
	c := p.Credentials
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
