package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// HTTPProvider implements Provider against an atomic request/response
// transcription endpoint: POST multipart audio, receive {"text": ...}.
type HTTPProvider struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider for the given transcription endpoint.
func NewHTTPProvider(endpoint, token string) *HTTPProvider {
	return &HTTPProvider{
		endpoint:   endpoint,
		token:      token,
		httpClient: &http.Client{},
	}
}

// NewHTTPProviderWithClient creates a provider with a custom HTTP client.
func NewHTTPProviderWithClient(endpoint, token string, client *http.Client) *HTTPProvider {
	return &HTTPProvider{
		endpoint:   endpoint,
		token:      token,
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (p *HTTPProvider) Name() string {
	return "http"
}

// Transcribe posts the audio as a multipart form and decodes the transcript.
func (p *HTTPProvider) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	audioData, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	ext := opts.Format
	if ext == "" {
		ext = "pcm"
	}
	fw, err := mw.CreateFormFile("file", "audio."+ext)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(audioData); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}

	if opts.Model != "" {
		if err := mw.WriteField("model", opts.Model); err != nil {
			return nil, fmt.Errorf("write model field: %w", err)
		}
	}
	if opts.Language != "" {
		if err := mw.WriteField("language", opts.Language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	reqURL := p.endpoint
	if opts.Format != "" || opts.SampleRate > 0 {
		u, err := url.Parse(reqURL)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		q := u.Query()
		if opts.Format != "" {
			q.Set("encoding", encodingFor(opts.Format))
		}
		if opts.SampleRate > 0 {
			q.Set("sample_rate", fmt.Sprintf("%d", opts.SampleRate))
		}
		u.RawQuery = q.Encode()
		reqURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("transcription status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		Duration float64 `json:"duration"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}

	return &Transcript{
		Text:     out.Text,
		Language: out.Language,
		Duration: out.Duration,
	}, nil
}

// encodingFor maps container names onto the wire encoding parameter.
func encodingFor(format string) string {
	switch format {
	case "pcm":
		return "pcm_s16le"
	default:
		return format
	}
}
