package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/shpitdev/referral-pipeline/pkg/pipeline/core"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Reasoner implements core.Reasoner on the Gemini API.
type Reasoner struct {
	client *genai.Client
	model  string
}

var _ core.Reasoner = (*Reasoner)(nil)

func New(ctx context.Context, cfg Config) (*Reasoner, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Reasoner{client: client, model: model}, nil
}

// Model returns the configured model name.
func (r *Reasoner) Model() string { return r.model }

// Generate sends prompt and returns the text of the first candidate.
func (r *Reasoner) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := r.client.Models.GenerateContent(
		ctx,
		r.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			CandidateCount: 1,
		},
	)
	if err != nil {
		return "", classifyErr(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &core.PermanentError{Err: errors.New("gemini: empty response")}
	}
	return text, nil
}

// classifyErr converts SDK errors into the pipeline's error taxonomy. Status codes
// and payloads are kept so the retry policy can decide.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		payload := strings.TrimSpace(apiErr.Message)
		if strings.EqualFold(apiErr.Status, "RESOURCE_EXHAUSTED") && strings.Contains(strings.ToLower(payload), "quota") {
			return &core.QuotaExceededError{Err: err}
		}
		return &core.RemoteError{
			Op:         "gemini.generateContent",
			StatusCode: apiErr.Code,
			Payload:    payload,
			Err:        err,
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
