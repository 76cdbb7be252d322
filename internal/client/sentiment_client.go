package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/totalityengine/api/internal/config"
)

// SentimentAnalyzer scores the affect of lyric text.
type SentimentAnalyzer interface {
	Classify(ctx context.Context, text string) (*SentimentResponse, error)
	IsConfigured() bool
}

// SentimentClient calls the sentiment inference service; without a configured
// URL it falls back to a small lexicon heuristic so lyric-dependent stages
// stay functional in development.
type SentimentClient struct {
	httpClient *http.Client
	baseURL    string
}

// SentimentResponse mirrors the classifier output: a label plus the
// probability of that class.
type SentimentResponse struct {
	Label string  `json:"label"` // "POSITIVE" or "NEGATIVE"
	Score float64 `json:"score"` // class probability in [0,1]
}

// NewSentimentClient creates a new sentiment inference client
func NewSentimentClient(cfg *config.SentimentConfig) *SentimentClient {
	return &SentimentClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// IsConfigured returns whether a real inference service is wired up
func (c *SentimentClient) IsConfigured() bool {
	return c.baseURL != ""
}

// Classify returns the sentiment of text. Text longer than the model's input
// window is truncated before scoring.
func (c *SentimentClient) Classify(ctx context.Context, text string) (*SentimentResponse, error) {
	text = truncateRunes(text, 1000)

	if !c.IsConfigured() {
		return classifyFallback(text), nil
	}

	reqBody, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal sentiment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sentiment service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sentiment service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out SentimentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sentiment response: %w", err)
	}
	return &out, nil
}

var positiveWords = map[string]bool{
	"happy": true, "joy": true, "joyful": true, "love": true, "smile": true,
	"shine": true, "light": true, "dance": true, "free": true, "alive": true,
	"beautiful": true, "sweet": true, "gold": true, "sun": true, "dream": true,
}

var negativeWords = map[string]bool{
	"sad": true, "cry": true, "pain": true, "dark": true, "lost": true,
	"broken": true, "hate": true, "cold": true, "alone": true, "dead": true,
	"fear": true, "hurt": true, "gone": true, "empty": true, "rain": true,
}

// classifyFallback is a bag-of-words stand-in for the hosted classifier.
// Confidence grows with the margin between positive and negative hits.
func classifyFallback(text string) *SentimentResponse {
	var pos, neg int
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}

	total := pos + neg
	if total == 0 {
		return &SentimentResponse{Label: "POSITIVE", Score: 0.5}
	}

	if pos >= neg {
		return &SentimentResponse{Label: "POSITIVE", Score: 0.5 + 0.5*float64(pos-neg)/float64(total)}
	}
	return &SentimentResponse{Label: "NEGATIVE", Score: 0.5 + 0.5*float64(neg-pos)/float64(total)}
}

// truncateRunes cuts text to at most max runes, never splitting a multibyte
// character the way a byte slice would.
func truncateRunes(text string, max int) string {
	if len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
