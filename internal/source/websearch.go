package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/terisuke/cohort/internal/model"
)

// WebSearch is the generative web-search fallback channel. It asks a
// live-search-capable model for claimed-real content only and parses
// the structured reply. There is deliberately no method that fabricates
// posts: if the search finds nothing, the caller gets an empty slice.
type WebSearch struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	limiter   *rate.Limiter
	log       logrus.FieldLogger
}

// NewWebSearch creates the fallback channel client.
func NewWebSearch(cfg model.WebSearchConfig, log logrus.FieldLogger) (*WebSearch, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("web search API key is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2500
	}

	return &WebSearch{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   timeout,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		log:       log,
	}, nil
}

type foundPost struct {
	Text string `json:"text"`
	Date string `json:"date"`
}

// FetchPosts searches the live web for the account's real posts and
// tags them with web-search provenance IDs. An empty result is not an
// error.
func (w *WebSearch) FetchPosts(ctx context.Context, handle string, limit int) ([]model.PostRecord, error) {
	handle = model.NormalizeHandle(handle)

	prompt := fmt.Sprintf(`Search X (Twitter) for the %d most recent posts by the account "@%s".

STRICT RULES:
- Return only posts that actually exist; never invent content.
- Capture the exact post text and its date.
- Exclude reposts and replies.

Output a JSON array only, no other text:
[
  {"text": "actual post text", "date": "YYYY-MM-DD"},
  ...
]

Return an empty array [] if no posts are found.`, limit, handle)

	result, err := w.completion(ctx, prompt, 0.3, w.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("web search posts @%s: %w", handle, err)
	}

	var found []foundPost
	if err := json.Unmarshal([]byte(stripCodeFence(result)), &found); err != nil {
		w.log.WithField("handle", handle).WithError(err).Warn("web search returned unparseable posts")
		return nil, nil
	}

	posts := make([]model.PostRecord, 0, len(found))
	for i, p := range found {
		if i >= limit {
			break
		}
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		posts = append(posts, model.PostRecord{
			ID:   fmt.Sprintf("web_search_%s_%d", handle, i),
			Text: p.Text,
			Link: fmt.Sprintf("https://x.com/%s/status/web_search_%d", handle, i),
			Date: p.Date,
		})
	}

	w.log.WithFields(logrus.Fields{"handle": handle, "posts": len(posts)}).Debug("web search complete")
	return posts, nil
}

type foundAccount struct {
	Handle      string  `json:"handle"`
	DisplayName string  `json:"display_name"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// DiscoverAccounts searches the live web for accounts matching a
// keyword and returns them as discovery candidates.
func (w *WebSearch) DiscoverAccounts(ctx context.Context, keyword string, max int) ([]model.AccountCandidate, error) {
	prompt := fmt.Sprintf(`Search X (Twitter) for up to %d real, currently active accounts relevant to the topic "%s".

STRICT RULES:
- Return only accounts that actually exist; never invent handles.
- For each account estimate your confidence that it exists and matches, 0.0-1.0.

Output a JSON array only, no other text:
[
  {"handle": "username", "display_name": "Name", "description": "bio summary", "confidence": 0.8},
  ...
]

Return an empty array [] if none are found.`, max, keyword)

	result, err := w.completion(ctx, prompt, 0.3, w.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("web search discovery %q: %w", keyword, err)
	}

	var found []foundAccount
	if err := json.Unmarshal([]byte(stripCodeFence(result)), &found); err != nil {
		w.log.WithField("keyword", keyword).WithError(err).Warn("web search returned unparseable candidates")
		return nil, nil
	}

	candidates := make([]model.AccountCandidate, 0, len(found))
	for _, a := range found {
		handle := model.NormalizeHandle(a.Handle)
		if handle == "" {
			continue
		}
		if len(candidates) >= max {
			break
		}
		candidates = append(candidates, model.AccountCandidate{
			Handle:      handle,
			DisplayName: a.DisplayName,
			Description: a.Description,
			ProfileURL:  "https://x.com/" + handle,
			Confidence:  a.Confidence,
			Source:      "web_search",
		})
	}
	return candidates, nil
}

// GeneratePersona derives a persona profile from real posts. A parse
// failure degrades to a minimal profile rather than failing the fetch.
func (w *WebSearch) GeneratePersona(ctx context.Context, handle string, posts []model.PostRecord) (*model.Persona, error) {
	if len(posts) == 0 {
		return nil, fmt.Errorf("generate persona @%s: no posts", handle)
	}

	var sb strings.Builder
	for i, p := range posts {
		if i >= 20 {
			break
		}
		fmt.Fprintf(&sb, "Post %d: %s\n---\n", i+1, p.Text)
	}

	prompt := fmt.Sprintf(`Derive a persona profile for the X account "@%s" from these posts:

%s
Summarize:
1. name: a concise name or nickname for the account
2. background: occupation, field, interests
3. tendencies: recurring topics and values
4. tone: writing style traits
5. personality: overall impression

Output JSON only:
{"name": "...", "background": "...", "tendencies": ["...", "..."], "tone": "...", "personality": "..."}`, handle, sb.String())

	result, err := w.completion(ctx, prompt, 0.5, 800)
	if err != nil {
		return nil, fmt.Errorf("generate persona @%s: %w", handle, err)
	}

	var persona model.Persona
	if err := json.Unmarshal([]byte(stripCodeFence(result)), &persona); err != nil {
		w.log.WithField("handle", handle).WithError(err).Warn("persona response unparseable, using minimal profile")
		persona = model.Persona{
			Name:       handle,
			Background: truncate(result, 200),
		}
	}
	persona.SchemaVersion = model.PersonaSchemaVersion
	return &persona, nil
}

// completion performs one rate-limited chat completion.
func (w *WebSearch) completion(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: w.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// stripCodeFence removes a surrounding markdown code fence, which
// models frequently wrap JSON output in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	parts := strings.SplitN(s, "```", 3)
	if len(parts) < 2 {
		return s
	}
	body := parts[1]
	body = strings.TrimPrefix(body, "json")
	return strings.TrimSpace(body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
