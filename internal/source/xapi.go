package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/terisuke/cohort/internal/model"
	"github.com/terisuke/cohort/internal/ratelimit"
	"github.com/terisuke/cohort/internal/util"
)

// XAPIClient is the primary structured upstream client. Every response
// feeds its rate-limit headers into the shared tracker.
type XAPIClient struct {
	httpClient  *http.Client
	baseURL     string
	bearerToken string
	userAgent   string
	tracker     *ratelimit.Tracker
	log         logrus.FieldLogger
}

// NewXAPIClient creates a primary API client.
func NewXAPIClient(cfg model.PrimaryConfig, httpCfg model.HTTPConfig, tracker *ratelimit.Tracker, log logrus.FieldLogger) *XAPIClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &XAPIClient{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: util.NewProxyTransport(httpCfg),
		},
		baseURL:     cfg.BaseURL,
		bearerToken: cfg.BearerToken,
		userAgent:   httpCfg.UserAgent,
		tracker:     tracker,
		log:         log,
	}
}

type userPayload struct {
	Data struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Username      string `json:"username"`
		Description   string `json:"description"`
		CreatedAt     string `json:"created_at"`
		Verified      bool   `json:"verified"`
		PublicMetrics struct {
			FollowersCount int `json:"followers_count"`
			TweetCount     int `json:"tweet_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

type tweetsPayload struct {
	Data []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		CreatedAt string `json:"created_at"`
	} `json:"data"`
}

// UserTimeline fetches the account's recent posts, excluding reposts
// and replies.
func (c *XAPIClient) UserTimeline(ctx context.Context, handle string, limit int) ([]model.PostRecord, error) {
	handle = model.NormalizeHandle(handle)

	user, err := c.lookupUser(ctx, handle)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("max_results", strconv.Itoa(clampResults(limit)))
	params.Set("tweet.fields", "created_at,text,id")
	params.Set("exclude", "retweets,replies")

	var payload tweetsPayload
	if err := c.doJSON(ctx, "user timeline", "/users/"+user.Data.ID+"/tweets", params, &payload); err != nil {
		return nil, err
	}

	posts := make([]model.PostRecord, 0, len(payload.Data))
	for _, t := range payload.Data {
		posts = append(posts, model.PostRecord{
			ID:   t.ID,
			Text: t.Text,
			Link: fmt.Sprintf("https://x.com/%s/status/%s", handle, t.ID),
			Date: t.CreatedAt,
		})
	}
	c.log.WithFields(logrus.Fields{"handle": handle, "posts": len(posts)}).Debug("timeline fetched")
	return posts, nil
}

// SearchRecent fetches posts matching a search query.
func (c *XAPIClient) SearchRecent(ctx context.Context, query string, limit int) ([]model.PostRecord, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(clampResults(limit)))
	params.Set("tweet.fields", "created_at,text,id")

	var payload tweetsPayload
	if err := c.doJSON(ctx, "recent search", "/tweets/search/recent", params, &payload); err != nil {
		return nil, err
	}

	posts := make([]model.PostRecord, 0, len(payload.Data))
	for _, t := range payload.Data {
		posts = append(posts, model.PostRecord{
			ID:   t.ID,
			Text: t.Text,
			Link: "https://x.com/i/status/" + t.ID,
			Date: t.CreatedAt,
		})
	}
	return posts, nil
}

type authorsPayload struct {
	Includes struct {
		Users []struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			Username      string `json:"username"`
			Description   string `json:"description"`
			CreatedAt     string `json:"created_at"`
			PublicMetrics struct {
				FollowersCount int `json:"followers_count"`
				TweetCount     int `json:"tweet_count"`
			} `json:"public_metrics"`
		} `json:"users"`
	} `json:"includes"`
}

// SearchAuthors finds candidate accounts by searching recent posts for
// the keyword and collecting their distinct authors.
func (c *XAPIClient) SearchAuthors(ctx context.Context, keyword string, max int) ([]model.AccountCandidate, error) {
	params := url.Values{}
	params.Set("query", keyword+" -is:retweet -is:reply")
	params.Set("max_results", strconv.Itoa(clampResults(max*2)))
	params.Set("expansions", "author_id")
	params.Set("user.fields", "description,public_metrics,created_at")

	var payload authorsPayload
	if err := c.doJSON(ctx, "author search", "/tweets/search/recent", params, &payload); err != nil {
		return nil, err
	}

	candidates := make([]model.AccountCandidate, 0, len(payload.Includes.Users))
	for _, u := range payload.Includes.Users {
		if len(candidates) >= max {
			break
		}
		candidates = append(candidates, model.AccountCandidate{
			Handle:           u.Username,
			DisplayName:      u.Name,
			Description:      u.Description,
			ProfileURL:       "https://x.com/" + u.Username,
			Source:           "x_api",
			Confidence:       0.9,
			FollowersCount:   u.PublicMetrics.FollowersCount,
			TweetCount:       u.PublicMetrics.TweetCount,
			AccountCreatedAt: u.CreatedAt,
			MetricsKnown:     true,
		})
	}
	c.log.WithFields(logrus.Fields{"keyword": keyword, "candidates": len(candidates)}).Debug("author search complete")
	return candidates, nil
}

// UserMetrics returns the account's activity metrics. The last-activity
// timestamp comes from a minimal timeline probe; a probe failure leaves
// it empty rather than failing the whole call.
func (c *XAPIClient) UserMetrics(ctx context.Context, handle string) (*AccountMetrics, error) {
	handle = model.NormalizeHandle(handle)

	user, err := c.lookupUser(ctx, handle)
	if err != nil {
		return nil, err
	}

	metrics := &AccountMetrics{
		FollowersCount:   user.Data.PublicMetrics.FollowersCount,
		TweetCount:       user.Data.PublicMetrics.TweetCount,
		AccountCreatedAt: user.Data.CreatedAt,
	}

	params := url.Values{}
	params.Set("max_results", "5")
	params.Set("tweet.fields", "created_at")
	params.Set("exclude", "retweets,replies")

	var payload tweetsPayload
	if err := c.doJSON(ctx, "last activity probe", "/users/"+user.Data.ID+"/tweets", params, &payload); err == nil && len(payload.Data) > 0 {
		metrics.LastTweetAt = payload.Data[0].CreatedAt
	}

	return metrics, nil
}

// LookupUser resolves a handle to a discovery candidate.
func (c *XAPIClient) LookupUser(ctx context.Context, handle string) (*model.AccountCandidate, error) {
	handle = model.NormalizeHandle(handle)

	user, err := c.lookupUser(ctx, handle)
	if err != nil {
		return nil, err
	}

	return &model.AccountCandidate{
		Handle:           user.Data.Username,
		DisplayName:      user.Data.Name,
		Description:      user.Data.Description,
		ProfileURL:       "https://x.com/" + user.Data.Username,
		Source:           "x_api",
		Confidence:       0.9,
		FollowersCount:   user.Data.PublicMetrics.FollowersCount,
		TweetCount:       user.Data.PublicMetrics.TweetCount,
		AccountCreatedAt: user.Data.CreatedAt,
		MetricsKnown:     true,
	}, nil
}

func (c *XAPIClient) lookupUser(ctx context.Context, handle string) (*userPayload, error) {
	params := url.Values{}
	params.Set("user.fields", "description,public_metrics,created_at,verified")

	var payload userPayload
	if err := c.doJSON(ctx, "user lookup", "/users/by/username/"+url.PathEscape(handle), params, &payload); err != nil {
		return nil, err
	}
	if payload.Data.ID == "" {
		return nil, fmt.Errorf("user lookup @%s: %w", handle, ErrNotFound)
	}
	return &payload, nil
}

// doJSON performs one GET against the primary API, observes rate-limit
// headers, and decodes the response body.
func (c *XAPIClient) doJSON(ctx context.Context, op, path string, params url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if c.tracker != nil {
		c.tracker.Observe(resp.Header)
		c.tracker.Decrement()
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Op: op, Reset: resetDelta(resp.Header)}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// resetDelta extracts the time-until-reset from a 429 response.
func resetDelta(headers http.Header) time.Duration {
	v := headers.Get("x-rate-limit-reset")
	if v == "" {
		return 0
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	d := time.Until(time.Unix(ts, 0))
	if d < 0 {
		return 0
	}
	return d
}

func clampResults(limit int) int {
	if limit < 5 {
		return 5
	}
	if limit > 100 {
		return 100
	}
	return limit
}
