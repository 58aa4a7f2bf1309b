package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// safetyMargin refreshes tokens five minutes before the platform
// expiry so in-flight sends never race the cutoff.
const safetyMargin = 5 * time.Minute

type cachedToken struct {
	Value     string
	ExpiresAt time.Time
}

func (t cachedToken) valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// TokenSource caches the WeChat API access token. Concurrent callers
// observe one consistent token-or-refresh decision: a single refresh
// is in flight at a time and everyone else awaits its result.
type TokenSource struct {
	appID      string
	secret     string
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token cachedToken
	group singleflight.Group
}

func NewTokenSource(appID, secret, baseURL string, httpClient *http.Client) *TokenSource {
	if baseURL == "" {
		baseURL = "https://api.weixin.qq.com"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenSource{
		appID:      appID,
		secret:     secret,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token.valid(time.Now()) {
		return token.Value, nil
	}

	value, err, _ := s.group.Do("access_token", func() (any, error) {
		// Re-check under the flight: a concurrent caller may have
		// refreshed while this one waited.
		s.mu.RLock()
		current := s.token
		s.mu.RUnlock()
		if current.valid(time.Now()) {
			return current.Value, nil
		}

		refreshed, err := s.fetchToken(ctx)
		if err != nil {
			return "", err
		}

		s.mu.Lock()
		s.token = refreshed
		s.mu.Unlock()
		return refreshed.Value, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func (s *TokenSource) fetchToken(ctx context.Context) (cachedToken, error) {
	url := fmt.Sprintf(
		"%s/cgi-bin/token?grant_type=client_credential&appid=%s&secret=%s",
		s.baseURL, s.appID, s.secret,
	)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return cachedToken{}, fmt.Errorf("create token request: %w", err)
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return cachedToken{}, fmt.Errorf("fetch access token: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return cachedToken{}, fmt.Errorf("read token body: %w", err)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		ErrCode     int    `json:"errcode"`
		ErrMsg      string `json:"errmsg"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return cachedToken{}, fmt.Errorf("decode token response: %w", err)
	}
	if parsed.ErrCode != 0 {
		return cachedToken{}, fmt.Errorf("wechat token error %d: %s", parsed.ErrCode, parsed.ErrMsg)
	}

	lifetime := time.Duration(parsed.ExpiresIn) * time.Second
	if lifetime > safetyMargin {
		lifetime -= safetyMargin
	}
	return cachedToken{
		Value:     parsed.AccessToken,
		ExpiresAt: time.Now().Add(lifetime),
	}, nil
}
