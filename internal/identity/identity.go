// Package identity talks to the third-party sign-in provider. A Provider
// instance tracks exactly one signed-in user and announces every change of
// that user to its subscribers.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"blogCPT/internal/config"
	"blogCPT/internal/models"
)

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var googleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/auth",
	TokenURL:  "https://oauth2.googleapis.com/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

var (
	ErrCodeExchangeFailed = errors.New("oauth code exchange failed")
	ErrProfileFetchFailed = errors.New("failed to fetch user profile")
)

type Provider interface {
	// AuthCodeURL is the consent screen address the browser is sent to.
	AuthCodeURL(state string) string
	SignIn(ctx context.Context, code string) (*models.AuthUser, error)
	SignOut(ctx context.Context) error
	// Refresh re-reads the profile of the signed-in user. Signed out clients get nil.
	Refresh(ctx context.Context) (*models.AuthUser, error)
	// OnAuthStateChanged calls fn with the current user right away and after
	// every sign-in, sign-out or refresh.
	OnAuthStateChanged(fn func(*models.AuthUser)) (unsubscribe func())
}

type googleProfile struct {
	ID      string `json:"id"`
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

func (p googleProfile) user() *models.AuthUser {
	uid := p.ID
	if uid == "" {
		uid = p.Sub
	}
	return &models.AuthUser{
		UID:         uid,
		DisplayName: optional(p.Name),
		Email:       optional(p.Email),
		PhotoURL:    optional(p.Picture),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GoogleClient signs one browser session in with Google.
type GoogleClient struct {
	oauth       *oauth2.Config
	userInfoURL string

	mu        sync.Mutex
	token     *oauth2.Token
	user      *models.AuthUser
	gen       uint64
	listeners map[int]func(*models.AuthUser)
	nextID    int

	// notifyMu orders deliveries; listeners must not call back into the client.
	notifyMu sync.Mutex
}

func NewGoogleClient(cfg config.OAuth) *GoogleClient {
	endpoint := googleEndpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultUserInfoURL
	}

	return &GoogleClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
		},
		userInfoURL: userInfoURL,
		listeners:   make(map[int]func(*models.AuthUser)),
	}
}

func (c *GoogleClient) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (c *GoogleClient) SignIn(ctx context.Context, code string) (*models.AuthUser, error) {
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeExchangeFailed, err)
	}

	user, err := c.profile(ctx, token)
	if err != nil {
		return nil, err
	}

	c.notify(c.set(token, user))
	return user, nil
}

func (c *GoogleClient) SignOut(ctx context.Context) error {
	c.notify(c.set(nil, nil))
	return nil
}

// set replaces the auth state and returns its generation.
func (c *GoogleClient) set(token *oauth2.Token, user *models.AuthUser) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.user = user
	c.gen++
	return c.gen
}

func (c *GoogleClient) Refresh(ctx context.Context) (*models.AuthUser, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == nil {
		return nil, nil
	}

	user, err := c.profile(ctx, token)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.token != token {
		// Signed out or in again while the profile was loading.
		user = c.user
		c.mu.Unlock()
		return user, nil
	}
	c.user = user
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.notify(gen)
	return user, nil
}

func (c *GoogleClient) OnAuthStateChanged(fn func(*models.AuthUser)) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	current := c.user
	c.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// notify delivers the state of generation gen, unless a later change has
// replaced it. The later change delivers its own state.
func (c *GoogleClient) notify(gen uint64) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	user := c.user
	listeners := make([]func(*models.AuthUser), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(user)
	}
}

func (c *GoogleClient) profile(ctx context.Context, token *oauth2.Token) (*models.AuthUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса профиля: %w", err)
	}

	resp, err := c.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProfileFetchFailed, resp.StatusCode, body)
	}

	var p googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}

	user := p.user()
	if user.UID == "" {
		return nil, fmt.Errorf("%w: profile has no id", ErrProfileFetchFailed)
	}
	return user, nil
}
