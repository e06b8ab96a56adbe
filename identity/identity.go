// Package identity obtains an opaque user identity from the identity backend
// before any conversation operation is permitted. It supports anonymous
// sessions and token exchange for a previously issued session token.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"burakai/chat"
	"burakai/utils"
)

// defaultLabel is used when the backend issues no display name.
const defaultLabel = "Burak Pro Kullanıcısı"

// AuthError is returned when the identity backend rejects the request or is
// unreachable. Status is zero when no HTTP status was received.
type AuthError struct {
	Status int
	Reason string
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authentication failed (status %d): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// Config represents identity backend configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout int // seconds
}

// Provider authenticates against the identity backend and notifies watchers
// when the session identity becomes available or is revoked.
type Provider struct {
	config Config
	client *http.Client
	logger zerolog.Logger

	mu       sync.Mutex
	current  *chat.User
	token    string
	watchers map[int]func(*chat.User)
	nextID   int
}

// NewProvider creates an identity provider.
func NewProvider(config Config, logger zerolog.Logger) *Provider {
	timeout := time.Duration(config.Timeout) * time.Second
	if config.Timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Provider{
		config:   config,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		watchers: make(map[int]func(*chat.User)),
	}
}

// sessionRequest is the body sent to the sessions endpoint. An empty token
// requests an anonymous session.
type sessionRequest struct {
	Token string `json:"token,omitempty"`
}

// sessionResponse carries the issued session token, whose claims identify the
// user.
type sessionResponse struct {
	SessionToken string `json:"sessionToken"`
}

// Establish authenticates with the backend. With existingToken it attempts a
// token exchange; otherwise it creates an anonymous session. On success the
// user is immutable for the rest of the session and all identity watchers are
// notified. Missing backend configuration is reported before any network call.
func (p *Provider) Establish(ctx context.Context, existingToken string) (*chat.User, error) {
	if p.config.BaseURL == "" || p.config.APIKey == "" {
		return nil, &utils.MissingConfigError{Vars: missingIdentityVars(p.config)}
	}

	body, err := json.Marshal(sessionRequest{Token: existingToken})
	if err != nil {
		return nil, &AuthError{Reason: fmt.Sprintf("failed to encode session request: %v", err)}
	}

	endpoint := fmt.Sprintf("%s/v1/sessions?key=%s", p.config.BaseURL, url.QueryEscape(p.config.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &AuthError{Reason: fmt.Sprintf("failed to build session request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &AuthError{Reason: fmt.Sprintf("identity backend unreachable: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &AuthError{Status: resp.StatusCode, Reason: string(data)}
	}

	var session sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, &AuthError{Reason: fmt.Sprintf("failed to parse session response: %v", err)}
	}
	if session.SessionToken == "" {
		return nil, &AuthError{Reason: "session response contained no token"}
	}

	user, err := userFromToken(session.SessionToken)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = user
	p.token = session.SessionToken
	p.mu.Unlock()

	p.logger.Info().Str("user_id", user.ID).Bool("anonymous", user.Anonymous).Msg("identity established")
	p.notify(user)
	return user, nil
}

// userFromToken reads the identity claims out of a session token. The token
// is issued by the backend over TLS; signature verification is the backend's
// side of the boundary, the client only reads the claims.
func userFromToken(token string) (*chat.User, error) {
	var claims struct {
		jwt.RegisteredClaims
		Name      string `json:"name"`
		Anonymous bool   `json:"anon"`
	}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, &AuthError{Reason: fmt.Sprintf("failed to parse session token: %v", err)}
	}
	if claims.Subject == "" {
		return nil, &AuthError{Reason: "session token carried no subject"}
	}

	label := claims.Name
	if label == "" {
		label = defaultLabel
	}
	return &chat.User{
		ID:        claims.Subject,
		Label:     label,
		Anonymous: claims.Anonymous,
	}, nil
}

// Current returns the established user, or nil before Establish succeeds.
func (p *Provider) Current() *chat.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Token returns the current session token for reuse on the next startup.
func (p *Provider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// SignOut revokes the session identity and notifies watchers with nil.
func (p *Provider) SignOut() {
	p.mu.Lock()
	p.current = nil
	p.token = ""
	p.mu.Unlock()

	p.logger.Info().Msg("signed out")
	p.notify(nil)
}

// OnChange registers a watcher invoked whenever the identity becomes
// available or is revoked. The returned function deregisters it.
func (p *Provider) OnChange(fn func(*chat.User)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}

// notify delivers an identity change to all watchers.
func (p *Provider) notify(user *chat.User) {
	p.mu.Lock()
	fns := make([]func(*chat.User), 0, len(p.watchers))
	for _, fn := range p.watchers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}

// missingIdentityVars names the unset identity configuration variables.
func missingIdentityVars(c Config) []string {
	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, utils.EnvIdentityURL)
	}
	if c.APIKey == "" {
		missing = append(missing, utils.EnvIdentityAPIKey)
	}
	return missing
}
