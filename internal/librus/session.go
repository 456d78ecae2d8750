package librus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
)

const cookiesFile = "session/cookies.json"

// CredentialSource looks up portal credentials by child name.
type CredentialSource interface {
	Credentials(name string) (children.Credentials, error)
}

// SetupMarker records that a portal session was established for a child.
type SetupMarker interface {
	MarkSetupCompleted(ctx context.Context, child string) error
}

// SessionProviderConfig holds configuration for the session provider.
type SessionProviderConfig struct {
	Portal       Config
	FileProvider storage_manager.FileProvider
	Credentials  CredentialSource
	Setup        SetupMarker
	Logger       logger.Logger
	// AutoLogin allows logging in again with stored credentials when the
	// saved cookies no longer authenticate.
	AutoLogin bool
}

// SessionProvider opens authenticated sessions from saved cookies, logging in
// again when allowed.
type SessionProvider struct {
	cfg SessionProviderConfig
	log logger.Logger
}

// NewSessionProvider creates a session provider. FileProvider is rooted at the children directory.
func NewSessionProvider(cfg SessionProviderConfig) *SessionProvider {
	if cfg.FileProvider == nil {
		panic("file provider cannot be nil")
	}
	if cfg.Logger == nil {
		panic("logger cannot be nil")
	}
	return &SessionProvider{cfg: cfg, log: cfg.Logger}
}

// Open returns a session for child after the pre-flight check. When the saved
// cookies are missing or stale and auto-login is off or impossible, the error
// wraps ErrSessionExpired.
func (p *SessionProvider) Open(ctx context.Context, child string) (*Session, error) {
	client, err := NewClient(p.cfg.Portal, p.log.WithFields(logger.ChildField(child)))
	if err != nil {
		return nil, err
	}

	restored, err := p.loadCookies(ctx, client, child)
	if err != nil {
		return nil, err
	}
	if restored {
		err := client.Check(ctx)
		if err == nil {
			return NewSession(client, child), nil
		}
		if !errors.Is(err, ErrSessionExpired) {
			return nil, fmt.Errorf("pre-flight check failed: %w", err)
		}
		p.log.Info("Saved portal session expired", logger.ChildField(child))
	}

	if !p.cfg.AutoLogin {
		return nil, fmt.Errorf("no valid portal session for %s: %w", child, ErrSessionExpired)
	}
	if err := p.login(ctx, client, child); err != nil {
		return nil, err
	}
	return NewSession(client, child), nil
}

// Login forces a fresh login for child and saves the new cookies.
func (p *SessionProvider) Login(ctx context.Context, child string) error {
	client, err := NewClient(p.cfg.Portal, p.log.WithFields(logger.ChildField(child)))
	if err != nil {
		return err
	}
	return p.login(ctx, client, child)
}

func (p *SessionProvider) login(ctx context.Context, client *Client, child string) error {
	if p.cfg.Credentials == nil {
		return fmt.Errorf("no credential source configured: %w", ErrSessionExpired)
	}
	creds, err := p.cfg.Credentials.Credentials(child)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	if err := client.Login(ctx, creds.Login, creds.Password); err != nil {
		return err
	}
	if err := p.saveCookies(ctx, client, child); err != nil {
		return err
	}
	if p.cfg.Setup != nil {
		if err := p.cfg.Setup.MarkSetupCompleted(ctx, child); err != nil {
			return err
		}
	}
	p.log.Info("Logged in to portal", logger.ChildField(child))
	return nil
}

type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (p *SessionProvider) loadCookies(ctx context.Context, client *Client, child string) (bool, error) {
	data, err := p.cfg.FileProvider.Read(ctx, cookiesPath(child))
	if err != nil {
		if errors.Is(err, storage_manager.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read saved cookies: %w", err)
	}

	var saved map[string][]savedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		p.log.Warn("Ignoring unreadable saved cookies", logger.ChildField(child), logger.ErrorField(err))
		return false, nil
	}
	jar := make(map[string][]*http.Cookie, len(saved))
	for host, cookies := range saved {
		for _, c := range cookies {
			jar[host] = append(jar[host], &http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	client.SetCookies(jar)
	return len(jar) > 0, nil
}

func (p *SessionProvider) saveCookies(ctx context.Context, client *Client, child string) error {
	saved := make(map[string][]savedCookie)
	for host, cookies := range client.Cookies() {
		for _, c := range cookies {
			saved[host] = append(saved[host], savedCookie{Name: c.Name, Value: c.Value})
		}
	}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return err
	}
	if err := p.cfg.FileProvider.Write(ctx, cookiesPath(child), data); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}
	return nil
}

func cookiesPath(child string) string {
	return path.Join(children.SafeName(child), cookiesFile)
}
