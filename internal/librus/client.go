// Package librus talks to the Librus Synergia parent portal: OAuth login,
// cookie persistence and HTML page extraction into typed records.
package librus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"golang.org/x/net/publicsuffix"
)

var (
	// ErrSessionExpired means the portal answered with its login form.
	ErrSessionExpired = errors.New("librus session expired")
	// ErrLoginFailed means the portal rejected the credentials.
	ErrLoginFailed = errors.New("librus login failed")
)

const (
	DefaultBaseURL  = "https://synergia.librus.pl"
	DefaultAuthURL  = "https://api.librus.pl"
	DefaultClientID = "46"

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) librus-mcp"
	indexPath        = "/rodzic/index"
)

// Config holds portal endpoints and scraping limits.
type Config struct {
	BaseURL        string
	AuthURL        string
	ClientID       string
	UserAgent      string
	RequestTimeout time.Duration

	FetchDelay          time.Duration
	MaxMessages         int
	MaxAnnouncements    int
	CalendarMonthsAhead int
	HomeworkDaysBack    int
	HomeworkDaysAhead   int

	// Now defaults to time.Now
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 200
	}
	if c.MaxAnnouncements <= 0 {
		c.MaxAnnouncements = 150
	}
	if c.CalendarMonthsAhead < 0 {
		c.CalendarMonthsAhead = 0
	}
	if c.HomeworkDaysBack <= 0 {
		c.HomeworkDaysBack = 30
	}
	if c.HomeworkDaysAhead <= 0 {
		c.HomeworkDaysAhead = 30
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.AuthURL = strings.TrimRight(c.AuthURL, "/")
}

// Client is an HTTP client holding one portal session in its cookie jar.
type Client struct {
	cfg     Config
	http    *http.Client
	baseURL *url.URL
	authURL *url.URL
	log     logger.Logger
}

// NewClient creates a client with an empty cookie jar.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	cfg.setDefaults()

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid portal base URL: %w", err)
	}
	auth, err := url.Parse(cfg.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("invalid portal auth URL: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Jar: jar, Timeout: cfg.RequestTimeout},
		baseURL: base,
		authURL: auth,
		log:     log,
	}, nil
}

// Login runs the portal OAuth form flow: authorization page, credential POST,
// then the grant redirect that lands the session cookies on the portal host.
func (c *Client) Login(ctx context.Context, login, password string) error {
	authorize := c.cfg.AuthURL + "/OAuth/Authorization?client_id=" + url.QueryEscape(c.cfg.ClientID)

	resp, err := c.do(ctx, http.MethodGet, authorize+"&response_type=code&scope=mydata", nil)
	if err != nil {
		return fmt.Errorf("failed to open authorization page: %w", err)
	}
	drain(resp)

	form := url.Values{"action": {"login"}, "login": {login}, "pass": {password}}
	resp, err = c.do(ctx, http.MethodPost, authorize, form)
	if err != nil {
		return fmt.Errorf("failed to post credentials: %w", err)
	}
	var result struct {
		Status string `json:"status"`
		GoTo   string `json:"goTo"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)
	drain(resp)
	if decodeErr != nil || resp.StatusCode >= http.StatusBadRequest || result.Status != "ok" {
		msg := resp.Status
		if len(result.Errors) > 0 {
			msg = result.Errors[0].Message
		}
		return fmt.Errorf("%w: %s", ErrLoginFailed, msg)
	}

	resp, err = c.do(ctx, http.MethodGet, c.cfg.AuthURL+"/OAuth/Authorization/Grant?client_id="+url.QueryEscape(c.cfg.ClientID), nil)
	if err != nil {
		return fmt.Errorf("failed to complete grant: %w", err)
	}
	drain(resp)

	c.log.Debug("Portal login completed", logger.StringField("landed", resp.Request.URL.Path))
	return c.Check(ctx)
}

// Check verifies that the current cookies authenticate, returning
// ErrSessionExpired when the portal index redirects to the login form.
func (c *Client) Check(ctx context.Context) error {
	_, err := c.document(ctx, http.MethodGet, indexPath, nil)
	return err
}

// Cookies returns the session cookies for the portal and auth hosts.
func (c *Client) Cookies() map[string][]*http.Cookie {
	return map[string][]*http.Cookie{
		c.baseURL.String(): c.http.Jar.Cookies(c.baseURL),
		c.authURL.String(): c.http.Jar.Cookies(c.authURL),
	}
}

// SetCookies restores cookies saved by Cookies. Unknown hosts are ignored.
func (c *Client) SetCookies(saved map[string][]*http.Cookie) {
	for _, u := range []*url.URL{c.baseURL, c.authURL} {
		if cookies, ok := saved[u.String()]; ok {
			c.http.Jar.SetCookies(u, cookies)
		}
	}
}

func (c *Client) do(ctx context.Context, method, target string, form url.Values) (*http.Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return c.http.Do(req)
}

// document fetches a portal page and parses it. A page that turns out to be
// the login form yields ErrSessionExpired.
func (c *Client) document(ctx context.Context, method, path string, form url.Values) (*goquery.Document, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.cfg.BaseURL + path
	}
	resp, err := c.do(ctx, method, target, form)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer drain(resp)

	if c.isLoginPage(resp.Request.URL) {
		return nil, fmt.Errorf("%s redirected to login: %w", path, ErrSessionExpired)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc.Find(`form input[name="pass"]`).Length() > 0 {
		return nil, fmt.Errorf("%s shows the login form: %w", path, ErrSessionExpired)
	}
	return doc, nil
}

func (c *Client) isLoginPage(u *url.URL) bool {
	if u == nil {
		return false
	}
	if u.Host == c.authURL.Host && u.Host != c.baseURL.Host {
		return true
	}
	return strings.Contains(u.Path, "/loguj")
}

// wait sleeps for the configured fetch delay unless ctx ends first.
func (c *Client) wait(ctx context.Context) error {
	if c.cfg.FetchDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.cfg.FetchDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
