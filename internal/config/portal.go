package config

import (
	"time"

	"github.com/lewisedginton/librus_mcp/internal/librus"
)

// PortalConfig holds the Librus endpoints and login behaviour
type PortalConfig struct {
	BaseURL        string        `env:"LIBRUS_BASE_URL" yaml:"base_url" default:"https://synergia.librus.pl"`
	AuthURL        string        `env:"LIBRUS_AUTH_URL" yaml:"auth_url" default:"https://api.librus.pl"`
	ClientID       string        `env:"LIBRUS_CLIENT_ID" yaml:"client_id" default:"46"`
	UserAgent      string        `env:"LIBRUS_USER_AGENT" yaml:"user_agent"`
	RequestTimeout time.Duration `env:"LIBRUS_REQUEST_TIMEOUT" yaml:"request_timeout" default:"30s"`
	// AutoLogin logs in again with the configured credentials when saved cookies expire
	AutoLogin bool `env:"LIBRUS_AUTO_LOGIN" yaml:"auto_login"`
}

// ScrapingConfig bounds how much one run fetches
type ScrapingConfig struct {
	FetchDelay          time.Duration `env:"SCRAPE_FETCH_DELAY" yaml:"fetch_delay" default:"500ms"`
	MaxMessages         int           `env:"SCRAPE_MAX_MESSAGES" yaml:"max_messages" default:"200"`
	MaxAnnouncements    int           `env:"SCRAPE_MAX_ANNOUNCEMENTS" yaml:"max_announcements" default:"150"`
	CalendarMonthsAhead int           `env:"SCRAPE_CALENDAR_MONTHS_AHEAD" yaml:"calendar_months_ahead" default:"1"`
	HomeworkDaysBack    int           `env:"SCRAPE_HOMEWORK_DAYS_BACK" yaml:"homework_days_back" default:"30"`
	HomeworkDaysAhead   int           `env:"SCRAPE_HOMEWORK_DAYS_AHEAD" yaml:"homework_days_ahead" default:"30"`
	RunTimeout          time.Duration `env:"SCRAPE_RUN_TIMEOUT" yaml:"run_timeout" default:"10m"`
}

// LibrusConfig builds the portal client configuration.
func (c AppConfig) LibrusConfig() librus.Config {
	return librus.Config{
		BaseURL:             c.Portal.BaseURL,
		AuthURL:             c.Portal.AuthURL,
		ClientID:            c.Portal.ClientID,
		UserAgent:           c.Portal.UserAgent,
		RequestTimeout:      c.Portal.RequestTimeout,
		FetchDelay:          c.Scraping.FetchDelay,
		MaxMessages:         c.Scraping.MaxMessages,
		MaxAnnouncements:    c.Scraping.MaxAnnouncements,
		CalendarMonthsAhead: c.Scraping.CalendarMonthsAhead,
		HomeworkDaysBack:    c.Scraping.HomeworkDaysBack,
		HomeworkDaysAhead:   c.Scraping.HomeworkDaysAhead,
	}
}
