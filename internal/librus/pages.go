package librus

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/delta"
	"github.com/lewisedginton/librus_mcp/internal/records"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
)

const (
	messagesPath      = "/wiadomosci"
	announcementsPath = "/ogloszenia"
	gradesPath        = "/przegladaj_oceny/uczen"
	calendarPath      = "/terminarz"
	homeworkPath      = "/moje_zadania"
	remarksPath       = "/uwagi"

	bodyUnavailable = "[message body unavailable]"
)

// Session is an authenticated portal session. Every fetch method may return
// records older than cutoff; callers filter.
type Session struct {
	client *Client
	child  string
}

// NewSession wraps an authenticated client.
func NewSession(client *Client, child string) *Session {
	return &Session{client: client, child: child}
}

// Messages lists the inbox and fetches the body of every message not older
// than cutoff, up to the configured maximum.
func (s *Session) Messages(ctx context.Context, cutoff *time.Time) ([]records.Message, error) {
	doc, err := s.client.document(ctx, http.MethodGet, messagesPath, nil)
	if err != nil {
		return nil, err
	}
	rows := parseMessageList(doc)
	if len(rows) > s.client.cfg.MaxMessages {
		rows = rows[:s.client.cfg.MaxMessages]
	}

	out := []records.Message{}
	for _, row := range rows {
		if cutoff != nil {
			if t, ok := delta.ParseDate(row.Date); ok && t.Before(*cutoff) {
				continue
			}
		}
		msg := row.Message
		msg.Link = s.client.resolve(row.href)

		body, err := s.client.document(ctx, http.MethodGet, msg.Link, nil)
		switch {
		case errors.Is(err, ErrSessionExpired):
			return nil, err
		case err != nil:
			s.client.log.Warn("Failed to fetch message body",
				logger.ChildField(s.child), logger.StringField("title", msg.Title), logger.ErrorField(err))
			msg.Content = bodyUnavailable
		default:
			msg.Content, msg.Attachments = parseMessageBody(body)
		}
		out = append(out, msg)

		if err := s.client.wait(ctx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Session) Announcements(ctx context.Context, _ *time.Time) ([]records.Announcement, error) {
	doc, err := s.client.document(ctx, http.MethodGet, announcementsPath, nil)
	if err != nil {
		return nil, err
	}
	return parseAnnouncements(doc, s.client.cfg.MaxAnnouncements), nil
}

func (s *Session) Grades(ctx context.Context, _ *time.Time) ([]records.Grade, error) {
	doc, err := s.client.document(ctx, http.MethodGet, gradesPath, nil)
	if err != nil {
		return nil, err
	}
	return parseGrades(doc), nil
}

// Calendar fetches the current month plus the configured months ahead and
// keeps events from the start of the current week.
func (s *Session) Calendar(ctx context.Context, _ *time.Time) ([]records.CalendarEvent, error) {
	now := s.client.cfg.Now().In(delta.Location)
	weekStart := startOfWeek(now)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, delta.Location)

	out := []records.CalendarEvent{}
	for i := 0; i <= s.client.cfg.CalendarMonthsAhead; i++ {
		m := first.AddDate(0, i, 0)
		form := url.Values{
			"miesiac": {strconv.Itoa(int(m.Month()))},
			"rok":     {strconv.Itoa(m.Year())},
		}
		doc, err := s.client.document(ctx, http.MethodPost, calendarPath, form)
		if err != nil {
			return nil, err
		}
		for _, ev := range parseCalendar(doc, m.Year(), int(m.Month())) {
			if t, ok := delta.ParseDate(ev.Date); ok && t.Before(weekStart) {
				continue
			}
			out = append(out, ev)
		}
		if err := s.client.wait(ctx); err != nil {
			return nil, err
		}
	}
	slices.SortStableFunc(out, func(a, b records.CalendarEvent) int { return strings.Compare(a.Date, b.Date) })
	return out, nil
}

// Homework posts the date-range filter form of the homework page.
func (s *Session) Homework(ctx context.Context, _ *time.Time) ([]records.HomeworkItem, error) {
	now := s.client.cfg.Now().In(delta.Location)
	form := url.Values{
		"dataOd":      {now.AddDate(0, 0, -s.client.cfg.HomeworkDaysBack).Format("2006-01-02")},
		"dataDo":      {now.AddDate(0, 0, s.client.cfg.HomeworkDaysAhead).Format("2006-01-02")},
		"przedmiot":   {"-1"},
		"submitFiltr": {"Filtruj"},
	}
	doc, err := s.client.document(ctx, http.MethodPost, homeworkPath, form)
	if err != nil {
		return nil, err
	}
	return parseHomework(doc), nil
}

func (s *Session) Remarks(ctx context.Context, _ *time.Time) ([]records.Remark, error) {
	doc, err := s.client.document(ctx, http.MethodGet, remarksPath, nil)
	if err != nil {
		return nil, err
	}
	return parseRemarks(doc), nil
}

func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (c *Client) resolve(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return c.cfg.BaseURL + href
	}
	return c.baseURL.ResolveReference(u).String()
}
