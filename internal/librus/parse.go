package librus

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lewisedginton/librus_mcp/internal/records"
)

var (
	titleDate     = regexp.MustCompile(`Data:\s*(\d{4}-\d{2}-\d{2})`)
	titleCategory = regexp.MustCompile(`Kategoria:\s*([^<\n]+)`)
	titleTeacher  = regexp.MustCompile(`Nauczyciel:\s*([^<\n]+)`)
	titleWeight   = regexp.MustCompile(`Waga:\s*([^<\n]+)`)
	titleComment  = regexp.MustCompile(`(?s)Komentarz:\s*(.+?)$`)
	titleDesc     = regexp.MustCompile(`(?s)Opis:\s*(.+?)(?:<br\s*/?>\s*Data dodania|$)`)
	lessonNumber  = regexp.MustCompile(`Nr lekcji:\s*(\d+)`)
	brTag         = regexp.MustCompile(`(?i)<br\s*/?>`)
	htmlTag       = regexp.MustCompile(`<[^>]+>`)
)

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func submatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// multiline converts an HTML fragment to plain text keeping line breaks.
func multiline(fragment string) string {
	s := brTag.ReplaceAllString(fragment, "\n")
	s = html.UnescapeString(htmlTag.ReplaceAllString(s, ""))
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// messageRow is one line of the inbox list; the body comes from its own page.
type messageRow struct {
	records.Message
	href string
}

func parseMessageList(doc *goquery.Document) []messageRow {
	rows := []messageRow{}
	doc.Find("table.decorated.stretch > tbody > tr").Each(func(_ int, tr *goquery.Selection) {
		link := tr.Find("td:nth-child(4) a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		alt := strings.ToLower(tr.Find("td:nth-child(1) img").AttrOr("alt", ""))
		read := strings.Contains(alt, "przeczytana") && !strings.Contains(alt, "nieprzeczytana")
		if tr.Find("td[style*='bold']").Length() > 0 {
			read = false
		}
		rows = append(rows, messageRow{
			Message: records.Message{
				Sender: text(tr.Find("td:nth-child(3)")),
				Title:  text(link),
				Date:   text(tr.Find("td:nth-child(5)")),
				IsRead: read,
			},
			href: href,
		})
	})
	return rows
}

func parseMessageBody(doc *goquery.Document) (string, []string) {
	content := ""
	if frag, err := doc.Find(".container-message-content").First().Html(); err == nil {
		content = multiline(frag)
	}

	attachments := []string{}
	inFiles := false
	doc.Find("table tr").Each(func(_ int, tr *goquery.Selection) {
		td := tr.Find("td").First()
		if td.Length() == 0 {
			return
		}
		if strings.Contains(td.Text(), "Pliki:") {
			inFiles = true
			return
		}
		if inFiles && td.Find("img[src*='filetype_icons']").Length() > 0 {
			if name := text(td); name != "" {
				attachments = append(attachments, name)
			}
		}
	})
	return content, attachments
}

func parseAnnouncements(doc *goquery.Document, limit int) []records.Announcement {
	out := []records.Announcement{}
	doc.Find("table.decorated.big.center.printable").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		head := table.Find("thead > tr > td[colspan='2']")
		if head.Length() == 0 {
			return true
		}
		a := records.Announcement{Title: text(head)}
		table.Find("tbody > tr").Each(func(_ int, tr *goquery.Selection) {
			label := text(tr.Find("th"))
			value := tr.Find("td")
			switch label {
			case "Dodał":
				a.Author = text(value)
			case "Data publikacji":
				a.Date = text(value)
			case "Treść":
				if frag, err := value.Html(); err == nil {
					a.Content = multiline(frag)
				}
			}
		})
		out = append(out, a)
		return len(out) < limit
	})
	return out
}

func parseGrades(doc *goquery.Document) []records.Grade {
	var table *goquery.Selection
	doc.Find("table.decorated.stretch").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		style := strings.ReplaceAll(t.AttrOr("style", ""), " ", "")
		if strings.Contains(style, "display:none") {
			return true
		}
		found := false
		t.Find("thead td").Each(func(_ int, td *goquery.Selection) {
			if text(td) == "Przedmiot" {
				found = true
			}
		})
		if found {
			table = t
			return false
		}
		return true
	})

	out := []records.Grade{}
	if table == nil {
		return out
	}
	table.ChildrenFiltered("tbody").ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.AttrOr("name", "") == "przedmioty_all" || tr.HasClass("bolded") {
			return
		}
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 6 {
			return
		}
		subject := text(cells.Eq(1))
		if subject == "" || subject == "Przedmiot" || strings.Contains(subject, "Zachowanie") {
			return
		}
		for _, col := range []struct {
			idx    int
			period string
		}{{2, "1"}, {5, "2"}} {
			cells.Eq(col.idx).Find("a.ocena").Each(func(_ int, a *goquery.Selection) {
				title := a.AttrOr("title", "")
				date := submatch(titleDate, title)
				if date == "" {
					return
				}
				out = append(out, records.Grade{
					Subject:  subject,
					Grade:    text(a),
					Date:     date,
					Category: submatch(titleCategory, title),
					Weight:   submatch(titleWeight, title),
					Teacher:  submatch(titleTeacher, title),
					Comment:  strings.TrimSpace(brTag.ReplaceAllString(submatch(titleComment, title), " ")),
					Period:   col.period,
				})
			})
		}
	})
	return out
}

func calendarKind(s string) string {
	for _, kind := range []string{"Sprawdzian", "Kartkówka", "Wywiadówka"} {
		if strings.Contains(s, kind) {
			return kind
		}
	}
	return "Inne"
}

// parseCalendar reads one month of the timetable calendar. Day cells only
// carry the day number, so year and month come from the request.
func parseCalendar(doc *goquery.Document, year, month int) []records.CalendarEvent {
	out := []records.CalendarEvent{}
	doc.Find("table.kalendarz.decorated.center tbody tr td").Each(func(_ int, cell *goquery.Selection) {
		day := cell.ChildrenFiltered("div.kalendarz-dzien")
		if day.Length() == 0 {
			return
		}
		num := text(day.Find("div.kalendarz-numer-dnia"))
		if num == "" {
			return
		}
		if len(num) == 1 {
			num = "0" + num
		}
		date := fmt.Sprintf("%04d-%02d-%s", year, month, num)

		day.Find("table tbody tr td").Each(func(_ int, ev *goquery.Selection) {
			frag, _ := ev.Html()
			lines := strings.Split(multiline(frag), "\n")
			content := strings.Join(strings.Fields(strings.Join(lines, " ")), " ")
			if content == "" {
				return
			}
			title := ev.AttrOr("title", "")
			desc := submatch(titleDesc, title)
			if desc == "" {
				desc = content
			} else {
				desc = multiline(desc)
			}
			out = append(out, records.CalendarEvent{
				Date:        date,
				Title:       lines[0],
				Category:    calendarKind(content),
				Subject:     text(ev.Find("span.przedmiot")),
				Lesson:      submatch(lessonNumber, content),
				Teacher:     submatch(titleTeacher, title),
				Description: desc,
			})
		})
	})
	return out
}

// parseHomework reads the homework list. Columns: subject, teacher, title,
// category, date added, date due.
func parseHomework(doc *goquery.Document) []records.HomeworkItem {
	out := []records.HomeworkItem{}
	doc.Find("table.decorated.myHomeworkTable > tbody > tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 6 {
			return
		}
		out = append(out, records.HomeworkItem{
			Subject:   text(cells.Eq(0)),
			Teacher:   text(cells.Eq(1)),
			Title:     text(cells.Eq(2)),
			Category:  text(cells.Eq(3)),
			DateAdded: text(cells.Eq(4)),
			DateDue:   text(cells.Eq(5)),
		})
	})
	return out
}

// parseRemarks reads teacher remarks. Columns: content, category, date, teacher.
func parseRemarks(doc *goquery.Document) []records.Remark {
	out := []records.Remark{}
	doc.Find("table.decorated.stretch > tbody > tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 4 {
			return
		}
		content := text(cells.Eq(0))
		if content == "" {
			return
		}
		out = append(out, records.Remark{
			Content:  content,
			Category: text(cells.Eq(1)),
			Date:     text(cells.Eq(2)),
			Teacher:  text(cells.Eq(3)),
		})
	})
	return out
}
