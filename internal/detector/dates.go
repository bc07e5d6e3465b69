package detector

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/contractsplitter/internal/patterns"
)

var spanishMonths = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"setiembre":  time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

// ParseSpanishDate builds a calendar date from captured fields. month may be a
// number or a Spanish month name. Dates that do not exist, such as 31 de
// febrero, are rejected.
func ParseSpanishDate(day, month, year string) (time.Time, bool) {
	d, err := strconv.Atoi(strings.TrimSpace(day))
	if err != nil {
		return time.Time{}, false
	}
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil || y < 1900 || y > 2999 {
		return time.Time{}, false
	}
	var m time.Month
	month = strings.ToLower(strings.TrimSpace(month))
	if n, err := strconv.Atoi(month); err == nil {
		m = time.Month(n)
	} else if named, ok := spanishMonths[month]; ok {
		m = named
	}
	if m < time.January || m > time.December || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != m || t.Year() != y {
		return time.Time{}, false
	}
	return t, true
}

// MonthYear formats t as MM.YYYY.
func MonthYear(t time.Time) string {
	return fmt.Sprintf("%02d.%04d", int(t.Month()), t.Year())
}

// findDate returns the first valid date any expression yields in text.
// Expressions are tried in order; within one expression every match is tried
// before moving to the next.
func findDate(text string, exprs []patterns.Regex) (time.Time, bool) {
	for _, re := range exprs {
		if !re.Valid() {
			continue
		}
		di, mi, yi := re.SubexpIndex("day"), re.SubexpIndex("month"), re.SubexpIndex("year")
		if di < 0 || mi < 0 || yi < 0 {
			continue
		}
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if t, ok := ParseSpanishDate(m[di], m[mi], m[yi]); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// findDateInPages runs findDate over each page in order, expression-major so a
// specific expression on a later page beats a generic one on an earlier page.
func findDateInPages(pages []string, exprs []patterns.Regex) (time.Time, bool) {
	for _, re := range exprs {
		for _, text := range pages {
			if t, ok := findDate(text, []patterns.Regex{re}); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// clauseText returns the text from the end of the first heading match up to the
// next clause heading, or to the end of text.
func clauseText(text string, heading, next patterns.Regex) (string, bool) {
	if !heading.Valid() {
		return "", false
	}
	loc := heading.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	body := text[loc[1]:]
	if next.Valid() {
		if n := next.FindStringIndex(body); n != nil {
			body = body[:n[0]]
		}
	}
	return body, true
}
