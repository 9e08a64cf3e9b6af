package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BTreeMap/WorkLog/internal/models"
)

// dateChoiceDays is how many recent days the date steps offer.
const dateChoiceDays = 7

var errFutureDate = errors.New("date is in the future")

// today returns midnight of the current day in the engine's time zone.
func (e *Engine) today() time.Time {
	n := e.now().In(e.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, e.loc)
}

// dateChoices lists the last dateChoiceDays days, newest first.
func (e *Engine) dateChoices() []Choice {
	today := e.today()
	out := make([]Choice, 0, dateChoiceDays)
	for i := 0; i < dateChoiceDays; i++ {
		d := today.AddDate(0, 0, -i)
		label := d.Format("02.01 Mon")
		switch i {
		case 0:
			label = "Today " + d.Format("02.01")
		case 1:
			label = "Yesterday " + d.Format("02.01")
		}
		out = append(out, Choice{ID: d.Format(models.DateLayout), Label: label})
	}
	return out
}

// parseDate reads YYYY-MM-DD, dd.mm.yyyy or dd.mm. A dd.mm that would fall
// after today means the same day of the previous year. It returns
// ok=false when s is not a date at all and errFutureDate for dates after today.
func (e *Engine) parseDate(s string) (string, bool, error) {
	s = strings.TrimSpace(s)
	today := e.today()
	var d time.Time
	var err error
	switch {
	case strings.Count(s, "-") == 2:
		d, err = time.ParseInLocation(models.DateLayout, s, e.loc)
	case strings.Count(s, ".") == 2:
		d, err = time.ParseInLocation("2.1.2006", s, e.loc)
	case strings.Count(s, ".") == 1:
		d, err = time.ParseInLocation("2.1.2006", s+"."+strconv.Itoa(today.Year()), e.loc)
		if err == nil && d.After(today) {
			d, err = time.ParseInLocation("2.1.2006", s+"."+strconv.Itoa(today.Year()-1), e.loc)
		}
	default:
		return "", false, nil
	}
	if err != nil {
		return "", true, err
	}
	if d.After(today) {
		return "", true, errFutureDate
	}
	return d.Format(models.DateLayout), true, nil
}

// resolveDate handles input of a date step. The returned message is non-empty
// when the input must be re-prompted.
func (t *turn) resolveDate(in Input) (string, string) {
	if in.Selection == "" {
		date, isDate, err := t.e.parseDate(in.Text)
		switch {
		case isDate && errors.Is(err, errFutureDate):
			return "", textDateFuture
		case isDate && err != nil:
			return "", textDateInvalid
		case isDate:
			return date, ""
		}
	}
	c, ok := t.choice(in)
	if !ok {
		return "", textDateInvalid
	}
	return c.ID, ""
}

// parseBounded parses an integer in [lo, hi].
func parseBounded(s string, lo, hi int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

// textInRange trims s and checks its length in characters.
func textInRange(s string, lo, hi int) (string, bool) {
	s = strings.Join(strings.Fields(s), " ")
	n := utf8.RuneCountInString(s)
	return s, n >= lo && n <= hi
}

// displayDate renders a stored date as dd.mm.yyyy.
func displayDate(date string) string {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("02.01.2006")
}

func describeWork(r models.WorkReport) string {
	parts := []string{displayDate(r.WorkDate)}
	if r.Machinery != "" {
		parts = append(parts, r.Machinery)
	}
	parts = append(parts, r.Activity, r.Location)
	if r.Crop != "" {
		parts = append(parts, r.Crop)
	}
	return fmt.Sprintf("%s, %dh", strings.Join(parts, ", "), r.Hours)
}
