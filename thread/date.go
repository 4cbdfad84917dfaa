package thread

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	zoneAbbreviation = regexp.MustCompile(`\s*\(\s*[A-Za-z]{2,5}\s*\)\s*$`)
	numericOffset    = regexp.MustCompile(`[+-]\d{4}\b`)
)

// Layouts seen in quoted "Sent:" lines, which carry no zone.
var quotedDateLayouts = []string{
	"Monday, January 2, 2006 3:04 PM",
	"Monday, January 2, 2006 3:04:05 PM",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"2006-01-02 15:04:05",
}

// cleanDate drops a trailing "(PDT)" style abbreviation when a numeric offset
// is already present.
func cleanDate(s string) string {
	s = strings.TrimSpace(s)
	if numericOffset.MatchString(s) {
		s = zoneAbbreviation.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

// ParseParentDate parses a header date and pins it to a fixed zone carrying
// its own numeric offset.
func ParseParentDate(raw string) (time.Time, error) {
	cleaned := cleanDate(raw)
	if cleaned == "" {
		return time.Time{}, ErrMissingDate
	}

	t, err := mail.ParseDate(cleaned)
	if err != nil {
		t, err = dateparse.ParseIn(cleaned, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
		}
	}

	_, offset := t.Zone()
	return t.In(time.FixedZone(t.Format("-0700"), offset)), nil
}

// ParseQuotedDate parses the date of a quoted message. Its wall clock is read
// in loc, the zone of the enclosing message, even when the text carries an
// offset of its own.
func ParseQuotedDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	cleaned := cleanDate(raw)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrMalformedDate)
	}

	for _, layout := range quotedDateLayouts {
		if t, err := time.ParseInLocation(layout, cleaned, loc); err == nil {
			return t, nil
		}
	}

	t, err := mail.ParseDate(cleaned)
	if err != nil {
		t, err = dateparse.ParseIn(cleaned, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
		}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), nil
}
