package ingest

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// OwnerSentinel is the guest name the export uses for owner placeholder rows.
const OwnerSentinel = "PROPRIETAIRE"

var strictPolicy = bluemonday.StrictPolicy()

// cleanText strips markup and collapses whitespace in free-text cells.
func cleanText(s string) string {
	s = strictPolicy.Sanitize(s)
	return strings.Join(strings.Fields(s), " ")
}

// fold returns s upper-cased with diacritics removed, for keyword matching.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(strings.TrimSpace(out))
}

// IsOwnerPlaceholder reports whether a guest name marks an owner row.
func IsOwnerPlaceholder(guestName string) bool {
	return fold(guestName) == OwnerSentinel
}

// ParseAmount reads a monetary cell. Blank cells are zero and valid;
// non-numeric cells are zero and reported as invalid.
// Both "1 234,56" and "1,234.56" are understood.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '€', r == '$', r == '£':
			return -1
		}
		return r
	}, raw)
	if s == "" {
		return decimal.Zero, true
	}

	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.ReplaceAll(s, ",", ".")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseCount reads an integer cell such as nights or guests. Spreadsheet
// exports sometimes render these as "2.0". Blank is zero and valid.
func ParseCount(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	d, ok := ParseAmount(s)
	if !ok || !d.IsInteger() {
		return 0, false
	}
	return int(d.IntPart()), true
}

// ParseDay parses a calendar day using the first layout that matches.
// Bare numbers are read as spreadsheet serial dates.
func ParseDay(raw string, layouts []string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return toDay(t), true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return toDay(t), true
		}
	}
	return time.Time{}, false
}

func toDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
