package handlers

import (
	"regexp"
	"strconv"
	"time"
)

// whenPattern matches "DD.MM HH:MM" or "DD.MM.YYYY HH:MM" anywhere in a message.
var whenPattern = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})(?:\.(\d{4}))?\s+(\d{1,2}):(\d{2})\b`)

// parseWhen extracts an explicit publication instant from free-form message
// text. Without a year the nearest future occurrence is assumed. Instants in
// the past (or nonsense dates) yield nil, leaving the slot search to pick a
// time instead.
func parseWhen(text string, now time.Time) *time.Time {
	match := whenPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}

	day, _ := strconv.Atoi(match[1])
	month, _ := strconv.Atoi(match[2])
	hour, _ := strconv.Atoi(match[4])
	minute, _ := strconv.Atoi(match[5])

	if month < 1 || month > 12 || hour > 23 || minute > 59 {
		return nil
	}

	year := now.Year()
	explicitYear := match[3] != ""
	if explicitYear {
		year, _ = strconv.Atoi(match[3])
	}

	candidate := time.Date(year, time.Month(month), day, hour, minute, 0, 0, now.Location())
	// time.Date normalizes overflow (e.g. 31.02 becomes 02.03 or 03.03);
	// treat that as an invalid date rather than silently shifting it.
	if candidate.Day() != day || candidate.Month() != time.Month(month) {
		return nil
	}

	if !candidate.After(now) {
		if explicitYear {
			return nil
		}
		candidate = candidate.AddDate(1, 0, 0)
		if candidate.Day() != day { // 29.02 rolled into a non-leap year
			return nil
		}
	}

	return &candidate
}
