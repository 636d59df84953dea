package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Month is a calendar month, ordered by Year then Mon.
type Month struct {
	Year int
	Mon  time.Month
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Mon: t.Month()}
}

// ParseMonth parses "2006-01". A full date is accepted and truncated.
func ParseMonth(s string) (Month, error) {
	if t, err := time.Parse("2006-01", s); err == nil {
		return MonthOf(t), nil
	}
	t, err := parseDay(s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q", s)
	}
	return MonthOf(t), nil
}

// Before reports whether m is strictly earlier than o.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Mon < o.Mon
}

// Contains reports whether t falls in m.
func (m Month) Contains(t time.Time) bool {
	return MonthOf(t) == m
}

// AddMonths returns the month n months after m; n may be negative.
func (m Month) AddMonths(n int) Month {
	return MonthOf(time.Date(m.Year, m.Mon+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Mon))
}

// MarshalJSON writes the month as "2006-01".
func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts "2006-01" or any date inside the month.
func (m *Month) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
