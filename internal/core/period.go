package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is a billing window identified by (month, year).
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

func NewPeriod(month, year int) Period {
	return Period{Month: month, Year: year}
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Month: int(t.Month()), Year: t.Year()}
}

// ParsePeriod accepts "MM/YYYY" and "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	var monthStr, yearStr string
	switch {
	case strings.Contains(s, "/"):
		parts := strings.SplitN(s, "/", 2)
		monthStr, yearStr = parts[0], parts[1]
	case strings.Contains(s, "-"):
		parts := strings.SplitN(s, "-", 2)
		yearStr, monthStr = parts[0], parts[1]
	default:
		return Period{}, NewValidationError("period", nil, fmt.Sprintf("%q: expected MM/YYYY or YYYY-MM", s))
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return Period{}, NewValidationError("period", ErrInvalidMonth, fmt.Sprintf("%q: month is not a number", s))
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return Period{}, NewValidationError("period", ErrInvalidYear, fmt.Sprintf("%q: year is not a number", s))
	}
	p := Period{Month: month, Year: year}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return NewValidationError("period", ErrInvalidMonth, fmt.Sprintf("month %d out of range 1-12", p.Month))
	}
	if p.Year < 1970 || p.Year > 9999 {
		return NewValidationError("period", ErrInvalidYear, fmt.Sprintf("year %d out of range", p.Year))
	}
	return nil
}

func (p Period) String() string {
	return fmt.Sprintf("%02d/%04d", p.Month, p.Year)
}

// Key is a stable identifier used in logs, events and sheet rows.
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (p Period) FirstDay() Date {
	return NewDate(p.Year, p.Month, 1)
}

func (p Period) LastDay() Date {
	return NewDate(p.Year, p.Month, DaysInMonth(p.Year, time.Month(p.Month)))
}

// Previous returns the calendar month before p.
func (p Period) Previous() Period {
	if p.Month == 1 {
		return Period{Month: 12, Year: p.Year - 1}
	}
	return Period{Month: p.Month - 1, Year: p.Year}
}

// ClosedBy reports whether the whole period lies before today.
func (p Period) ClosedBy(today Date) bool {
	return p.LastDay().Before(today)
}
