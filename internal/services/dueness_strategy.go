package services

// This file implements the Strategy Pattern for recurrence scheduling.
// Each frequency (daily, weekly, monthly, yearly) has its own strategy that
// computes the occurrence following an anchor date.

import (
	"fmt"
	"time"

	"fintrack/internal/core"
)

// DueAdvancer is the strategy interface for stepping a schedule forward.
type DueAdvancer interface {
	// Next returns the occurrence after anchor. preferredDay is the day of
	// month the schedule aims for; calendar-day strategies ignore it.
	Next(anchor core.Date, preferredDay int) core.Date
}

// DailyAdvancer steps one day.
type DailyAdvancer struct{}

func (DailyAdvancer) Next(anchor core.Date, _ int) core.Date {
	return anchor.AddDays(1)
}

// WeeklyAdvancer steps seven days.
type WeeklyAdvancer struct{}

func (WeeklyAdvancer) Next(anchor core.Date, _ int) core.Date {
	return anchor.AddDays(7)
}

// MonthlyAdvancer steps one calendar month, clamping to the last valid day
// when the preferred day does not exist in the target month.
type MonthlyAdvancer struct{}

func (MonthlyAdvancer) Next(anchor core.Date, preferredDay int) core.Date {
	return addMonthsClamped(anchor, 1, preferredDay)
}

// YearlyAdvancer steps one calendar year with the same month-end clamp
// (Feb 29 becomes Feb 28 in common years).
type YearlyAdvancer struct{}

func (YearlyAdvancer) Next(anchor core.Date, preferredDay int) core.Date {
	return addMonthsClamped(anchor, 12, preferredDay)
}

func addMonthsClamped(anchor core.Date, months, preferredDay int) core.Date {
	if preferredDay <= 0 {
		preferredDay = anchor.Day()
	}
	// Day 1 never overflows, so AddDate only moves the month here.
	first := time.Date(anchor.Year(), anchor.Time.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	day := preferredDay
	if last := core.DaysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return core.NewDate(first.Year(), int(first.Month()), day)
}

// dueStrategies maps frequencies to their advancers.
var dueStrategies = map[core.Frequency]DueAdvancer{
	core.Daily:   DailyAdvancer{},
	core.Weekly:  WeeklyAdvancer{},
	core.Monthly: MonthlyAdvancer{},
	core.Yearly:  YearlyAdvancer{},
}

// GetDueAdvancer returns the strategy for a frequency or a ValidationError.
func GetDueAdvancer(frequency core.Frequency) (DueAdvancer, error) {
	advancer, ok := dueStrategies[frequency]
	if !ok {
		return nil, core.NewValidationError("frequency", core.ErrUnknownFrequency,
			fmt.Sprintf("unknown frequency %q", frequency))
	}
	return advancer, nil
}

// RegisterDueAdvancer installs a strategy for a new frequency.
func RegisterDueAdvancer(frequency core.Frequency, advancer DueAdvancer) {
	dueStrategies[frequency] = advancer
}
