package util

import (
	"time"

	"finscope/internal/domain"
)

// Regular session bounds for US equities, in exchange time.
const (
	usOpenMinute  = 9*60 + 30
	usCloseMinute = 16 * 60
)

// TradingCalendar provides market-hours awareness for a specific market.
// Holidays are whole-day closures keyed by exchange-local date.
type TradingCalendar struct {
	market   domain.Market
	loc      *time.Location
	holidays map[string]bool
}

// NewTradingCalendar creates a TradingCalendar for the given market. Only
// regular weekday sessions are known until holidays are added.
func NewTradingCalendar(market domain.Market, holidays ...time.Time) *TradingCalendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*3600)
	}
	tc := &TradingCalendar{market: market, loc: loc, holidays: make(map[string]bool)}
	tc.AddHolidays(holidays...)
	return tc
}

// AddHolidays marks the given exchange dates as closed.
func (tc *TradingCalendar) AddHolidays(days ...time.Time) {
	for _, d := range days {
		tc.holidays[d.Format(time.DateOnly)] = true
	}
}

// IsTradingDay reports whether t's exchange-local date has a session.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	local := t.In(tc.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !tc.holidays[local.Format(time.DateOnly)]
}

// IsMarketOpen returns whether the market is open at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	if !tc.IsTradingDay(t) {
		return false
	}
	local := t.In(tc.loc)
	m := local.Hour()*60 + local.Minute()
	return m >= usOpenMinute && m < usCloseMinute
}

// NextOpen returns the next market open time at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	local := t.In(tc.loc)
	for i := 0; i < 14; i++ {
		day := local.AddDate(0, 0, i)
		open := tc.at(day, usOpenMinute)
		if tc.IsTradingDay(open) && !open.Before(t) {
			return open
		}
	}
	return time.Time{}
}

// NextClose returns the next market close time at or after t.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	local := t.In(tc.loc)
	for i := 0; i < 14; i++ {
		day := local.AddDate(0, 0, i)
		closeAt := tc.at(day, usCloseMinute)
		if tc.IsTradingDay(closeAt) && !closeAt.Before(t) {
			return closeAt
		}
	}
	return time.Time{}
}

func (tc *TradingCalendar) at(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, tc.loc)
}
