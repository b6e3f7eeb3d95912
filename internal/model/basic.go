package model

import "time"

// Symbol identifies a tradable instrument. Option contracts use the OCC-style
// key produced by ContractSpec.Key; equities use the plain ticker.
type Symbol string

// OptionMultiplier is the contract multiplier for US equity options.
const OptionMultiplier = 100

// Date is a calendar day. Intraday time is dropped so values compare and hash
// as cache keys.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts the day by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// Weekday returns the day of week.
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// IsTradingDay reports whether the day is a weekday. Exchange holidays are the
// calendar collaborator's concern; the core only skips weekends.
func (d Date) IsTradingDay() bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (d Date) String() string {
	return d.Time().Format("2006-01-02")
}
