package model

import (
	"math"
	"time"
)

// Epoch is the reference of the datasets' "days since 1900-01-01" time axis.
var Epoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// TimeToDays converts t to fractional days since Epoch.
func TimeToDays(t time.Time) float64 {
	return t.Sub(Epoch).Hours() / 24
}

// DaysToTime converts days since Epoch to a UTC time, rounded to the second.
func DaysToTime(days float64) time.Time {
	seconds := math.Round(days * 86400)
	return Epoch.Add(time.Duration(seconds) * time.Second)
}
