package models

import (
	"strconv"
	"strings"
	"time"
)

// SendWindow is the recurring day/time range during which send-type actions
// may fire. It has no persisted lifecycle of its own; it is evaluated fresh
// against the definition settings on every send.
type SendWindow struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"startTime"` // "HH:MM"
	EndTime   string `json:"endTime"`   // "HH:MM"
	Days      []int  `json:"days"`      // 0=Sunday .. 6=Saturday
	Timezone  string `json:"timezone"`
}

// Contains reports whether now falls inside the window. A nil or disabled
// window always allows sending. An unparseable timezone falls back to UTC,
// and unparseable times fail open so a misconfigured window never silently
// blocks a whole workflow.
//
// Windows that cross midnight (startTime > endTime) are evaluated as a
// plain range comparison and therefore never match; see DESIGN.md.
func (w *SendWindow) Contains(now time.Time) bool {
	if w == nil || !w.Enabled {
		return true
	}

	loc, err := time.LoadLocation(w.Timezone)
	if err != nil || w.Timezone == "" {
		loc = time.UTC
	}

	local := now.In(loc)

	if !w.allowsDay(local.Weekday()) {
		return false
	}

	start, okStart := minutesOfDay(w.StartTime)
	end, okEnd := minutesOfDay(w.EndTime)

	if !okStart || !okEnd {
		return true
	}

	minute := local.Hour()*60 + local.Minute()

	return minute >= start && minute < end
}

func (w *SendWindow) allowsDay(day time.Weekday) bool {
	for _, d := range w.Days {
		if d == int(day) {
			return true
		}
	}

	return false
}

// minutesOfDay parses "HH:MM" into minutes since midnight.
func minutesOfDay(value string) (int, bool) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}

	return hour*60 + minute, true
}
