package scheduler

import (
	"strconv"
	"strings"
	"time"

	"github.com/DanielVNZ/Trakt2EmbySync-LinuxTest/config"
)

// parseSyncTime parses an "HH:MM" wall-clock time, defaulting to midnight.
func parseSyncTime(s string) (hour, minute int) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) == 2 {
		h, errH := strconv.Atoi(parts[0])
		m, errM := strconv.Atoi(parts[1])
		if errH == nil && errM == nil && h >= 0 && h < 24 && m >= 0 && m < 60 {
			return h, m
		}
	}
	return 0, 0
}

func parseWeekday(s string) time.Weekday {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday":
		return time.Sunday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Monday
	}
}

// NextRunAfter computes the first moment strictly after the given time at
// which a sync is due for this schedule. Returns the zero time when the
// schedule is disabled or the interval is unknown.
func NextRunAfter(sched config.ScheduleSettings, after time.Time) time.Time {
	if !sched.Enabled {
		return time.Time{}
	}

	switch sched.Interval {
	case "1min":
		return after.Add(time.Minute)
	case "6h":
		return after.Add(6 * time.Hour)
	case "12h":
		return after.Add(12 * time.Hour)
	case "1d":
		return nextDaily(sched, after)
	case "1w":
		return nextWeekly(sched, after, 7)
	case "2w":
		return nextWeekly(sched, after, 14)
	case "1m":
		return nextMonthly(sched, after)
	default:
		return time.Time{}
	}
}

func nextDaily(sched config.ScheduleSettings, after time.Time) time.Time {
	hour, minute := parseSyncTime(sched.SyncTime)
	next := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func nextWeekly(sched config.ScheduleSettings, after time.Time, everyDays int) time.Time {
	hour, minute := parseSyncTime(sched.SyncTime)
	day := parseWeekday(sched.SyncDay)

	next := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, after.Location())
	for next.Weekday() != day || !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	if everyDays > 7 {
		next = next.AddDate(0, 0, everyDays-7)
	}
	return next
}

func nextMonthly(sched config.ScheduleSettings, after time.Time) time.Time {
	hour, minute := parseSyncTime(sched.SyncTime)
	day := sched.SyncDate
	if day < 1 || day > 28 {
		day = 1
	}

	next := time.Date(after.Year(), after.Month(), day, hour, minute, 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}
