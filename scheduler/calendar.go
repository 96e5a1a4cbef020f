package scheduler

import "time"

// workdayStartHour is the clock hour working days begin at when the
// calendar respects weekends.
const workdayStartHour = 9

// calendar converts between schedule hours and wall-clock time. Without
// weekend handling, hour h is simply the project start plus h hours. With
// it, only WorkingHoursPerDay hours per weekday count, starting at 09:00,
// and Saturdays and Sundays are skipped entirely.
type calendar struct {
	start           time.Time
	hoursPerDay     int
	respectWeekends bool
}

func newCalendar(c Constraints) calendar {
	return calendar{
		start:           c.ProjectStart,
		hoursPerDay:     c.WorkingHoursPerDay,
		respectWeekends: c.RespectWeekends,
	}
}

// origin is the first schedulable instant: the project start, snapped to
// 09:00 of the next weekday when weekends are respected.
func (c calendar) origin() time.Time {
	if !c.respectWeekends {
		return c.start
	}
	day := time.Date(c.start.Year(), c.start.Month(), c.start.Day(),
		workdayStartHour, 0, 0, 0, c.start.Location())
	for isWeekend(day) || day.Before(c.start) {
		day = nextWorkday(day)
	}
	return day
}

// timeOf converts a schedule hour to wall-clock time.
func (c calendar) timeOf(hour int) time.Time {
	if !c.respectWeekends {
		return c.start.Add(time.Duration(hour) * time.Hour)
	}
	day := c.origin()
	for hour >= c.hoursPerDay {
		hour -= c.hoursPerDay
		day = nextWorkday(day)
	}
	return day.Add(time.Duration(hour) * time.Hour)
}

// hourOf converts wall-clock time to the number of schedulable hours
// before it, clamped at zero.
func (c calendar) hourOf(t time.Time) int {
	if !c.respectWeekends {
		h := int(t.Sub(c.start).Hours())
		if h < 0 {
			return 0
		}
		return h
	}

	hours := 0
	day := c.origin()
	for {
		dayEnd := day.Add(time.Duration(c.hoursPerDay) * time.Hour)
		if !t.After(day) {
			return hours
		}
		if t.Before(dayEnd) {
			return hours + int(t.Sub(day).Hours())
		}
		hours += c.hoursPerDay
		day = nextWorkday(day)
	}
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

// nextWorkday returns 09:00 of the next weekday after t's day.
func nextWorkday(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(),
		workdayStartHour, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
	for isWeekend(day) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}
