package spaces

import (
	"strconv"
	"strings"
	"time"

	"parktayo/internal/shared/apperr"
)

// weekdayKeys maps time.Weekday onto the lowercase schedule keys.
var weekdayKeys = map[time.Weekday]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}

// ValidateWindow rejects a booking window that falls outside the space's
// schedule. 24-hour spaces always pass. Day-scheduled spaces require the
// whole window inside one local day's open/close range; crossing midnight
// on a scheduled space is always outside hours.
func (s *ParkingSpace) ValidateWindow(start, end time.Time) error {
	if s.OperatingHours.Is24Hours {
		return nil
	}
	if !end.After(start) {
		return apperr.New(apperr.KindInvalidInput, "booking window must end after it starts")
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		loc = time.UTC
	}
	localStart := start.In(loc)
	localEnd := end.In(loc)

	sy, sm, sd := localStart.Date()
	ey, em, ed := localEnd.Date()
	if sy != ey || sm != em || sd != ed {
		return apperr.New(apperr.KindOutsideOperatingHours,
			"booking window crosses midnight on a space with limited hours")
	}

	window, ok := s.OperatingHours.Schedule[weekdayKeys[localStart.Weekday()]]
	if !ok {
		return apperr.Newf(apperr.KindOutsideOperatingHours,
			"space is closed on %s", strings.ToLower(localStart.Weekday().String()))
	}

	open, err := minutesOfDay(window.Open)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "malformed opening time", err)
	}
	closeAt, err := minutesOfDay(window.Close)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "malformed closing time", err)
	}

	startMin := localStart.Hour()*60 + localStart.Minute()
	endMin := localEnd.Hour()*60 + localEnd.Minute()
	if startMin < open || endMin > closeAt {
		return apperr.Newf(apperr.KindOutsideOperatingHours,
			"space is open %s-%s on %s", window.Open, window.Close,
			strings.ToLower(localStart.Weekday().String()))
	}
	return nil
}

// minutesOfDay parses "HH:MM" into minutes since midnight.
func minutesOfDay(hhmm string) (int, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, apperr.Newf(apperr.KindInvalidInput, "invalid time %q, want HH:MM", hhmm)
	}
	// "24:00" is accepted as end-of-day for closing times.
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, apperr.Newf(apperr.KindInvalidInput, "invalid hour in %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, apperr.Newf(apperr.KindInvalidInput, "invalid minute in %q", hhmm)
	}
	return h*60 + m, nil
}
