package market

import (
	"fmt"
	"time"
	_ "time/tzdata" // release schedules are pinned to America/New_York
)

// Release is a weekly scheduled data release in a fixed time zone.
type Release struct {
	Name     string
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
}

var newYork = mustLoadLocation("America/New_York")

// EIAStorageReport is the EIA Weekly Natural Gas Storage Report.
var EIAStorageReport = Release{Name: "EIA", Weekday: time.Thursday, Hour: 10, Minute: 30, Location: newYork}

// COTReport is the CFTC Commitments of Traders release.
var COTReport = Release{Name: "COT", Weekday: time.Friday, Hour: 15, Minute: 30, Location: newYork}

// Next returns the first release instant strictly after now. A release
// happening at exactly now is treated as already out.
func (r Release) Next(now time.Time) time.Time {
	local := now.In(r.Location)
	days := (int(r.Weekday) - int(local.Weekday()) + 7) % 7
	target := time.Date(local.Year(), local.Month(), local.Day()+days, r.Hour, r.Minute, 0, 0, r.Location)
	if !target.After(now) {
		target = time.Date(target.Year(), target.Month(), target.Day()+7, r.Hour, r.Minute, 0, 0, r.Location)
	}
	return target
}

// Countdown is the time remaining until a release.
type Countdown struct {
	Release string        `json:"release"`
	At      time.Time     `json:"at"`
	In      time.Duration `json:"in"`
	Display string        `json:"display"`
}

// CountdownTo computes the countdown from now to the next release.
func CountdownTo(now time.Time, r Release) Countdown {
	at := r.Next(now)
	in := at.Sub(now)
	return Countdown{Release: r.Name, At: at, In: in, Display: formatCountdown(in)}
}

// formatCountdown renders a duration as "2d 5h 30m".
func formatCountdown(d time.Duration) string {
	d = d.Truncate(time.Minute)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	return fmt.Sprintf("%dd %dh %dm", days, hours, d/time.Minute)
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}
