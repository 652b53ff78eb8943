// Package gps provides functions to handle Time <> GPS epoch conversion,
// as used by the DeviceTimeAns mac-command.
package gps

import (
	"time"
)

var gpsEpochTime = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// leapSecondsTable holds the UTC instants directly after a leap second was
// inserted. GPS time does not observe leap seconds, so each entry shifts
// the two timescales by one second.
var leapSecondsTable = []time.Time{
	time.Date(1981, time.July, 1, 0, 0, 0, 0, time.UTC),
	time.Date(1982, time.July, 1, 0, 0, 0, 0, time.UTC),
	time.Date(1983, time.July, 1, 0, 0, 0, 0, time.UTC),
	time.Date(1985, time.July, 1, 0, 0, 0, 0, time.UTC),
	time.Date(1988, time.January, 1, 0, 0, 0, 0, time.UTC),
	time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC),
	time.Date(1991, time.January, 1, 0, 0, 0, 0, time.UTC),
	time.Date(1992, time.July, 1, 0, 0, 0, 0, time.UTC),
	time.Date(1993, time.July, 1, 0, 0, 0, 0, time.UTC),
	time.Date(1994, time.July, 1, 0, 0, 0, 0, time.UTC),
	time.Date(1996, time.January, 1, 0, 0, 0, 0, time.UTC),
	time.Date(1997, time.July, 1, 0, 0, 0, 0, time.UTC),
	time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC),
	time.Date(2006, time.January, 1, 0, 0, 0, 0, time.UTC),
	time.Date(2009, time.January, 1, 0, 0, 0, 0, time.UTC),
	time.Date(2012, time.July, 1, 0, 0, 0, 0, time.UTC),
	time.Date(2015, time.July, 1, 0, 0, 0, 0, time.UTC),
	time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC),
}

// Time implements GPS time.
type Time time.Time

// TimeSinceGPSEpoch returns the time since the GPS epoch (1980-01-06,
// including leap seconds).
func (t Time) TimeSinceGPSEpoch() time.Duration {
	var offset time.Duration
	for _, ls := range leapSecondsTable {
		if !ls.After(time.Time(t)) {
			offset += time.Second
		}
	}
	return time.Time(t).Sub(gpsEpochTime) + offset
}

// NewTimeFromTimeSinceGPSEpoch returns a new Time given a time since the
// GPS epoch.
func NewTimeFromTimeSinceGPSEpoch(sinceEpoch time.Duration) Time {
	t := gpsEpochTime.Add(sinceEpoch)
	for i, ls := range leapSecondsTable {
		gpsInstant := ls.Sub(gpsEpochTime) + time.Duration(i+1)*time.Second
		if sinceEpoch >= gpsInstant {
			t = t.Add(-time.Second)
		}
	}
	return Time(t)
}

// String implements fmt.Stringer.
func (t Time) String() string {
	return time.Time(t).String()
}
