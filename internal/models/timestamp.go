package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Epoch values at or above this are interpreted as milliseconds. Epoch
// seconds don't reach 1e12 until the year 33658.
const epochMillisCutoff = 1e12

// FlexTime accepts the three timestamp shapes that reach the pipeline:
// epoch seconds/milliseconds, an ISO-8601 string, or a {"date": ...} /
// {"$date": ...} wrapper. Whatever the wire shape, it normalizes to a
// single time.Time at the boundary.
type FlexTime struct {
	time.Time
}

func NewFlexTime(t time.Time) FlexTime {
	return FlexTime{Time: t}
}

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// ParseTimestamp normalizes any of the accepted timestamp shapes into a
// time.Time. Anything else is a parse failure.
func ParseTimestamp(v any) (time.Time, error) {
	switch ts := v.(type) {
	case float64:
		return epochToTime(ts), nil
	case int64:
		return epochToTime(float64(ts)), nil
	case int:
		return epochToTime(float64(ts)), nil
	case string:
		return parseISO(ts)
	case map[string]any:
		if inner, ok := ts["$date"]; ok {
			return ParseTimestamp(inner)
		}
		if inner, ok := ts["date"]; ok {
			return ParseTimestamp(inner)
		}
		return time.Time{}, fmt.Errorf("timestamp wrapper missing date key: %v", ts)
	case time.Time:
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp shape: %T", v)
}

func epochToTime(v float64) time.Time {
	if v >= epochMillisCutoff {
		return time.UnixMilli(int64(v))
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

func parseISO(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	// Feeds sometimes ship a bare "Z" suffix with no fractional seconds,
	// or no zone designator at all.
	trimmed := strings.TrimSuffix(s, "Z")
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}
