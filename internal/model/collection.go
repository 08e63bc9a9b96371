package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// DateLayout is the wire format for collection dates.
const DateLayout = "2006-01-02"

// parseLayout also accepts single-digit months and days.
const parseLayout = "2006-1-2"

// Collection is a single upcoming bin collection for a property.
type Collection struct {
	BinType string
	Date    time.Time
}

type collectionJSON struct {
	BinType string `json:"bin_type"`
	Date    string `json:"date"`
}

// Day groups the bins collected on the same date.
type Day struct {
	Date     time.Time
	BinTypes []string
}

// DateString returns the collection date as YYYY-MM-DD.
func (c Collection) DateString() string {
	return c.Date.Format(DateLayout)
}

// MarshalJSON encodes the date without a time component.
func (c Collection) MarshalJSON() ([]byte, error) {
	return json.Marshal(collectionJSON{BinType: c.BinType, Date: c.DateString()})
}

// UnmarshalJSON decodes a collection, placing the date in the local zone.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var raw collectionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	date, err := ParseDate(raw.Date, time.Local)
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", raw.Date, err)
	}
	c.BinType = raw.BinType
	c.Date = date
	return nil
}

// ParseDate parses a YYYY-MM-DD date at midnight in loc. Month and day may
// omit their leading zero.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(parseLayout, s, loc)
}

// Within returns the collections dated from the start of now's day up to
// now+window inclusive. The input slice is not modified.
func Within(collections []Collection, now time.Time, window time.Duration) []Collection {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	limit := now.Add(window)

	out := []Collection{}
	for _, c := range collections {
		if c.Date.Before(today) || c.Date.After(limit) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Sort orders collections by date, then by bin type.
func Sort(collections []Collection) {
	sort.SliceStable(collections, func(i, j int) bool {
		if !collections[i].Date.Equal(collections[j].Date) {
			return collections[i].Date.Before(collections[j].Date)
		}
		return collections[i].BinType < collections[j].BinType
	})
}

// GroupByDay groups sorted collections into consecutive days.
func GroupByDay(collections []Collection) []Day {
	var days []Day
	for _, c := range collections {
		if n := len(days); n > 0 && days[n-1].Date.Equal(c.Date) {
			days[n-1].BinTypes = append(days[n-1].BinTypes, c.BinType)
			continue
		}
		days = append(days, Day{Date: c.Date, BinTypes: []string{c.BinType}})
	}
	return days
}
