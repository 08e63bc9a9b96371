// Package report renders upcoming collections for the console.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"binday/internal/model"
)

// DisplayLayout is the long date form used in console output.
const DisplayLayout = "Monday, 02 January 2006"

// Write prints collections grouped by date. Nothing is printed for an empty
// list.
func Write(w io.Writer, collections []model.Collection) error {
	sorted := append([]model.Collection(nil), collections...)
	model.Sort(sorted)

	for i, day := range model.GroupByDay(sorted) {
		heading := "Next bin collection on %s:\n"
		if i > 0 {
			heading = "Then on %s:\n"
		}
		if _, err := fmt.Fprintf(w, heading, day.Date.Format(DisplayLayout)); err != nil {
			return err
		}
		for _, bin := range day.BinTypes {
			if _, err := fmt.Fprintf(w, " - %s\n", bin); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteJSON prints collections as an indented JSON array.
func WriteJSON(w io.Writer, collections []model.Collection) error {
	if collections == nil {
		collections = []model.Collection{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(collections)
}
