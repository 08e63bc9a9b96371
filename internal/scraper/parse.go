package scraper

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"binday/internal/model"
)

const (
	columnAssetType = "AssetTypeName"
	columnNextDate  = "NextInstance"
)

// BinNames maps the council's asset type names to display labels.
var BinNames = map[string]string{
	"140L Food & Garden (Green Lid)":        "Green Bin",
	"180L Metal Glass & Plastic (Blue Lid)": "Blue Bin",
	"180L Paper & Card (Red Lid)":           "Red Bin",
	"180L Refuse (Grey Lid)":                "Black Bin",
}

type dataResponse struct {
	Data string `json:"data"`
}

// Parse returns the known bins in raw that are due between the start of
// now's day and now+window, sorted by date. A payload without data yields
// an empty list.
func Parse(raw []byte, now time.Time, window time.Duration) ([]model.Collection, error) {
	all, err := ParseAll(raw, now.Location())
	if err != nil {
		return nil, err
	}
	return model.Within(all, now, window), nil
}

// ParseAll returns every known bin in raw, sorted by date. Dates are placed
// at midnight in loc.
func ParseAll(raw []byte, loc *time.Location) ([]model.Collection, error) {
	collections := []model.Collection{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return collections, nil
	}

	var resp dataResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(resp.Data) == "" {
		return collections, nil
	}

	rows, err := decodeRows(resp.Data)
	if err != nil {
		return nil, err
	}

	for i, row := range rows {
		assetType, ok := row[columnAssetType]
		if !ok {
			return nil, fmt.Errorf("%w: row %d: missing %s", ErrMalformedPayload, i, columnAssetType)
		}
		next, ok := row[columnNextDate]
		if !ok {
			return nil, fmt.Errorf("%w: row %d: missing %s", ErrMalformedPayload, i, columnNextDate)
		}

		date, err := model.ParseDate(next, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedPayload, i, err)
		}

		label, ok := BinNames[assetType]
		if !ok {
			continue
		}
		collections = append(collections, model.Collection{BinType: label, Date: date})
	}

	model.Sort(collections)
	return collections, nil
}

// decodeRows walks the XML table and returns the columns of every Row
// element. Rows and result cells may appear at any depth; the first cell for
// a column wins.
func decodeRows(data string) ([]map[string]string, error) {
	dec := xml.NewDecoder(strings.NewReader(data))

	var (
		rows     []map[string]string
		row      map[string]string
		rowDepth int
		column   string
		cell     strings.Builder
		inCell   bool
		depth    int
		sawRoot  bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decoding xml: %v", ErrMalformedPayload, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			sawRoot = true
			switch {
			case t.Name.Local == "Row" && row == nil:
				row = map[string]string{}
				rowDepth = depth
			case t.Name.Local == "result" && row != nil && !inCell:
				column = attr(t, "column")
				inCell = column != ""
				cell.Reset()
			}
		case xml.CharData:
			if inCell {
				cell.Write(t)
			}
		case xml.EndElement:
			if inCell && t.Name.Local == "result" {
				if _, seen := row[column]; !seen {
					row[column] = strings.TrimSpace(cell.String())
				}
				inCell = false
			}
			if row != nil && depth == rowDepth {
				rows = append(rows, row)
				row = nil
			}
			depth--
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("%w: no xml element in data", ErrMalformedPayload)
	}
	return rows, nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
