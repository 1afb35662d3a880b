// Package extraction normalizes raw result records into ExportItems using an
// ordered list of field mappings.
package extraction

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ncruces/go-strftime"
)

// Extract converts raw records into export items. Records that are not JSON
// objects, or that lack a usable content or date after mapping, are dropped.
// The relative order of surviving records is preserved. Extract never fails.
func Extract(records []json.RawMessage, mappings []FieldMapping) []ExportItem {
	items := make([]ExportItem, 0, len(records))
	for _, raw := range records {
		item, ok := extractOne(raw, mappings)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items
}

func extractOne(raw json.RawMessage, mappings []FieldMapping) (ExportItem, bool) {
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil || record == nil {
		return ExportItem{}, false
	}

	var (
		id       *string
		content  *string
		date     *time.Time
		metadata = make(map[string]string)
		consumed = make(map[string]bool, len(mappings))
	)

	for _, m := range mappings {
		value, ok := record[m.From]
		if !ok {
			continue
		}
		consumed[m.From] = true

		switch m.To {
		case ToID:
			id = stringPtr(value)
		case ToContent:
			content = stringPtr(value)
		case ToDate:
			if !m.Kind.IsDate() {
				continue
			}
			s, ok := value.(string)
			if !ok {
				continue
			}
			d, err := parseDate(s, m.Kind.DateFormat)
			if err != nil {
				return ExportItem{}, false
			}
			date = &d
		default:
			if s, ok := value.(string); ok {
				metadata[m.To] = s
			}
		}
	}

	for key, value := range record {
		if consumed[key] {
			continue
		}
		if s, ok := value.(string); ok {
			metadata[key] = s
		}
	}

	if content == nil || date == nil {
		return ExportItem{}, false
	}
	return ExportItem{
		ID:       id,
		Content:  *content,
		Date:     *date,
		Metadata: metadata,
	}, true
}

// stringPtr returns a pointer to v when it is a JSON string, nil otherwise.
func stringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

var errPartialDate = errors.New("date format does not determine a calendar date")

// parseDate parses s with a strftime format and returns midnight UTC of the
// resulting calendar date. The format must fix year, month and day, or year
// and day of year.
func parseDate(s, format string) (time.Time, error) {
	if !fullDate(format) {
		return time.Time{}, errPartialDate
	}
	t, err := strftime.Parse(format, s)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC), nil
}

// fullDate reports whether format's directives determine a calendar date.
func fullDate(format string) bool {
	var year, month, day, yday bool
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		for i < len(format) && (format[i] == '-' || format[i] == '_' || format[i] == '0' || format[i] == 'E' || format[i] == 'O') {
			i++
		}
		if i >= len(format) {
			break
		}
		switch format[i] {
		case 'Y', 'y', 'G', 'g':
			year = true
		case 'm', 'b', 'B', 'h':
			month = true
		case 'd', 'e':
			day = true
		case 'j':
			yday = true
		case 'F', 'D', 'x', 'c', 's':
			return true
		}
	}
	return year && ((month && day) || yday)
}
