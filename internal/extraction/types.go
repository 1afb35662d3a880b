package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Target keys with dedicated handling. Any other FieldMapping.To names a
// metadata key.
const (
	ToID      = "id"
	ToContent = "content"
	ToDate    = "date"
)

// dateLayout is the wire format of ExportItem.Date.
const dateLayout = "2006-01-02T15:04:05Z"

// Kind describes how a mapped value is interpreted. The zero value is the
// String kind.
//
// On the wire a Kind is either the string "String" or an object of the form
// {"Date": {"format": "%Y-%m-%d"}}.
type Kind struct {
	// DateFormat is the strftime pattern for Date kinds; empty for String.
	DateFormat string
	isDate     bool
}

// StringKind returns the String kind.
func StringKind() Kind { return Kind{} }

// DateKind returns a Date kind parsed with the given strftime format.
func DateKind(format string) Kind { return Kind{DateFormat: format, isDate: true} }

// IsDate reports whether k is a Date kind.
func (k Kind) IsDate() bool { return k.isDate }

type dateKindJSON struct {
	Date struct {
		Format string `json:"format"`
	} `json:"Date"`
}

func (k Kind) MarshalJSON() ([]byte, error) {
	if !k.isDate {
		return []byte(`"String"`), nil
	}
	var d dateKindJSON
	d.Date.Format = k.DateFormat
	return json.Marshal(d)
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != "String" {
			return fmt.Errorf("unknown kind %q", s)
		}
		*k = StringKind()
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("kind must be \"String\" or {\"Date\": {...}}: %w", err)
	}
	body, ok := raw["Date"]
	if !ok || len(raw) != 1 {
		return fmt.Errorf("kind object must have exactly one key \"Date\"")
	}
	var d struct {
		Format *string `json:"format"`
	}
	if err := json.Unmarshal(body, &d); err != nil {
		return fmt.Errorf("decoding Date kind: %w", err)
	}
	if d.Format == nil {
		return fmt.Errorf("date kind requires a format")
	}
	*k = DateKind(*d.Format)
	return nil
}

// FieldMapping maps one key of a raw record onto the export shape.
type FieldMapping struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind Kind   `json:"kind"`
}

// ExportItem is a normalized result record. Content and Date are always set;
// records that cannot provide them are dropped during extraction.
type ExportItem struct {
	ID       *string
	Content  string
	Date     time.Time
	Metadata map[string]string
}

type exportItemJSON struct {
	ID       *string           `json:"id"`
	Content  string            `json:"content"`
	Date     string            `json:"date"`
	Metadata map[string]string `json:"metadata"`
}

func (it ExportItem) MarshalJSON() ([]byte, error) {
	md := it.Metadata
	if md == nil {
		md = map[string]string{}
	}
	return json.Marshal(exportItemJSON{
		ID:       it.ID,
		Content:  it.Content,
		Date:     it.Date.UTC().Format(dateLayout),
		Metadata: md,
	})
}

func (it *ExportItem) UnmarshalJSON(data []byte) error {
	var raw exportItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, raw.Date)
	if err != nil {
		return fmt.Errorf("parsing date: %w", err)
	}
	*it = ExportItem{
		ID:       raw.ID,
		Content:  raw.Content,
		Date:     t.UTC(),
		Metadata: raw.Metadata,
	}
	return nil
}
