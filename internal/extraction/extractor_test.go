package extraction

import (
	"encoding/json"
	"testing"
	"time"
)

func rawRecords(t *testing.T, records ...string) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(records))
	for i, r := range records {
		if !json.Valid([]byte(r)) {
			t.Fatalf("record %d is not valid JSON: %s", i, r)
		}
		out[i] = json.RawMessage(r)
	}
	return out
}

var basicMappings = []FieldMapping{
	{From: "date", To: ToDate, Kind: DateKind("%Y-%m-%d")},
	{From: "content", To: ToContent, Kind: StringKind()},
}

func TestExtract_BasicRecord(t *testing.T) {
	items := Extract(rawRecords(t, `{"content":"hi","date":"2024-01-05","extra":"x"}`), basicMappings)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it := items[0]
	if it.Content != "hi" {
		t.Errorf("Content = %q, want %q", it.Content, "hi")
	}
	want := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	if !it.Date.Equal(want) || it.Date.Location() != time.UTC {
		t.Errorf("Date = %v, want %v", it.Date, want)
	}
	if it.ID != nil {
		t.Errorf("ID = %q, want nil", *it.ID)
	}
	if len(it.Metadata) != 1 || it.Metadata["extra"] != "x" {
		t.Errorf("Metadata = %v, want map[extra:x]", it.Metadata)
	}
}

func TestExtract_DropsUnusableRecords(t *testing.T) {
	tests := []struct {
		name   string
		record string
	}{
		{"not an object", `"just a string"`},
		{"array", `[1,2,3]`},
		{"null", `null`},
		{"missing content", `{"date":"2024-01-05"}`},
		{"missing date", `{"content":"hi"}`},
		{"content not a string", `{"content":42,"date":"2024-01-05"}`},
		{"date not a string", `{"content":"hi","date":20240105}`},
		{"bad date format", `{"content":"hi","date":"05/01/2024"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := Extract(rawRecords(t, tt.record), basicMappings)
			if len(items) != 0 {
				t.Errorf("got %d items, want 0: %+v", len(items), items)
			}
		})
	}
}

func TestExtract_DateFormatMustFixTheDay(t *testing.T) {
	tests := []struct {
		format string
		value  string
		want   bool
	}{
		{"%Y-%m-%d", "2024-01-05", true},
		{"%d/%m/%Y", "05/01/2024", true},
		{"%F", "2024-01-05", true},
		{"%Y-%m", "2024-01", false},
		{"%m/%d", "01/05", false},
		{"%Y", "2024", false},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			mappings := []FieldMapping{
				{From: "content", To: ToContent},
				{From: "date", To: ToDate, Kind: DateKind(tt.format)},
			}
			record := `{"content":"hi","date":"` + tt.value + `"}`
			items := Extract(rawRecords(t, record), mappings)
			if got := len(items) == 1; got != tt.want {
				t.Fatalf("kept = %v, want %v (items %+v)", got, tt.want, items)
			}
			if tt.want && !items[0].Date.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("Date = %v, want 2024-01-05", items[0].Date)
			}
		})
	}
}

func TestExtract_HashPrefixedFields(t *testing.T) {
	mappings := append([]FieldMapping{{From: "#url", To: "source"}}, basicMappings...)
	record := `{"content":"hi","date":"2024-01-05","#url":"https://example.com","#debug":"d"}`
	items := Extract(rawRecords(t, record), mappings)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	md := items[0].Metadata
	if md["source"] != "https://example.com" || md["#debug"] != "d" {
		t.Errorf("Metadata = %v", md)
	}
	if _, ok := md["#url"]; ok {
		t.Errorf("consumed key #url leaked into metadata: %v", md)
	}
}

func TestExtract_DateRuleRequiresDateKind(t *testing.T) {
	mappings := []FieldMapping{
		{From: "date", To: ToDate, Kind: StringKind()},
		{From: "content", To: ToContent},
	}
	items := Extract(rawRecords(t, `{"content":"hi","date":"2024-01-05"}`), mappings)
	if len(items) != 0 {
		t.Fatalf("got %d items, want 0", len(items))
	}
}

func TestExtract_PreservesOrder(t *testing.T) {
	records := rawRecords(t,
		`{"content":"a","date":"2024-01-01"}`,
		`{"content":"dropped"}`,
		`{"content":"b","date":"2024-01-02"}`,
		`17`,
		`{"content":"c","date":"2024-01-03"}`,
	)
	items := Extract(records, basicMappings)
	got := make([]string, len(items))
	for i, it := range items {
		got[i] = it.Content
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("contents = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("contents[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtract_MetadataRules(t *testing.T) {
	mappings := []FieldMapping{
		{From: "text", To: ToContent},
		{From: "publishedDate", To: ToDate, Kind: DateKind("%Y-%m-%d")},
		{From: "reviewId", To: ToID},
		{From: "url", To: "link"},
		{From: "rating", To: "stars"},
	}
	record := `{
		"text": "Great place",
		"publishedDate": "2025-03-07",
		"reviewId": "997053569",
		"url": "https://example.com/r/1",
		"rating": 5,
		"lang": "fr",
		"helpfulVotes": 0,
		"user": {"name": "Tania"}
	}`
	items := Extract(rawRecords(t, record), mappings)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it := items[0]
	if it.ID == nil || *it.ID != "997053569" {
		t.Errorf("ID = %v, want 997053569", it.ID)
	}
	want := map[string]string{
		"link": "https://example.com/r/1",
		"lang": "fr",
	}
	if len(it.Metadata) != len(want) {
		t.Fatalf("Metadata = %v, want %v", it.Metadata, want)
	}
	for k, v := range want {
		if it.Metadata[k] != v {
			t.Errorf("Metadata[%q] = %q, want %q", k, it.Metadata[k], v)
		}
	}
	if _, ok := it.Metadata["url"]; ok {
		t.Error("consumed key url leaked into metadata")
	}
	if _, ok := it.Metadata["rating"]; ok {
		t.Error("consumed non-string key rating leaked into metadata")
	}
}

func TestExtract_NonStringIDIsIgnored(t *testing.T) {
	mappings := append([]FieldMapping{{From: "id", To: ToID}}, basicMappings...)
	items := Extract(rawRecords(t, `{"id":123,"content":"hi","date":"2024-01-05"}`), mappings)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].ID != nil {
		t.Errorf("ID = %q, want nil", *items[0].ID)
	}
	if _, ok := items[0].Metadata["id"]; ok {
		t.Error("consumed id key leaked into metadata")
	}
}

func TestExtract_LaterContentRuleOverrides(t *testing.T) {
	mappings := []FieldMapping{
		{From: "title", To: ToContent},
		{From: "body", To: ToContent},
		{From: "date", To: ToDate, Kind: DateKind("%Y-%m-%d")},
	}
	items := Extract(rawRecords(t, `{"title":"t","body":7,"date":"2024-01-05"}`), mappings)
	if len(items) != 0 {
		t.Fatalf("non-string later content rule should clear content, got %+v", items)
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	items := Extract(nil, basicMappings)
	if items == nil || len(items) != 0 {
		t.Errorf("Extract(nil) = %v, want empty non-nil slice", items)
	}
}

func TestExportItem_JSON(t *testing.T) {
	id := "abc"
	it := ExportItem{
		ID:       &id,
		Content:  "hi",
		Date:     time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Metadata: map[string]string{"k": "v"},
	}
	b, err := json.Marshal(it)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"id":"abc","content":"hi","date":"2024-01-05T00:00:00Z","metadata":{"k":"v"}}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}

	b, err = json.Marshal(ExportItem{Content: "x", Date: it.Date})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want = `{"id":null,"content":"x","date":"2024-01-05T00:00:00Z","metadata":{}}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}

func TestKind_JSON(t *testing.T) {
	var m []FieldMapping
	data := `[
		{"from":"a","to":"content","kind":"String"},
		{"from":"b","to":"date","kind":{"Date":{"format":"%d/%m/%Y"}}}
	]`
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m[0].Kind.IsDate() {
		t.Error("first mapping should be String kind")
	}
	if !m[1].Kind.IsDate() || m[1].Kind.DateFormat != "%d/%m/%Y" {
		t.Errorf("second mapping kind = %+v, want Date{%%d/%%m/%%Y}", m[1].Kind)
	}

	for _, bad := range []string{`"Number"`, `{"Time":{}}`, `{"Date":{}}`, `42`} {
		var k Kind
		if err := json.Unmarshal([]byte(bad), &k); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", bad)
		}
	}

	b, err := json.Marshal(DateKind("%Y"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"Date":{"format":"%Y"}}` {
		t.Errorf("Marshal(DateKind) = %s", b)
	}
}
