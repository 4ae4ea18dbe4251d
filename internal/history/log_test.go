package history

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"errtoast/internal/capture"
	"errtoast/internal/clock"
	"errtoast/internal/eventbus"
	"errtoast/internal/page"
	logx "errtoast/pkg/logx"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newLog(t *testing.T, size int) (*Log, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(t0)
	pg := page.Context{SessionID: "sess-1", URL: "https://app.example.com/dash", Host: "app.example.com", Origin: "https://app.example.com"}
	return New(Config{MaxSize: size}, pg, clk, logx.Nop(), nil), clk
}

func errOf(typ capture.Type, msg string) capture.Error {
	return capture.Error{Type: typ, Message: msg, Timestamp: t0.UnixMilli()}
}

func messages(es []Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Message
	}
	return out
}

func TestScenarioSmallCapacity(t *testing.T) {
	l := New(Config{MaxSize: 3, Floor: 1}, page.Context{}, clock.NewFake(t0), logx.Nop(), nil)
	for i := 1; i <= 5; i++ {
		l.Add(errOf(capture.TypeConsoleError, fmt.Sprintf("E%d", i)), "u")
	}
	if got := strings.Join(messages(l.All()), ","); got != "E3,E4,E5" {
		t.Fatalf("All = %s, want E3,E4,E5", got)
	}
}

func TestRingKeepsMostRecent(t *testing.T) {
	// Sizes below MinSize clamp up, so use the minimum for the small case.
	l, _ := newLog(t, MinSize)
	for i := 1; i <= 12; i++ {
		l.Add(errOf(capture.TypeConsoleError, fmt.Sprintf("E%d", i)), "u")
		want := i
		if want > MinSize {
			want = MinSize
		}
		if l.Len() != want {
			t.Fatalf("after %d adds Len = %d, want %d", i, l.Len(), want)
		}
	}
	got := messages(l.All())
	want := []string{"E8", "E9", "E10", "E11", "E12"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("All = %v, want %v", got, want)
	}
}

func TestShrinkKeepsNewest(t *testing.T) {
	l, _ := newLog(t, 10)
	for i := 1; i <= 8; i++ {
		l.Add(errOf(capture.TypeUncaught, fmt.Sprintf("E%d", i)), "u")
	}
	if got := l.SetMaxSize(5); got != 5 {
		t.Fatalf("SetMaxSize returned %d", got)
	}
	got := messages(l.All())
	if strings.Join(got, ",") != "E4,E5,E6,E7,E8" {
		t.Fatalf("after shrink All = %v", got)
	}
	l.Add(errOf(capture.TypeUncaught, "E9"), "u")
	if got := messages(l.All()); got[0] != "E5" || got[4] != "E9" {
		t.Fatalf("after add All = %v", got)
	}
	l.SetMaxSize(20)
	l.Add(errOf(capture.TypeUncaught, "E10"), "u")
	if l.Len() != 6 || l.Cap() != 20 {
		t.Fatalf("Len=%d Cap=%d", l.Len(), l.Cap())
	}
}

func TestClampSize(t *testing.T) {
	cases := []struct {
		in, want int
		ok       bool
	}{
		{0, DefaultSize, false},
		{-3, DefaultSize, false},
		{1, MinSize, true},
		{3, MinSize, true},
		{50, 50, true},
		{10000, MaxSize, true},
	}
	for _, tc := range cases {
		got, ok := ClampSize(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ClampSize(%d) = %d,%v want %d,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIDsIncreaseAndCountIsOne(t *testing.T) {
	l, _ := newLog(t, 10)
	a := l.Add(errOf(capture.TypeNetwork, "x"), "u")
	b := l.Add(errOf(capture.TypeNetwork, "x"), "u")
	if b.ID <= a.ID {
		t.Fatalf("ids not increasing: %d then %d", a.ID, b.ID)
	}
	if a.Count != 1 || b.Count != 1 || l.Len() != 2 {
		t.Fatal("history must not collapse duplicates")
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	l, _ := newLog(t, 10)
	for _, m := range []string{"Database error", "API ok", "data race"} {
		l.Add(errOf(capture.TypeConsoleError, m), "https://app.example.com/")
	}
	got := messages(l.Search("data"))
	if strings.Join(got, ",") != "Database error,data race" {
		t.Fatalf("Search(data) = %v", got)
	}
	if n := len(l.Search("   ")); n != 3 {
		t.Fatalf("blank query returned %d entries", n)
	}
}

func TestSearchMatchesStackFileAndURL(t *testing.T) {
	l, _ := newLog(t, 10)
	l.Add(capture.Error{Type: capture.TypeUncaught, Message: "a", Stack: "at Foo (main.js:1)"}, "u")
	l.Add(capture.Error{Type: capture.TypeUncaught, Message: "b", File: "vendor/Chart.js"}, "u")
	l.Add(capture.Error{Type: capture.TypeUncaught, Message: "c"}, "https://checkout.example.com")
	for q, want := range map[string]string{"foo": "a", "chart": "b", "CHECKOUT": "c"} {
		if got := messages(l.Search(q)); len(got) != 1 || got[0] != want {
			t.Fatalf("Search(%q) = %v, want [%s]", q, got, want)
		}
	}
}

func TestFilterByTypes(t *testing.T) {
	l, _ := newLog(t, 10)
	l.Add(errOf(capture.TypeConsoleError, "c"), "u")
	l.Add(errOf(capture.TypeNetwork, "n"), "u")
	l.Add(errOf(capture.TypeUnknown, "?"), "u")

	if n := len(l.FilterByTypes(nil)); n != 3 {
		t.Fatalf("empty filter returned %d", n)
	}
	got := messages(l.FilterByTypes([]capture.Type{capture.TypeNetwork, capture.TypeUnknown}))
	if strings.Join(got, ",") != "n,?" {
		t.Fatalf("filter = %v", got)
	}
	if got := messages(l.Query("N", []capture.Type{capture.TypeNetwork})); len(got) != 1 {
		t.Fatalf("Query = %v", got)
	}
}

func TestClear(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()
	l := New(Config{MaxSize: 10}, page.Context{}, clock.NewFake(t0), logx.Nop(), bus)
	l.Add(errOf(capture.TypeConsoleError, "x"), "u")
	l.Clear()
	if l.Len() != 0 {
		t.Fatal("Clear left entries")
	}
	var types []string
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	if strings.Join(types, ",") != eventbus.HistoryAdded+","+eventbus.HistoryCleared {
		t.Fatalf("events = %v", types)
	}
}

func TestExportJSONRoundTrip(t *testing.T) {
	l, _ := newLog(t, 10)
	l.Add(capture.Error{Type: capture.TypeUncaught, Message: "boom", File: "a.js", Line: 3, Column: 9, Stack: "at a", Timestamp: 1700000000123}, "https://app.example.com/dash")
	l.Add(errOf(capture.TypeNetwork, "GET /api 500"), "https://app.example.com/dash")

	var buf bytes.Buffer
	if err := l.ExportJSON(&buf); err != nil {
		t.Fatal(err)
	}
	var doc Export
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	all := l.All()
	if len(doc.Errors) != len(all) || doc.TotalErrors != len(all) {
		t.Fatalf("exported %d errors, log has %d", len(doc.Errors), len(all))
	}
	for i := range all {
		if doc.Errors[i] != all[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, doc.Errors[i], all[i])
		}
	}
	if doc.Hostname != "app.example.com" || doc.SessionID != "sess-1" || doc.MaxHistorySize != 10 {
		t.Fatalf("metadata = %+v", doc)
	}
	if doc.ExportedAt != t0.Format(time.RFC3339Nano) {
		t.Fatalf("exportedAt = %q", doc.ExportedAt)
	}
}

func TestExportJSONEmptyHasArray(t *testing.T) {
	l, _ := newLog(t, 10)
	var buf bytes.Buffer
	if err := l.ExportJSON(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"errors": []`) {
		t.Fatalf("empty export should carry an empty array:\n%s", buf.String())
	}
}

func TestExportCSVQuoting(t *testing.T) {
	l, _ := newLog(t, 10)
	msg := "bad \"value\", then\nnewline"
	l.Add(capture.Error{Type: capture.TypeConsoleError, Message: msg, Timestamp: 1700000000000}, "https://app.example.com/dash")

	var buf bytes.Buffer
	if err := l.ExportCSV(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"bad ""value"", then`) {
		t.Fatalf("message not quoted with doubled quotes:\n%s", buf.String())
	}

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	// 6 metadata rows, header, one entry.
	if len(rows) != 8 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[4][0] != "totalErrors" || rows[4][1] != "1" {
		t.Fatalf("metadata row = %v", rows[4])
	}
	if strings.Join(rows[6], ",") != strings.Join(CSVHeader, ",") {
		t.Fatalf("header = %v", rows[6])
	}
	if rows[7][3] != msg || rows[7][2] != "console-error" {
		t.Fatalf("entry row = %v", rows[7])
	}
}
