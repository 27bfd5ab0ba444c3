package docstore

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDocument_Int64(t *testing.T) {
	doc := Document{
		"int":    42,
		"int32":  int32(7),
		"int64":  int64(1 << 40),
		"float":  float64(1024),
		"number": json.Number("2048"),
		"string": "12",
	}

	tests := []struct {
		field string
		want  int64
	}{
		{"int", 42},
		{"int32", 7},
		{"int64", 1 << 40},
		{"float", 1024},
		{"number", 2048},
		{"string", 0},
		{"missing", 0},
	}
	for _, tt := range tests {
		if got := doc.Int64(tt.field); got != tt.want {
			t.Errorf("Int64(%q): ожидалось %d, получено %d", tt.field, tt.want, got)
		}
	}
}

func TestDocument_Time(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC)
	doc := Document{
		"native": ts,
		"string": ts.Format(time.RFC3339Nano),
		"broken": "вчера",
		"number": 17,
	}

	for _, field := range []string{"native", "string"} {
		got, ok := doc.Time(field)
		if !ok {
			t.Fatalf("Time(%q): значение не распознано", field)
		}
		if !got.Equal(ts) {
			t.Errorf("Time(%q): ожидалось %v, получено %v", field, ts, got)
		}
	}
	for _, field := range []string{"broken", "number", "missing"} {
		if _, ok := doc.Time(field); ok {
			t.Errorf("Time(%q): ожидался отказ", field)
		}
	}
}

func TestDocument_Clone(t *testing.T) {
	doc := Document{"a": "1"}
	c := doc.Clone()
	c["a"] = "2"
	if doc.String("a") != "1" {
		t.Errorf("Clone должен возвращать независимую копию")
	}
	if Document(nil).Clone() != nil {
		t.Errorf("Clone(nil) должен возвращать nil")
	}
}
