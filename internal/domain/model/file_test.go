package model

import (
	"testing"
	"time"
)

func TestBlobKey(t *testing.T) {
	got := BlobKey("u1", "0b7c", "отчёт 2026.pdf")
	if got != "u1/0b7c_отчёт 2026.pdf" {
		t.Errorf("BlobKey = %q", got)
	}
}

func TestCollections(t *testing.T) {
	if got := OwnerFilesCollection("u1"); got != "owners/u1/files" {
		t.Errorf("OwnerFilesCollection = %q", got)
	}
	if got := BoardChildCollection("b1", ChildMessages); got != "boards/b1/messages" {
		t.Errorf("BoardChildCollection = %q", got)
	}
}

func TestFileRecord_IndexEntry(t *testing.T) {
	ts := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	r := &FileRecord{ID: "f1", OwnerID: "u1", UploadedAt: ts}

	e := r.IndexEntry()
	if e.FileID != "f1" || e.OwnerID != "u1" || !e.UploadedAt.Equal(ts) {
		t.Errorf("IndexEntry = %+v", e)
	}
	if !r.OwnedBy("u1") || r.OwnedBy("u2") || r.OwnedBy("") {
		t.Error("OwnedBy вернул неверный результат")
	}
}

func TestValidOwnerID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"kX9d2LmQ0aT", true},
		{"", false},
		{"..", false},
		{"a/b", false},
		{`a\b`, false},
	}
	for _, tt := range tests {
		if got := ValidOwnerID(tt.id); got != tt.want {
			t.Errorf("ValidOwnerID(%q) = %v, ожидалось %v", tt.id, got, tt.want)
		}
	}
}
