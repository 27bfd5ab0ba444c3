package mongodb

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/propimentel/flr-wb/internal/storage/docstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStore_Get(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	uploadedAt := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	mt.Run("success", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.documents", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "files#f1"},
			{Key: "collection", Value: "files"},
			{Key: "key", Value: "f1"},
			{Key: "data", Value: bson.D{
				{Key: "filename", Value: "notes.md"},
				{Key: "file_size", Value: int64(512)},
				{Key: "uploaded_at", Value: primitive.NewDateTimeFromTime(uploadedAt)},
			}},
		}))

		store := NewWithCollection(mt.Coll, testLogger())

		doc, err := store.Get(context.Background(), "files", "f1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if doc.String("filename") != "notes.md" {
			t.Errorf("filename = %q, want notes.md", doc.String("filename"))
		}
		if doc.Int64("file_size") != 512 {
			t.Errorf("file_size = %d, want 512", doc.Int64("file_size"))
		}
		ts, ok := doc.Time("uploaded_at")
		if !ok || !ts.Equal(uploadedAt) {
			t.Errorf("uploaded_at = %v (ok=%v), want %v", ts, ok, uploadedAt)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.documents", mtest.FirstBatch))

		store := NewWithCollection(mt.Coll, testLogger())

		_, err := store.Get(context.Background(), "files", "missing")
		if !errors.Is(err, docstore.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_Set(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("success", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		store := NewWithCollection(mt.Coll, testLogger())

		err := store.Set(context.Background(), "owners/u1/files", "f1", docstore.Document{
			"owner_id":    "u1",
			"uploaded_at": time.Now().UTC(),
		})
		if err != nil {
			t.Errorf("Set() error = %v", err)
		}
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad value",
		}))

		store := NewWithCollection(mt.Coll, testLogger())

		if err := store.Set(context.Background(), "files", "f1", docstore.Document{}); err == nil {
			t.Error("Set() expected error")
		}
	})
}

func TestStore_Delete(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("deleted", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		store := NewWithCollection(mt.Coll, testLogger())

		if err := store.Delete(context.Background(), "files", "f1"); err != nil {
			t.Errorf("Delete() error = %v", err)
		}
	})

	mt.Run("missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		store := NewWithCollection(mt.Coll, testLogger())

		err := store.Delete(context.Background(), "files", "f1")
		if !errors.Is(err, docstore.ErrNotFound) {
			t.Errorf("Delete() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_QueryBefore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("two expired", func(mt *mtest.T) {
		old := primitive.NewDateTimeFromTime(time.Now().Add(-20 * 24 * time.Hour))
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.documents", mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "boards/b1/strokes#s1"},
				{Key: "collection", Value: "boards/b1/strokes"},
				{Key: "key", Value: "s1"},
				{Key: "data", Value: bson.D{{Key: "timestamp", Value: old}}},
			},
			bson.D{
				{Key: "_id", Value: "boards/b1/strokes#s2"},
				{Key: "collection", Value: "boards/b1/strokes"},
				{Key: "key", Value: "s2"},
				{Key: "data", Value: bson.D{{Key: "timestamp", Value: old}}},
			},
		))

		store := NewWithCollection(mt.Coll, testLogger())

		got, err := store.QueryBefore(context.Background(), "boards/b1/strokes", "timestamp",
			time.Now().Add(-15*24*time.Hour))
		if err != nil {
			t.Fatalf("QueryBefore() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("QueryBefore() returned %d entries, want 2", len(got))
		}
		if got[0].Key != "s1" || got[1].Key != "s2" {
			t.Errorf("keys = %s, %s", got[0].Key, got[1].Key)
		}
		if _, ok := got[0].Doc.Time("timestamp"); !ok {
			t.Error("timestamp не приведён к time.Time")
		}
	})
}

func TestStore_ListAll_Empty(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("empty", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.documents", mtest.FirstBatch))

		store := NewWithCollection(mt.Coll, testLogger())

		got, err := store.ListAll(context.Background(), "boards")
		if err != nil {
			t.Fatalf("ListAll() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("ListAll() returned %d entries, want 0", len(got))
		}
	})
}

func TestDocID(t *testing.T) {
	if got := docID("owners/u1/files", "f1"); got != "owners/u1/files#f1" {
		t.Errorf("docID = %q", got)
	}
}
