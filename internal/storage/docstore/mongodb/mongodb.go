// Пакет mongodb — реализация docstore.Store поверх MongoDB (или DocumentDB).
//
// Все коллекции хранятся в одной коллекции MongoDB "documents":
// {_id: "<collection>#<key>", collection, key, data}. Временные поля
// внутри data — BSON datetime, поэтому range-запрос выполняется на сервере.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/propimentel/flr-wb/internal/storage/docstore"
)

// CollectionName — имя коллекции MongoDB с документами.
const CollectionName = "documents"

// record — представление документа в MongoDB.
type record struct {
	ID         string `bson:"_id"`
	Collection string `bson:"collection"`
	Key        string `bson:"key"`
	Data       bson.M `bson:"data"`
}

// Store — хранилище документов в MongoDB.
type Store struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// Connect подключается к MongoDB и проверяет доступность ping'ом.
func Connect(ctx context.Context, uri string, logger *slog.Logger) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB недоступна: %w", err)
	}

	logger.Info("Подключение к MongoDB установлено")
	return client, nil
}

// New создаёт Store в указанной базе данных.
func New(db *mongo.Database, logger *slog.Logger) *Store {
	return NewWithCollection(db.Collection(CollectionName), logger)
}

// NewWithCollection создаёт Store поверх готовой коллекции.
func NewWithCollection(coll *mongo.Collection, logger *slog.Logger) *Store {
	return &Store{
		coll:   coll,
		logger: logger.With(slog.String("component", "docstore_mongo")),
	}
}

// EnsureIndexes создаёт индекс (collection, key) для ListAll/QueryBefore.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "collection", Value: 1}, {Key: "key", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("ошибка создания индекса: %w", err)
	}
	return nil
}

// Get возвращает документ или docstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, key string) (docstore.Document, error) {
	var rec record
	err := s.coll.FindOne(ctx, bson.M{"_id": docID(collection, key)}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, docstore.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения документа %s/%s: %w", collection, key, err)
	}
	return normalize(rec.Data), nil
}

// Set выполняет upsert документа.
func (s *Store) Set(ctx context.Context, collection, key string, doc docstore.Document) error {
	update := bson.M{
		"$set": bson.M{
			"collection": collection,
			"key":        key,
			"data":       bson.M(doc),
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": docID(collection, key)}, update, opts); err != nil {
		return fmt.Errorf("ошибка записи документа %s/%s: %w", collection, key, err)
	}
	return nil
}

// Delete удаляет документ. Возвращает docstore.ErrNotFound, если его не было.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": docID(collection, key)})
	if err != nil {
		return fmt.Errorf("ошибка удаления документа %s/%s: %w", collection, key, err)
	}
	if res.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// QueryBefore возвращает документы с data.<field> < before.
func (s *Store) QueryBefore(ctx context.Context, collection, field string, before time.Time) ([]docstore.Entry, error) {
	filter := bson.M{
		"collection":    collection,
		"data." + field: bson.M{"$lt": before.UTC()},
	}
	return s.find(ctx, filter)
}

// ListAll возвращает все документы коллекции.
func (s *Store) ListAll(ctx context.Context, collection string) ([]docstore.Entry, error) {
	return s.find(ctx, bson.M{"collection": collection})
}

// Ping проверяет доступность MongoDB.
func (s *Store) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, readpref.Primary())
}

// find выполняет запрос с сортировкой по ключу и декодирует результат.
func (s *Store) find(ctx context.Context, filter bson.M) ([]docstore.Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "key", Value: 1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса документов: %w", err)
	}
	defer cursor.Close(ctx)

	var result []docstore.Entry
	for cursor.Next(ctx) {
		var rec record
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("ошибка декодирования документа: %w", err)
		}
		result = append(result, docstore.Entry{Key: rec.Key, Doc: normalize(rec.Data)})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации курсора: %w", err)
	}
	return result, nil
}

// docID — _id документа в MongoDB.
func docID(collection, key string) string {
	return collection + "#" + key
}

// normalize приводит BSON-типы к типам docstore.Document.
func normalize(data bson.M) docstore.Document {
	doc := make(docstore.Document, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case primitive.DateTime:
			doc[k] = val.Time().UTC()
		default:
			doc[k] = val
		}
	}
	return doc
}

var _ docstore.Store = (*Store)(nil)
