// Пакет memory — потокобезопасная in-memory реализация docstore.Store.
//
// Не персистентная: данные живут до рестарта процесса.
// Используется для локальной разработки и в тестах сервисного слоя.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/propimentel/flr-wb/internal/storage/docstore"
)

// Store — in-memory хранилище документов.
// sync.RWMutex: конкурентное чтение, эксклюзивная запись.
// Наружу всегда отдаются копии документов.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Document // collection → key → doc
	logger      *slog.Logger
}

// New создаёт пустое хранилище.
func New(logger *slog.Logger) *Store {
	return &Store{
		collections: make(map[string]map[string]docstore.Document),
		logger:      logger.With(slog.String("component", "docstore_memory")),
	}
}

// Get возвращает копию документа или docstore.ErrNotFound.
func (s *Store) Get(_ context.Context, collection, key string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][key]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return doc.Clone(), nil
}

// Set сохраняет копию документа.
func (s *Store) Set(_ context.Context, collection, key string, doc docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]docstore.Document)
		s.collections[collection] = coll
	}
	coll[key] = doc.Clone()
	return nil
}

// Delete удаляет документ. Пустая коллекция удаляется целиком.
func (s *Store) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return docstore.ErrNotFound
	}
	if _, ok := coll[key]; !ok {
		return docstore.ErrNotFound
	}
	delete(coll, key)
	if len(coll) == 0 {
		delete(s.collections, collection)
	}
	return nil
}

// QueryBefore возвращает документы с field < before, отсортированные по ключу.
func (s *Store) QueryBefore(_ context.Context, collection, field string, before time.Time) ([]docstore.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []docstore.Entry
	for key, doc := range s.collections[collection] {
		ts, ok := doc.Time(field)
		if !ok || !ts.Before(before) {
			continue
		}
		result = append(result, docstore.Entry{Key: key, Doc: doc.Clone()})
	}
	sortByKey(result)
	return result, nil
}

// ListAll возвращает все документы коллекции, отсортированные по ключу.
func (s *Store) ListAll(_ context.Context, collection string) ([]docstore.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll := s.collections[collection]
	result := make([]docstore.Entry, 0, len(coll))
	for key, doc := range coll {
		result = append(result, docstore.Entry{Key: key, Doc: doc.Clone()})
	}
	sortByKey(result)
	return result, nil
}

// Ping всегда успешен.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Count возвращает количество документов в коллекции.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func sortByKey(entries []docstore.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
}

var _ docstore.Store = (*Store)(nil)
