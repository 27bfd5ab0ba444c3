package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/propimentel/flr-wb/internal/domain/model"
	"github.com/propimentel/flr-wb/internal/storage/docstore"
)

// Board — родительский документ совместной доски.
type Board struct {
	ID string
	// CreatedAt — время создания; нулевое, если поле отсутствует
	CreatedAt time.Time
}

// BoardRepository — доски и их дочерние коллекции (штрихи, сообщения).
// Используется только очисткой по сроку хранения.
type BoardRepository interface {
	// List возвращает все доски.
	List(ctx context.Context) ([]Board, error)
	// ExpiredChildren возвращает ключи дочерних документов с timestamp < cutoff.
	ExpiredChildren(ctx context.Context, boardID string, kind model.BoardChildKind, cutoff time.Time) ([]string, error)
	// DeleteChild удаляет дочерний документ.
	DeleteChild(ctx context.Context, boardID string, kind model.BoardChildKind, key string) error
	// CountChildren считает оставшиеся дочерние документы.
	CountChildren(ctx context.Context, boardID string, kind model.BoardChildKind) (int, error)
	// Delete удаляет документ доски.
	Delete(ctx context.Context, boardID string) error
}

// boardRepo — реализация BoardRepository.
type boardRepo struct {
	store docstore.Store
}

// NewBoardRepository создаёт репозиторий досок.
func NewBoardRepository(store docstore.Store) BoardRepository {
	return &boardRepo{store: store}
}

func (r *boardRepo) List(ctx context.Context) ([]Board, error) {
	entries, err := r.store.ListAll(ctx, model.BoardsCollection)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения коллекции досок: %w", err)
	}

	boards := make([]Board, 0, len(entries))
	for _, e := range entries {
		b := Board{ID: e.Key}
		if ts, ok := e.Doc.Time(model.BoardCreatedAtField); ok {
			b.CreatedAt = ts
		}
		boards = append(boards, b)
	}
	return boards, nil
}

func (r *boardRepo) ExpiredChildren(ctx context.Context, boardID string, kind model.BoardChildKind, cutoff time.Time) ([]string, error) {
	collection := model.BoardChildCollection(boardID, kind)
	entries, err := r.store.QueryBefore(ctx, collection, model.BoardChildTimestampField, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки %s: %w", collection, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys, nil
}

func (r *boardRepo) DeleteChild(ctx context.Context, boardID string, kind model.BoardChildKind, key string) error {
	return mapNotFound(r.store.Delete(ctx, model.BoardChildCollection(boardID, kind), key))
}

func (r *boardRepo) CountChildren(ctx context.Context, boardID string, kind model.BoardChildKind) (int, error) {
	collection := model.BoardChildCollection(boardID, kind)
	entries, err := r.store.ListAll(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта %s: %w", collection, err)
	}
	return len(entries), nil
}

func (r *boardRepo) Delete(ctx context.Context, boardID string) error {
	return mapNotFound(r.store.Delete(ctx, model.BoardsCollection, boardID))
}
