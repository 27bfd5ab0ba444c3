package model

// Коллекции совместных досок.
const (
	// BoardsCollection — родительские документы досок
	BoardsCollection = "boards"
	// BoardCreatedAtField — время создания доски
	BoardCreatedAtField = "created_at"
	// BoardChildTimestampField — время создания штриха или сообщения
	BoardChildTimestampField = "timestamp"
)

// BoardChildKind — тип дочерней коллекции доски.
type BoardChildKind string

const (
	// ChildStrokes — штрихи рисования
	ChildStrokes BoardChildKind = "strokes"
	// ChildMessages — сообщения чата доски
	ChildMessages BoardChildKind = "messages"
)

// BoardChildKinds — все дочерние коллекции доски в порядке обработки.
var BoardChildKinds = []BoardChildKind{ChildStrokes, ChildMessages}

// BoardChildCollection — путь дочерней коллекции boards/{board_id}/{kind}.
func BoardChildCollection(boardID string, kind BoardChildKind) string {
	return BoardsCollection + "/" + boardID + "/" + string(kind)
}
