package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

const cursorVersion = 1

var (
	ErrCursorEncoding = errors.New("cursor is not valid base64")
	ErrCursorVersion  = errors.New("cursor version not supported")
	ErrCursorFields   = errors.New("cursor is missing position fields")
)

// Params carries the limit and opaque cursor a client sent.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the keyset position of the last row on the previous page.
// Listings are ordered by (created_at, id) descending.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

type cursorToken struct {
	V  int       `json:"v"`
	At time.Time `json:"at"`
	ID uuid.UUID `json:"id"`
}

// Page is one slice of a newest-first listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NormalizeLimit clamps limit into [1, MaxLimit], defaulting blanks.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Apply adds the keyset predicate, the ordering and a limit with one
// lookahead row so NewPage can tell whether another page exists.
func Apply(query *gorm.DB, table string, params Params) (*gorm.DB, error) {
	cursor, err := ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	createdAt := clause.Column{Table: table, Name: "created_at"}
	id := clause.Column{Table: table, Name: "id"}
	if cursor != nil {
		query = query.Where(
			"(? < ?) OR (? = ? AND ? < ?)",
			createdAt, cursor.CreatedAt,
			createdAt, cursor.CreatedAt,
			id, cursor.ID,
		)
	}
	return query.
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: createdAt, Desc: true},
			{Column: id, Desc: true},
		}}).
		Limit(NormalizeLimit(params.Limit) + 1), nil
}

// NewPage drops the lookahead row and derives the next cursor from the last
// item kept.
func NewPage[T any](rows []T, limit int, cursorOf func(T) Cursor) Page[T] {
	limit = NormalizeLimit(limit)
	if rows == nil {
		rows = []T{}
	}
	if len(rows) <= limit {
		return Page[T]{Items: rows}
	}
	kept := rows[:limit]
	return Page[T]{Items: kept, NextCursor: EncodeCursor(cursorOf(kept[limit-1]))}
}

// EncodeCursor renders c as an opaque URL-safe token.
func EncodeCursor(c Cursor) string {
	raw, _ := json.Marshal(cursorToken{V: cursorVersion, At: c.CreatedAt.UTC(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor returns nil for a blank token.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
	if err != nil {
		return nil, ErrCursorEncoding
	}
	var tok cursorToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	if tok.V != cursorVersion {
		return nil, fmt.Errorf("%w: %d", ErrCursorVersion, tok.V)
	}
	if tok.At.IsZero() || tok.ID == uuid.Nil {
		return nil, ErrCursorFields
	}
	return &Cursor{CreatedAt: tok.At, ID: tok.ID}, nil
}
