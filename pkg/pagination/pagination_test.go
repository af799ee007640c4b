package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC), ID: uuid.New()}
	got, err := ParseCursor(EncodeCursor(want))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.ID != want.ID {
		t.Fatalf("expected %+v got %+v", want, got)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if c, err := ParseCursor("  "); err != nil || c != nil {
		t.Fatalf("blank cursor should be nil, got %v %v", c, err)
	}
	if _, err := ParseCursor("%%%"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNewPageTrimsLookahead(t *testing.T) {
	type row struct {
		id uuid.UUID
		at time.Time
	}
	base := time.Now().UTC()
	rows := []row{{uuid.New(), base}, {uuid.New(), base.Add(-time.Minute)}, {uuid.New(), base.Add(-2 * time.Minute)}}

	page := NewPage(rows, 2, func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} })
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if page.NextCursor == "" {
		t.Fatal("expected next cursor")
	}
	next, err := ParseCursor(page.NextCursor)
	if err != nil || next.ID != rows[1].id {
		t.Fatalf("cursor should point at last returned row, got %+v %v", next, err)
	}

	last := NewPage(rows[:1], 2, func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} })
	if last.NextCursor != "" {
		t.Fatal("final page should not carry a cursor")
	}
}

func TestNormalizeLimit(t *testing.T) {
	if NormalizeLimit(0) != DefaultLimit || NormalizeLimit(1000) != MaxLimit || NormalizeLimit(7) != 7 {
		t.Fatal("unexpected limit normalization")
	}
}

func TestParseCursorRejectsForeignTokens(t *testing.T) {
	future := base64.RawURLEncoding.EncodeToString([]byte(`{"v":9,"at":"2026-03-01T10:00:00Z","id":"` + uuid.NewString() + `"}`))
	if _, err := ParseCursor(future); !errors.Is(err, ErrCursorVersion) {
		t.Fatalf("expected version error, got %v", err)
	}
	empty := base64.RawURLEncoding.EncodeToString([]byte(`{"v":1}`))
	if _, err := ParseCursor(empty); !errors.Is(err, ErrCursorFields) {
		t.Fatalf("expected missing fields error, got %v", err)
	}
}

func TestApplyOrdersNewestFirst(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cursor := EncodeCursor(Cursor{CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), ID: uuid.New()})
	stmt := db.Session(&gorm.Session{DryRun: true}).Table("sales")
	query, err := Apply(stmt, "sales", Params{Limit: 10, Cursor: cursor})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	var rows []map[string]any
	sql := query.Find(&rows).Statement.SQL.String()
	for _, want := range []string{"ORDER BY `sales`.`created_at` DESC,`sales`.`id` DESC", "LIMIT 11", "`sales`.`created_at` <"} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected %q in %s", want, sql)
		}
	}
}
