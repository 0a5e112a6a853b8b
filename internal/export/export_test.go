package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/gitgrid/gitgrid/internal/model"
)

func TestWriteCSV(t *testing.T) {
	docs := []model.Document{
		{
			"_id": "x1", "userId": "u1", "__v": 2,
			"title":     `Say "hi", world`,
			"number":    float64(7),
			"labels":    []any{"bug", "ui"},
			"user":      map[string]any{"login": "octocat"},
			"draft":     false,
			"closed_at": nil,
			"createdAt": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{"title": "second", "extra": "ignored"},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, docs); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("csv output does not parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	wantHeader := []string{"closed_at", "createdAt", "draft", "labels", "number", "title", "user"}
	if len(rows[0]) != len(wantHeader) {
		t.Fatalf("header = %v, want %v", rows[0], wantHeader)
	}
	for i := range wantHeader {
		if rows[0][i] != wantHeader[i] {
			t.Fatalf("header = %v, want %v", rows[0], wantHeader)
		}
	}

	want := []string{"", "2024-01-02T03:04:05Z", "false", `["bug","ui"]`, "7", `Say "hi", world`, `{"login":"octocat"}`}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("cell %s = %q, want %q", wantHeader[i], rows[1][i], want[i])
		}
	}
	if rows[2][5] != "second" || rows[2][0] != "" {
		t.Errorf("second row = %v", rows[2])
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, nil)
	if !errors.Is(err, model.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("issues"); got != "issues_export.csv" {
		t.Fatalf("Filename = %q", got)
	}
}
