// Package export renders collection records as CSV or a JSON envelope.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/gitgrid/gitgrid/internal/model"
)

// Formats accepted by the export endpoint.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Envelope is the JSON export body.
type Envelope struct {
	Collection string           `json:"collection"`
	Count      int              `json:"count"`
	ExportedAt time.Time        `json:"exportedAt"`
	Data       []model.Document `json:"data"`
}

// Filename is the attachment name of a CSV export.
func Filename(collection string) string {
	return collection + "_export.csv"
}

// Headers returns the top-level keys of the first record, sorted, without
// internal fields. Later records contribute no columns.
func Headers(docs []model.Document) []string {
	if len(docs) == 0 {
		return nil
	}
	headers := make([]string, 0, len(docs[0]))
	for k := range docs[0] {
		if !model.IsInternalField(k) {
			headers = append(headers, k)
		}
	}
	sort.Strings(headers)
	return headers
}

// WriteCSV writes a header row and one row per record. Nested objects and
// arrays become JSON text cells; missing and null values are empty.
func WriteCSV(w io.Writer, docs []model.Document) error {
	if len(docs) == 0 {
		return model.ErrNoData
	}
	headers := Headers(docs)

	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	row := make([]string, len(headers))
	for _, doc := range docs {
		for i, h := range headers {
			cell, err := Cell(doc[h])
			if err != nil {
				return fmt.Errorf("encode %s: %w", h, err)
			}
			row[i] = cell
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Cell formats one value for a CSV cell.
func Cell(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
