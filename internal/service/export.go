package service

import (
	"context"

	"github.com/gitgrid/gitgrid/internal/export"
	"github.com/gitgrid/gitgrid/internal/model"
	"github.com/gitgrid/gitgrid/internal/query"
)

// Export reads up to limit records (default 10000) in insertion order. A
// CSV export of an empty collection fails with model.ErrNoData; a JSON
// export of one is an empty envelope.
func (s *Service) Export(ctx context.Context, owner, collection, format string, limit int) (*export.Envelope, error) {
	if format == "" {
		format = export.FormatJSON
	}
	if format != export.FormatJSON && format != export.FormatCSV {
		return nil, model.Validationf("unsupported export format %q", format)
	}
	h, err := s.resolve(collection)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > model.DefaultExportLimit {
		limit = model.DefaultExportLimit
	}

	docs, err := h.Find(ctx, model.FindOptions{Filter: query.Owner(owner, nil), Limit: limit})
	if err != nil {
		return nil, model.WrapQuery("export "+collection, err)
	}
	if format == export.FormatCSV && len(docs) == 0 {
		return nil, model.ErrNoData
	}
	return &export.Envelope{
		Collection: collection,
		Count:      len(docs),
		ExportedAt: s.now(),
		Data:       docs,
	}, nil
}
