package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gitgrid/gitgrid/internal/duckdb"
	"github.com/gitgrid/gitgrid/internal/model"
	"github.com/gitgrid/gitgrid/internal/registry"
	"github.com/gitgrid/gitgrid/internal/service"
	"github.com/spf13/cobra"
)

func newImportCommand() *cobra.Command {
	var owner, collection string

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Upsert GitHub records from a JSON file",
		Long: `Upsert records into a collection for one owner.

The input is a JSON array of documents, or an export envelope with a
"data" array. Reads stdin when the file is "-" or omitted. Records are
matched on the collection's external id, so re-importing updates in place.

The records database is opened exclusively; stop the server first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag(cmd))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			docs, err := readDocuments(in)
			if err != nil {
				return err
			}

			res, err := importDocuments(cmd.Context(), cfg, owner, collection, docs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d inserted, %d updated, %d skipped\n",
				collection, res.Inserted, res.Updated, res.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning user id (required)")
	cmd.Flags().StringVar(&collection, "collection", "", "target collection: "+strings.Join(registry.Names(), ", "))
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func importDocuments(ctx context.Context, cfg appConfig, owner, collection string, docs []model.Document) (model.UpsertResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return model.UpsertResult{}, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	// Import never reads saved filters.
	svc := service.New(registry.New(store), nil)
	return svc.Import(ctx, owner, collection, docs)
}

// readDocuments decodes a JSON array of objects, or an object whose "data"
// field is one.
func readDocuments(r io.Reader) ([]model.Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("input is empty")
	}

	if raw[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decoding input: %w", err)
		}
		if len(env.Data) == 0 {
			return nil, fmt.Errorf("input object has no data array")
		}
		raw = env.Data
	}

	var docs []model.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decoding input: %w", err)
	}
	return docs, nil
}
