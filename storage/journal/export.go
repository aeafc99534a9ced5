package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Campaign   string `parquet:"name=campaign, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	Digest     string `parquet:"name=digest, type=BYTE_ARRAY, convertedtype=UTF8"`
	DeliveryID string `parquet:"name=delivery_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every entry, optionally limited to one campaign, to a
// snappy-compressed parquet file at path and returns the row count. The file
// is written beside path and renamed into place once complete.
func (j *Journal) ExportParquet(ctx context.Context, path, campaign string) (int, error) {
	if path == "" {
		return 0, fmt.Errorf("journal: export path required")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.parquet")
	if err != nil {
		return 0, fmt.Errorf("journal: create export: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(tmp), new(parquetRow), 1)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	var cursor int64
	for {
		entries, err := j.List(ctx, cursor, maxListLimit, campaign)
		if err != nil {
			_ = pw.WriteStop()
			tmp.Close()
			return 0, err
		}
		for _, entry := range entries {
			attrs, err := json.Marshal(entry.Attributes)
			if err != nil {
				_ = pw.WriteStop()
				tmp.Close()
				return 0, err
			}
			row := &parquetRow{
				Sequence:   entry.Sequence,
				Type:       entry.Type,
				Campaign:   entry.Campaign,
				Attributes: string(attrs),
				Digest:     entry.Digest,
				DeliveryID: entry.DeliveryID,
				CreatedAt:  entry.CreatedAt.UTC().Format(time.RFC3339Nano),
			}
			if err := pw.Write(row); err != nil {
				_ = pw.WriteStop()
				tmp.Close()
				return 0, fmt.Errorf("journal: parquet write: %w", err)
			}
			cursor = entry.Sequence
			written++
		}
		if len(entries) < maxListLimit {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("journal: parquet flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("journal: close export: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("journal: publish export: %w", err)
	}
	return written, nil
}
