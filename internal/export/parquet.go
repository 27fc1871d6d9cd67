package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the maximum number of rows per row group
	RowGroupSize int64
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionZstd,
		RowGroupSize: 100000,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// WriteTable writes rows to a new Parquet file at path. T must carry parquet
// struct tags.
func WriteTable[T any](path string, rows []T, opts Options) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}
	if opts.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.MaxRowsPerRowGroup(opts.RowGroupSize))
	}

	writer := parquet.NewGenericWriter[T](f, writerOpts...)

	n, err := writer.Write(rows)
	if err != nil {
		writer.Close()
		f.Close()
		return 0, fmt.Errorf("write rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		f.Close()
		return 0, fmt.Errorf("close writer: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("sync file: %w", err)
	}
	return int64(n), f.Close()
}

// ReadTable reads every row of a Parquet file written by WriteTable.
func ReadTable[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[T](f)
	defer reader.Close()

	rows := make([]T, reader.NumRows())
	if len(rows) == 0 {
		return rows, nil
	}

	total := 0
	for total < len(rows) {
		n, err := reader.Read(rows[total:])
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return rows[:total], nil
}
