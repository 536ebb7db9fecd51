package metrics

import (
	"context"
	"io"
	"time"

	"github.com/minhtran-dev/blogmedia/internal/storage"
)

// InstrumentedStorage wraps a storage backend and records operation
// counts and latencies for every call.
type InstrumentedStorage struct {
	storage.Storage
}

func NewInstrumentedStorage(s storage.Storage) *InstrumentedStorage {
	return &InstrumentedStorage{Storage: s}
}

func (s *InstrumentedStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error {
	start := time.Now()
	err := s.Storage.Upload(ctx, key, reader, contentType, size)
	RecordStorageOperation("upload", statusOf(err), time.Since(start).Seconds())
	return err
}

func (s *InstrumentedStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	reader, err := s.Storage.Download(ctx, key)
	RecordStorageOperation("download", statusOf(err), time.Since(start).Seconds())
	return reader, err
}

func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Storage.Delete(ctx, key)
	RecordStorageOperation("delete", statusOf(err), time.Since(start).Seconds())
	return err
}

func (s *InstrumentedStorage) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	exists, err := s.Storage.Exists(ctx, key)
	RecordStorageOperation("exists", statusOf(err), time.Since(start).Seconds())
	return exists, err
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
