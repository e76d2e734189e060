package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"gatepass/internal/ledger/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// File is an append-only CSV row log with a header row. It is the durable
// ledger of the single-process deployment and stays readable by spreadsheet
// tools.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a ledger store writing to path. The file is created on
// first append.
func NewFile(path string) *File {
	return &File{path: path}
}

func (s *File) Append(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open ledger: %v", sentinel.ErrUnavailable, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat ledger: %v", sentinel.ErrUnavailable, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(models.Columns); err != nil {
			return fmt.Errorf("%w: write ledger header: %v", sentinel.ErrUnavailable, err)
		}
	}
	if err := w.Write(req.Row()); err != nil {
		return fmt.Errorf("%w: write ledger row: %v", sentinel.ErrUnavailable, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: flush ledger: %v", sentinel.ErrUnavailable, err)
	}
	return f.Sync()
}

// LastID returns the largest id found in the first column. Rows that do not
// parse are skipped. A missing file yields sentinel.ErrNotFound.
func (s *File) LastID(_ context.Context) (id.RequestID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: open ledger: %v", sentinel.ErrUnavailable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var last id.RequestID
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return last, nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		if err != nil {
			return last, fmt.Errorf("%w: read ledger: %v", sentinel.ErrUnavailable, err)
		}
		if n, err := models.RowID(row); err == nil && n > last {
			last = n
		}
	}
}
