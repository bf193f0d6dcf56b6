package fossil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"
)

// CSVWriter appends fossils to a CSV file, writing the header only when the
// file starts empty. Safe for concurrent use.
type CSVWriter struct {
	mu            sync.Mutex
	file          *os.File
	headerWritten bool
}

// NewCSVWriter opens path for appending, creating it and its directory if
// needed.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating fossil directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening fossil csv: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat fossil csv: %w", err)
	}
	return &CSVWriter{file: f, headerWritten: info.Size() > 0}, nil
}

// Record appends one fossil row.
func (w *CSVWriter) Record(_ context.Context, f Fossil) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return errors.New("fossil csv writer is closed")
	}
	rows := []Fossil{f}
	if !w.headerWritten {
		if err := gocsv.Marshal(rows, w.file); err != nil {
			return fmt.Errorf("writing fossil: %w", err)
		}
		w.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, w.file); err != nil {
		return fmt.Errorf("writing fossil: %w", err)
	}
	return nil
}

// Close closes the underlying file. Further Record calls fail.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// ReadCSV loads every fossil from path. A missing file yields no fossils.
func ReadCSV(path string) ([]Fossil, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening fossil csv: %w", err)
	}
	defer f.Close()

	var out []Fossil
	if err := gocsv.UnmarshalFile(f, &out); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading fossil csv: %w", err)
	}
	return out, nil
}

// WriteCSV writes fossils with a header to w.
func WriteCSV(w io.Writer, fossils []Fossil) error {
	if err := gocsv.Marshal(fossils, w); err != nil {
		return fmt.Errorf("writing fossils: %w", err)
	}
	return nil
}
