package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Writer appends ExternalEvent records to a trace.
type Writer struct {
	w      *bufio.Writer
	closer io.Closer
	rec    [RecordSize]byte
	count  int
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	wr := &Writer{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		wr.closer = c
	}
	return wr
}

// Create truncates or creates the trace file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open event trace %q for write: %w", path, err)
	}
	return NewWriter(f), nil
}

// Write appends one record.
func (w *Writer) Write(e ExternalEvent) error {
	encodeRecord(w.rec[:], e)
	if _, err := w.w.Write(w.rec[:]); err != nil {
		return fmt.Errorf("writing event trace: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes buffered records and closes the underlying file, if any.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flushing event trace: %w", err)
	}
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}
