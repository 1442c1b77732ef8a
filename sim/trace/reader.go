package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrCorruptTrace is returned when the trace ends in the middle of a record.
var ErrCorruptTrace = errors.New("corrupt event trace")

// Reader reads ExternalEvents sequentially, loading up to tableSize records
// per read of the underlying file. The in-memory table is refilled
// transparently when its cursor reaches the end.
//
// Invariant: 0 <= nextPos <= numItems <= tableSize.
type Reader struct {
	r      io.Reader
	closer io.Closer

	table    []ExternalEvent
	buf      []byte
	nextPos  int
	numItems int
	refills  int
	eof      bool
}

// NewReader wraps r. tableSize <= 0 selects DefaultTableSize.
func NewReader(r io.Reader, tableSize int) *Reader {
	if tableSize <= 0 {
		tableSize = DefaultTableSize
	}
	rd := &Reader{
		r:     r,
		table: make([]ExternalEvent, tableSize),
		buf:   make([]byte, tableSize*RecordSize),
	}
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}
	return rd
}

// Open opens the trace file at path.
func Open(path string, tableSize int) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open event trace %q for read: %w", path, err)
	}
	return NewReader(f, tableSize), nil
}

// LoadNext returns the next record, or io.EOF at the end of the trace.
func (r *Reader) LoadNext() (ExternalEvent, error) {
	if r.nextPos == r.numItems {
		if err := r.refill(); err != nil {
			return ExternalEvent{}, err
		}
	}
	if r.nextPos < 0 || r.nextPos >= r.numItems || r.numItems > len(r.table) {
		return ExternalEvent{}, fmt.Errorf("trace table cursor out of bounds (nextPos=%d numItems=%d tableSize=%d)",
			r.nextPos, r.numItems, len(r.table))
	}
	e := r.table[r.nextPos]
	r.nextPos++
	return e, nil
}

func (r *Reader) refill() error {
	r.nextPos = 0
	r.numItems = 0
	if r.eof {
		return io.EOF
	}
	n, err := io.ReadFull(r.r, r.buf)
	switch {
	case errors.Is(err, io.EOF):
		r.eof = true
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		r.eof = true
	case err != nil:
		return fmt.Errorf("reading event trace: %w", err)
	}
	if n%RecordSize != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorruptTrace, n%RecordSize)
	}
	r.numItems = n / RecordSize
	for i := 0; i < r.numItems; i++ {
		r.table[i] = decodeRecord(r.buf[i*RecordSize:])
	}
	r.refills++
	return nil
}

// TableSize returns the number of records loaded per read.
func (r *Reader) TableSize() int {
	return len(r.table)
}

// Refills returns how many non-empty batches were loaded so far.
func (r *Reader) Refills() int {
	return r.refills
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
