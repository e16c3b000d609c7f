package frames

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/kinereplay/backend/internal/models"
	"github.com/klauspost/compress/gzip"
)

// maxLineSize bounds a single data line.
const maxLineSize = 1024 * 1024

// Ingester turns data lines into frames using a scene's input map.
// The layout is fixed by the first successfully parsed line.
type Ingester struct {
	entries []models.InputMapEntry
	layout  *Layout
	store   *Store
	line    int
	scratch []float64
}

// NewIngester creates an ingester for the given input map.
func NewIngester(entries []models.InputMapEntry) *Ingester {
	return &Ingester{entries: entries}
}

// Ingest parses one line and appends it as a frame. Blank lines are skipped.
func (in *Ingester) Ingest(line string) error {
	in.line++

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	if cap(in.scratch) < len(in.entries) {
		in.scratch = make([]float64, len(in.entries))
	}
	values := in.scratch[:len(in.entries)]

	for i, e := range in.entries {
		if e.Column > len(fields) {
			return &models.DataFormatError{
				Line:    in.line,
				Column:  e.Column,
				Content: line,
				Reason:  fmt.Sprintf("not enough fields (have %d)", len(fields)),
			}
		}
		raw := fields[e.Column-1]
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return &models.DataFormatError{
				Line:    in.line,
				Column:  e.Column,
				Content: line,
				Reason:  fmt.Sprintf("invalid number %q", raw),
			}
		}
		values[i] = v
	}

	if in.layout == nil {
		in.layout = NewLayout(in.entries)
		in.store = NewStore(in.layout)
	}

	if ts := in.layout.TimeSlot; ts >= 0 {
		if err := in.store.CheckTime(values[ts]); err != nil {
			return &models.DataFormatError{
				Line:    in.line,
				Column:  in.layout.Slots[ts].Entry.Column,
				Content: line,
				Reason:  err.Error(),
			}
		}
	}

	in.store.Append(values)
	return nil
}

// Finish freezes and returns the store. A source without frames is an error.
func (in *Ingester) Finish() (*Store, error) {
	if in.store == nil || in.store.Len() == 0 {
		return nil, &models.DataFormatError{Line: in.line, Reason: "no frames"}
	}
	in.store.Freeze()
	return in.store, nil
}

// ReadAll feeds every line of r to the ingester and returns the frozen store.
func ReadAll(r io.Reader, in *Ingester) (*Store, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := in.Ingest(scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}
	return in.Finish()
}

// OpenInput opens a data source by name; "-" is standard input. Gzip
// compressed input is detected by its magic bytes and decompressed.
func OpenInput(name string) (io.ReadCloser, error) {
	var src io.ReadCloser
	if name == "-" {
		src = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		src = f
	}

	br := bufio.NewReader(src)
	if magic, _ := br.Peek(2); len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("opening gzip data: %w", err)
		}
		return &readCloser{Reader: zr, closers: []io.Closer{zr, src}}, nil
	}
	return &readCloser{Reader: br, closers: []io.Closer{src}}, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var err error
	for _, c := range r.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// LoadFile ingests a whole data source by name.
func LoadFile(name string, entries []models.InputMapEntry) (*Store, error) {
	r, err := OpenInput(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ReadAll(r, NewIngester(entries))
}
