package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/poiesic/itemvec/core"
)

const maxLineSize = 16 * 1024 * 1024

// FileSource reads records from a JSON array or from newline-delimited
// JSON. The format is detected from the first non-blank byte. Numbers are
// kept as json.Number so integer ids and epoch dates survive exactly.
type FileSource struct {
	r      *bufio.Reader
	closer io.Closer
	name   string
}

var _ Source = (*FileSource)(nil)

// OpenFile opens path, or standard input when path is "-".
func OpenFile(path string) (*FileSource, error) {
	if path == "-" {
		return NewReaderSource(os.Stdin, "stdin"), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := NewReaderSource(f, path)
	s.closer = f
	return s, nil
}

// NewReaderSource reads records from r. name is used in error messages.
func NewReaderSource(r io.Reader, name string) *FileSource {
	return &FileSource{r: bufio.NewReaderSize(r, 64*1024), name: name}
}

// Items yields the records in file order.
func (s *FileSource) Items(ctx context.Context) iter.Seq2[core.RawItem, error] {
	return func(yield func(core.RawItem, error) bool) {
		first, err := s.peekNonSpace()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("reading %s: %w", s.name, err))
			return
		}
		if first == '[' {
			s.readArray(ctx, yield)
			return
		}
		s.readLines(ctx, yield)
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func (s *FileSource) peekNonSpace() (byte, error) {
	for {
		b, err := s.r.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			s.r.Discard(1)
			continue
		case utf8BOM[0]:
			if p, err := s.r.Peek(len(utf8BOM)); err == nil && bytes.Equal(p, utf8BOM) {
				s.r.Discard(len(utf8BOM))
				continue
			}
		}
		return b[0], nil
	}
}

func (s *FileSource) readArray(ctx context.Context, yield func(core.RawItem, error) bool) {
	dec := json.NewDecoder(s.r)
	dec.UseNumber()

	if _, err := dec.Token(); err != nil {
		yield(nil, fmt.Errorf("reading %s: %w", s.name, err))
		return
	}

	for n := 0; dec.More(); n++ {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		var raw core.RawItem
		err := dec.Decode(&raw)
		var typeErr *json.UnmarshalTypeError
		switch {
		case err == nil:
			if raw == nil {
				if !yield(nil, schemaErr(s.name, "element", n, errors.New("null record"))) {
					return
				}
				continue
			}
			if !yield(raw, nil) {
				return
			}
		case errors.As(err, &typeErr):
			// the decoder has consumed the offending element
			if !yield(nil, schemaErr(s.name, "element", n, err)) {
				return
			}
		default:
			yield(nil, fmt.Errorf("reading %s: element %d: %w", s.name, n, err))
			return
		}
	}
}

func (s *FileSource) readLines(ctx context.Context, yield func(core.RawItem, error) bool) {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		raw, err := decodeObject(text)
		if err != nil {
			if !yield(nil, schemaErr(s.name, "line", line, err)) {
				return
			}
			continue
		}
		if !yield(raw, nil) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		yield(nil, fmt.Errorf("reading %s: %w", s.name, err))
	}
}

func decodeObject(data []byte) (core.RawItem, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw core.RawItem
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("null record")
	}
	if dec.More() {
		return nil, errors.New("trailing data after record")
	}
	return raw, nil
}

func schemaErr(name, unit string, pos int, err error) error {
	return fmt.Errorf("%w: %s %s %d: %v", core.ErrSchema, name, unit, pos, err)
}

// Close closes the underlying file, if any.
func (s *FileSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
