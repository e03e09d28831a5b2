// Package rowstore persists a deduplicated set of records as a delimited text
// file, one record per line. A Manager is an observer: collections mutate in
// memory first and the manager mirrors every Add/Remove event to disk.
package rowstore

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	apperrors "github.com/reshetovitsme/tubefeed/internal/shared/errors"
	"github.com/reshetovitsme/tubefeed/internal/shared/observer"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// Delimiter separates fields within a row.
const Delimiter = ','

// Row is implemented by every record that can be stored in a row file.
type Row interface {
	Row() []string
}

// Decoder turns the fields of one line back into a record.
type Decoder[T Row] func(fields []string) (T, error)

// Option configures a Manager.
type Option func(*options)

type options struct {
	header []string
	logger *slog.Logger
}

// WithHeader makes the first line of the file a fixed header. A file with a
// header is created on load when missing, and a file whose first row is not
// the header is rejected as structurally broken.
func WithHeader(columns ...string) Option {
	return func(o *options) {
		o.header = columns
	}
}

// WithLogger sets the logger used for skipped rows and swallowed I/O errors.
// A nil logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Manager mirrors a collection of T to the file at path.
type Manager[T Row] struct {
	path   string
	decode Decoder[T]
	header []string
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a manager for path. Nothing is read until Load is called.
func New[T Row](path string, decode Decoder[T], opts ...Option) *Manager[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Manager[T]{
		path:   path,
		decode: decode,
		header: o.header,
		logger: o.logger.With("path", path),
	}
}

// Path returns the file backing this manager.
func (m *Manager[T]) Path() string {
	return m.path
}

// Load reads every row and hands the successfully decoded ones to insert.
// Malformed rows are logged and skipped. A file that cannot be opened yields
// an empty load. The returned error is non-nil only when a headed table is
// structurally broken.
func (m *Manager[T]) Load(insert func(T)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.header != nil {
		if err := m.ensureHeader(); err != nil {
			return err
		}
	}

	f, err := os.Open(m.path)
	if err != nil {
		m.logger.Warn("Could not open row file, starting empty", "error", err)
		return nil
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		m.logger.Error("Failed to read row file", "error", oops.With("path", m.path).Wrap(err))
		return nil
	}

	if m.header != nil {
		lines, err = m.stripHeader(lines)
		if err != nil {
			return err
		}
	}

	for i, line := range lines {
		lineNo := i + 1
		if m.header != nil {
			lineNo++
		}

		fields, err := parseLine(line)
		if err != nil {
			if m.header != nil && strings.TrimSpace(line) != "" {
				return oops.
					With("path", m.path, "line", lineNo).
					Wrapf(apperrors.ErrTableStructure, "%v", err)
			}
			m.logger.Error("Skipping malformed row", "line", lineNo, "error", err)
			continue
		}

		item, err := m.decode(fields)
		if err != nil {
			m.logger.Error("Skipping malformed row", "line", lineNo, "error", err)
			continue
		}
		insert(item)
	}

	return nil
}

// Notify implements observer.Observer. Failures are logged and swallowed: the
// in-memory collection has already changed by the time the event arrives.
func (m *Manager[T]) Notify(ev observer.Event[T]) {
	var err error
	switch ev.Action {
	case observer.Add:
		err = m.add(ev.Item)
	case observer.Remove:
		err = m.remove(ev.Item)
	}
	if err != nil {
		m.logger.Error("Failed to persist change", "action", ev.Action.String(), "error", err)
	}
}

// Rows returns every well-formed row currently stored, header excluded.
func (m *Manager[T]) Rows() ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oops.With("path", m.path).Wrap(wrapIO(err))
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return nil, oops.With("path", m.path).Wrap(wrapIO(err))
	}

	return m.dataRows(lines), nil
}

func (m *Manager[T]) add(item T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return oops.With("path", m.path).Wrap(wrapIO(err))
	}

	f, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return oops.With("path", m.path, "context", "failed to open row file").Wrap(wrapIO(err))
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return oops.With("path", m.path, "context", "failed to read row file").Wrap(wrapIO(err))
	}

	row := item.Row()
	if lo.ContainsBy(m.dataRows(lines), func(existing []string) bool {
		return slices.Equal(existing, row)
	}) {
		return nil
	}

	var buf bytes.Buffer
	if len(lines) == 0 && m.header != nil {
		writeRow(&buf, m.header)
	}
	if len(lines) > 0 && !endsWithNewline(f) {
		buf.WriteByte('\n')
	}
	writeRow(&buf, row)

	if _, err := f.Write(buf.Bytes()); err != nil {
		return oops.With("path", m.path, "context", "failed to append row").Wrap(wrapIO(err))
	}
	if err := f.Sync(); err != nil {
		return oops.With("path", m.path, "context", "failed to flush row file").Wrap(wrapIO(err))
	}

	return nil
}

func (m *Manager[T]) remove(item T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return oops.With("path", m.path, "context", "failed to read row file").Wrap(wrapIO(err))
	}

	lines, err := readLines(bytes.NewReader(data))
	if err != nil {
		return oops.With("path", m.path, "context", "failed to read row file").Wrap(wrapIO(err))
	}

	// The header line is kept as is even when a data row spells the same fields.
	var head []string
	if m.header != nil {
		first := slices.IndexFunc(lines, func(line string) bool {
			return strings.TrimSpace(line) != ""
		})
		if first >= 0 {
			head, lines = lines[:first+1], lines[first+1:]
		}
	}

	target := item.Row()
	kept := lo.Filter(lines, func(line string, _ int) bool {
		fields, err := parseLine(line)
		return err != nil || !slices.Equal(fields, target)
	})

	var buf bytes.Buffer
	for _, line := range slices.Concat(head, kept) {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	return m.replace(buf.Bytes())
}

// replace atomically swaps the file content.
func (m *Manager[T]) replace(content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(m.path), filepath.Base(m.path)+".*.tmp")
	if err != nil {
		return oops.With("path", m.path, "context", "failed to create temp file").Wrap(wrapIO(err))
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return oops.With("path", m.path).Wrap(wrapIO(err))
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return oops.With("path", m.path, "context", "failed to write temp file").Wrap(wrapIO(err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return oops.With("path", m.path, "context", "failed to flush temp file").Wrap(wrapIO(err))
	}
	if err := tmp.Close(); err != nil {
		return oops.With("path", m.path).Wrap(wrapIO(err))
	}

	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return oops.With("path", m.path, "context", "failed to replace row file").Wrap(wrapIO(err))
	}
	return nil
}

// ensureHeader creates the file, or fills an empty one, with the header row.
func (m *Manager[T]) ensureHeader() error {
	info, err := os.Stat(m.path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Could not stat row file", "error", err)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		m.logger.Warn("Could not create row file directory", "error", err)
		return nil
	}

	var buf bytes.Buffer
	writeRow(&buf, m.header)
	if err := os.WriteFile(m.path, buf.Bytes(), 0644); err != nil {
		m.logger.Warn("Could not create row file", "error", err)
	}
	return nil
}

// stripHeader validates and removes the header line.
func (m *Manager[T]) stripHeader(lines []string) ([]string, error) {
	first := slices.IndexFunc(lines, func(line string) bool {
		return strings.TrimSpace(line) != ""
	})
	if first < 0 {
		return nil, nil
	}

	fields, err := parseLine(lines[first])
	if err != nil || !slices.Equal(fields, m.header) {
		return nil, oops.
			With("path", m.path, "line", first+1, "expected", strings.Join(m.header, string(Delimiter))).
			Wrapf(apperrors.ErrTableStructure, "missing header")
	}

	return lines[first+1:], nil
}

// dataRows parses lines, dropping the header and anything unparsable.
func (m *Manager[T]) dataRows(lines []string) [][]string {
	rows := lo.FilterMap(lines, func(line string, _ int) ([]string, bool) {
		fields, err := parseLine(line)
		return fields, err == nil
	})
	if m.header != nil && len(rows) > 0 && slices.Equal(rows[0], m.header) {
		rows = rows[1:]
	}
	return rows
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	// A trailing newline on the last row must not count as an empty row.
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, scanner.Err()
}

// parseLine splits a single line. Any number of fields is accepted.
func parseLine(line string) ([]string, error) {
	if strings.TrimSpace(line) == "" {
		return nil, oops.Wrapf(apperrors.ErrMalformedRow, "empty row")
	}

	r := csv.NewReader(strings.NewReader(line))
	r.Comma = Delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = false

	fields, err := r.Read()
	if err != nil {
		return nil, oops.Wrapf(apperrors.ErrMalformedRow, "%v", err)
	}
	return fields, nil
}

func writeRow(buf *bytes.Buffer, fields []string) {
	w := csv.NewWriter(buf)
	w.Comma = Delimiter
	clean := lo.Map(fields, func(field string, _ int) string {
		return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(field)
	})
	// Writing to a bytes.Buffer cannot fail.
	_ = w.Write(clean)
	w.Flush()
}

// endsWithNewline reports whether a non-empty file opened for reading ends
// with '\n'. Append mode ignores the read offset, so seeking is safe.
func endsWithNewline(f *os.File) bool {
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return true
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return true
	}
	return last[0] == '\n'
}

// wrapIO tags err so that errors.Is(err, ErrIO) holds.
func wrapIO(err error) error {
	return &ioError{err: err}
}

type ioError struct {
	err error
}

func (e *ioError) Error() string { return e.err.Error() }

func (e *ioError) Unwrap() []error { return []error{apperrors.ErrIO, e.err} }
