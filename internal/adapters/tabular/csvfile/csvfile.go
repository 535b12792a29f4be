// Package csvfile persists tables as CSV files under one directory. Writes go
// to a temp file in the same directory and are renamed into place, so a
// reader sees the old file or the new one and never a partial write
package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"slaledger/internal/core/accumulate"
	perr "slaledger/internal/platform/errors"
	pstrings "slaledger/internal/platform/strings"
)

// Ext is appended to table names
const Ext = ".csv"

const bom = "\ufeff"

// Sink is an accumulate.Sink over a directory
type Sink struct {
	Dir string
}

// New returns a Sink rooted at dir, creating it when needed
func New(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeAccumulationWrite, "create output dir %s", dir)
	}
	return &Sink{Dir: dir}, nil
}

// Path returns the file backing name
func (s *Sink) Path(name string) string {
	return filepath.Join(s.Dir, name+Ext)
}

// Read loads a table; found is false when the file does not exist
func (s *Sink) Read(ctx context.Context, name string) (accumulate.Table, bool, error) {
	if err := ctx.Err(); err != nil {
		return accumulate.Table{}, false, err
	}
	f, err := os.Open(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return accumulate.Table{}, false, nil
	}
	if err != nil {
		return accumulate.Table{}, false, perr.Wrapf(err, perr.ErrorCodeAccumulationRead, "open %s", name)
	}
	defer f.Close()

	t, err := Decode(f)
	if err != nil {
		return accumulate.Table{}, false, perr.Wrapf(err, perr.ErrorCodeAccumulationRead, "parse %s", name)
	}
	return t, true, nil
}

// Write replaces name atomically
func (s *Sink) Write(ctx context.Context, name string, t accumulate.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteFile(s.Path(name), t)
}

// WriteFile writes t to path through a temp file and rename
func WriteFile(path string, t accumulate.Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeAccumulationWrite, "create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeAccumulationWrite, "create temp for %s", path)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	w := bufio.NewWriter(tmp)
	if err := Encode(w, t); err != nil {
		_ = tmp.Close()
		return perr.Wrapf(err, perr.ErrorCodeAccumulationWrite, "encode %s", path)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return perr.Wrapf(err, perr.ErrorCodeAccumulationWrite, "flush %s", path)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return perr.Wrapf(err, perr.ErrorCodeAccumulationWrite, "sync %s", path)
	}
	if err := tmp.Close(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeAccumulationWrite, "close %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeAccumulationWrite, "rename into %s", path)
	}
	return nil
}

// Encode writes a header row then every row in column order, cells cleaned
// of control characters
func Encode(w io.Writer, t accumulate.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for i, c := range t.Columns {
			rec[i] = pstrings.Clean(r[c])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Decode reads a header row and the records under it. Short records leave
// trailing columns blank; extra cells are dropped. An empty input is an
// empty table without columns
func Decode(r io.Reader) (accumulate.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return accumulate.Table{}, nil
	}
	if err != nil {
		return accumulate.Table{}, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], bom)
	}
	cols := make([]string, 0, len(header))
	idx := make([]int, 0, len(header))
	seen := map[string]struct{}{}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := seen[h]; dup || h == "" {
			continue
		}
		seen[h] = struct{}{}
		cols = append(cols, h)
		idx = append(idx, i)
	}

	t := accumulate.NewTable(cols...)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return accumulate.Table{}, err
		}
		row := make(accumulate.Row, len(cols))
		for j, c := range cols {
			if i := idx[j]; i < len(rec) {
				row[c] = rec[i]
			} else {
				row[c] = ""
			}
		}
		t.Append(row)
	}
	return t, nil
}
