// Package export streams normalized rows to a working file and turns it into
// the dated zip archive picked up by the downstream loaders.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"

	"github.com/Tpgainz/sirene-export/normalize"
)

// FileMode is applied to every file the writer produces.
const FileMode os.FileMode = 0o660

const (
	workingExt = ".csv.part"
	csvExt     = ".csv"
	zipExt     = ".zip"
)

type Options struct {
	Dir        string
	Prefix     string
	TargetDate string
	Now        func() time.Time
	Delimiter  string
	Encoding   Encoding
	Schema     *normalize.Schema
}

// Writer appends rows of one schema to a working file. It is not safe for
// concurrent use.
type Writer struct {
	dir     string
	base    string
	archive string
	schema  *normalize.Schema
	delim   string
	enc     *encoding.Encoder
	file    *os.File
	rows    int
}

// Create opens the working file <prefix>-<date>_<yyyymmddHHMMSS>.csv.part
// in opts.Dir.
func Create(opts Options) (*Writer, error) {
	if opts.Schema == nil {
		return nil, errors.New("export: missing schema")
	}

	delim, err := ParseDelimiter(opts.Delimiter)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	stem := opts.Prefix + "-" + opts.TargetDate

	w := Writer{
		dir:     opts.Dir,
		base:    stem + "_" + now().Format("20060102150405"),
		archive: filepath.Join(opts.Dir, stem+zipExt),
		schema:  opts.Schema,
		delim:   delim,
		enc:     opts.Encoding.encoder(),
	}

	path := w.WorkingPath()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, FileMode)
	if err != nil {
		return nil, &ArchiveError{Op: "create", Path: path, Err: err}
	}

	if err := f.Chmod(FileMode); err != nil {
		_ = f.Close()

		return nil, &ArchiveError{Op: "chmod", Path: path, Err: err}
	}

	w.file = f

	return &w, nil
}

// WorkingPath is the file rows are appended to until Finalize.
func (w *Writer) WorkingPath() string {
	return filepath.Join(w.dir, w.base+workingExt)
}

// ArchivePath is where Finalize puts the archive.
func (w *Writer) ArchivePath() string {
	return w.archive
}

// Rows is the number of rows appended so far.
func (w *Writer) Rows() int {
	return w.rows
}

func (w *Writer) line(values []string) ([]byte, error) {
	var sb strings.Builder

	for i, v := range values {
		if i > 0 {
			sb.WriteString(w.delim)
		}

		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(v, `"`, `""`))
		sb.WriteByte('"')
	}

	sb.WriteByte('\n')

	return w.enc.Bytes([]byte(sb.String()))
}

// Append writes row as one quoted, delimited line. Each call reaches the
// file before returning.
func (w *Writer) Append(row *normalize.Row) error {
	if w.file == nil {
		return &ArchiveError{Op: "append", Path: w.WorkingPath(), Err: os.ErrClosed}
	}

	if row.Schema() != w.schema {
		return fmt.Errorf("export: row of schema %s written to a %s file", row.Schema().Name(), w.schema.Name())
	}

	b, err := w.line(row.Values())
	if err != nil {
		return fmt.Errorf("error encoding row: %w", err)
	}

	if _, err := w.file.Write(b); err != nil {
		return &ArchiveError{Op: "append", Path: w.WorkingPath(), Err: err}
	}

	w.rows++

	return nil
}

// Close releases the working file without finalizing it.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}

	err := w.file.Close()
	w.file = nil

	return err
}

// Finalize writes <name>.csv (header then the working rows), removes the
// working file, zips the csv into <prefix>-<date>.zip and removes the csv.
// When the working file is already gone it returns "" and no error.
func (w *Writer) Finalize(ctx context.Context) (string, error) {
	log := zerolog.Ctx(ctx)

	if err := w.Close(); err != nil {
		return "", &ArchiveError{Op: "close", Path: w.WorkingPath(), Err: err}
	}

	working := w.WorkingPath()

	if _, err := os.Stat(working); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", working).Msg("no working file, nothing to finalize")

			return "", nil
		}

		return "", &ArchiveError{Op: "stat", Path: working, Err: err}
	}

	csvPath := filepath.Join(w.dir, w.base+csvExt)

	if err := w.writeWithHeader(working, csvPath); err != nil {
		return "", err
	}

	if err := os.Remove(working); err != nil {
		return "", &ArchiveError{Op: "remove", Path: working, Err: err}
	}

	if err := w.compress(csvPath); err != nil {
		return "", err
	}

	if err := os.Chmod(w.archive, FileMode); err != nil {
		return "", &ArchiveError{Op: "chmod", Path: w.archive, Err: err}
	}

	if err := os.Remove(csvPath); err != nil {
		return "", &ArchiveError{Op: "remove", Path: csvPath, Err: err}
	}

	log.Info().Str("archive", w.archive).Int("rows", w.rows).Msg("export archived")

	return w.archive, nil
}

func (w *Writer) writeWithHeader(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return &ArchiveError{Op: "open", Path: src, Err: err}
	}

	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FileMode)
	if err != nil {
		return &ArchiveError{Op: "create", Path: dst, Err: err}
	}

	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = &ArchiveError{Op: "close", Path: dst, Err: cerr}
		}
	}()

	header, err := w.line(w.schema.Columns())
	if err != nil {
		return &ArchiveError{Op: "header", Path: dst, Err: err}
	}

	if _, err := out.Write(header); err != nil {
		return &ArchiveError{Op: "header", Path: dst, Err: err}
	}

	if _, err := io.Copy(out, in); err != nil {
		return &ArchiveError{Op: "copy", Path: dst, Err: err}
	}

	return nil
}

// compress builds the archive in a temporary file and renames it into place
// so a reader never sees a partial zip.
func (w *Writer) compress(csvPath string) error {
	tmp, err := os.CreateTemp(w.dir, filepath.Base(w.archive)+".*.tmp")
	if err != nil {
		return &ArchiveError{Op: "create", Path: w.archive, Err: err}
	}

	tmpPath := tmp.Name()

	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if err := writeZip(tmp, csvPath); err != nil {
		_ = tmp.Close()

		return err
	}

	if err := tmp.Close(); err != nil {
		return &ArchiveError{Op: "close", Path: tmpPath, Err: err}
	}

	if err := os.Rename(tmpPath, w.archive); err != nil {
		return &ArchiveError{Op: "rename", Path: w.archive, Err: err}
	}

	return nil
}

func writeZip(dst io.Writer, csvPath string) error {
	in, err := os.Open(csvPath)
	if err != nil {
		return &ArchiveError{Op: "open", Path: csvPath, Err: err}
	}

	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return &ArchiveError{Op: "stat", Path: csvPath, Err: err}
	}

	zw := zip.NewWriter(dst)

	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:     filepath.Base(csvPath),
		Method:   zip.Deflate,
		Modified: info.ModTime(),
	})
	if err != nil {
		return &ArchiveError{Op: "zip", Path: csvPath, Err: err}
	}

	if _, err := io.Copy(entry, in); err != nil {
		return &ArchiveError{Op: "zip", Path: csvPath, Err: err}
	}

	if err := zw.Close(); err != nil {
		return &ArchiveError{Op: "zip", Path: csvPath, Err: err}
	}

	return nil
}
