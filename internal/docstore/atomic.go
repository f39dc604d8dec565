package docstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// tmpSuffix names the sibling file a write goes through.
const tmpSuffix = ".tmp"

// encodeRecords renders records as an indented JSON array. HTML characters
// and non-ASCII text are written verbatim.
func encodeRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ensureDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	slog.Info("directory created", "path", dir)
	return nil
}

// writeAtomic serializes records to path+".tmp" and renames it over path.
// Callers must hold the collection lock.
func (s *Store) writeAtomic(path string, records []Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}

	tmp := path + tmpSuffix
	if err := s.writeTemp(tmp, data); err != nil {
		removeTemp(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		removeTemp(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}

	slog.Debug("collection written", "path", path, "records", len(records))
	return nil
}

func (s *Store) writeTemp(tmp string, data []byte) error {
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := s.sync(f); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	return nil
}

func removeTemp(tmp string) {
	info, err := os.Lstat(tmp)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if err := os.Remove(tmp); err != nil {
		slog.Warn("temp file cleanup failed", "path", tmp, "error", err)
	}
}
