// Package modelstore persists fitted models as a single zip archive.
package modelstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dvloznov/fraud-detection/internal/domain"
	"github.com/dvloznov/fraud-detection/internal/ml"
	"github.com/klauspost/compress/zip"
)

const (
	modelEntry  = "model.json"
	schemaEntry = "schema.json"
)

// Save writes model and the schema of the data it was trained on to path.
// The archive is written to a temporary file in the same directory and
// renamed into place, so path either keeps its previous content or holds the
// complete new archive. Failures are reported as *domain.PersistenceError.
func Save(path string, model *ml.Model, schema ml.Schema) error {
	modelJSON, err := ml.MarshalModel(model)
	if err != nil {
		return &domain.PersistenceError{Path: path, Op: "encode model", Err: err}
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return &domain.PersistenceError{Path: path, Op: "encode schema", Err: err}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &domain.PersistenceError{Path: path, Op: "create directory", Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &domain.PersistenceError{Path: path, Op: "create temp file", Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	for _, e := range []struct {
		name string
		data []byte
	}{
		{modelEntry, modelJSON},
		{schemaEntry, schemaJSON},
	} {
		w, err := zw.Create(e.name)
		if err != nil {
			return &domain.PersistenceError{Path: path, Op: "write " + e.name, Err: err}
		}
		if _, err := w.Write(e.data); err != nil {
			return &domain.PersistenceError{Path: path, Op: "write " + e.name, Err: err}
		}
	}
	if err := zw.Close(); err != nil {
		return &domain.PersistenceError{Path: path, Op: "finish archive", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &domain.PersistenceError{Path: path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.PersistenceError{Path: path, Op: "close", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		committed = true
		return &domain.PersistenceError{Path: path, Op: "rename", Err: err}
	}
	committed = true
	return nil
}

// Load reads an archive written by Save.
func Load(path string) (*ml.Model, ml.Schema, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, &domain.MissingInputError{Path: path, What: "model"}
		}
		return nil, nil, fmt.Errorf("Load: open %q: %w", path, err)
	}
	defer zr.Close()

	var modelJSON, schemaJSON []byte
	for _, f := range zr.File {
		switch f.Name {
		case modelEntry:
			modelJSON, err = readEntry(f)
		case schemaEntry:
			schemaJSON, err = readEntry(f)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("Load: %q: %w", path, err)
		}
	}
	if modelJSON == nil {
		return nil, nil, fmt.Errorf("Load: %q: archive has no %s", path, modelEntry)
	}

	model, err := ml.UnmarshalModel(modelJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("Load: %q: %w", path, err)
	}
	var schema ml.Schema
	if schemaJSON != nil {
		if err := json.Unmarshal(schemaJSON, &schema); err != nil {
			return nil, nil, fmt.Errorf("Load: %q: decode schema: %w", path, err)
		}
	}
	return model, schema, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
