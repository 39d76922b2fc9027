package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// saveText writes the document as indented JSON to a temp file in the
// target directory, fsyncs it, then renames it over the destination.
func saveText(path string, doc *Document) error {
	doc.Version = TextVersion

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.json")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// loadText parses and validates a JSON checkpoint. Nothing is returned
// unless the whole document is sound.
func loadText(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	if doc.Version != TextVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, doc.Version, TextVersion)
	}
	if err := validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
