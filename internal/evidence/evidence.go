// Package evidence persists per-row validation artifacts: the navigation
// record, field verdicts, and the page and region captures backing them.
// Layout under the root directory:
//
//	<run_id>/row_0001/navigation.json
//	<run_id>/row_0001/fields.json
//	<run_id>/row_0001/page.png
//	<run_id>/row_0001/<field>.png
package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/veridata/crosscheck-cli/internal/provider"
)

var _ provider.EvidenceSink = (*FSStore)(nil)

// FSStore writes artifacts under a root directory.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, eris.New("evidence: empty root directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, eris.Wrap(err, "evidence: create root")
	}
	return &FSStore{root: root}, nil
}

// Root returns the store's base directory.
func (s *FSStore) Root() string { return s.root }

// Store implements provider.EvidenceSink. Refs are paths relative to the
// store root, stable across process restarts.
func (s *FSStore) Store(_ context.Context, runID string, rowIndex int, artifacts provider.Artifacts) ([]string, error) {
	rel := filepath.Join(runID, fmt.Sprintf("row_%04d", rowIndex))
	dir := filepath.Join(s.root, rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &provider.StorageError{Err: eris.Wrap(err, "evidence: create row dir")}
	}

	var refs []string
	writeJSON := func(name string, v any) error {
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return eris.Wrapf(err, "evidence: marshal %s", name)
		}
		if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
			return eris.Wrapf(err, "evidence: write %s", name)
		}
		refs = append(refs, filepath.Join(rel, name))
		return nil
	}

	if err := writeJSON("navigation.json", artifacts.Navigation); err != nil {
		return nil, &provider.StorageError{Err: err}
	}
	if err := writeJSON("fields.json", artifacts.FieldResults); err != nil {
		return nil, &provider.StorageError{Err: err}
	}

	if len(artifacts.PageSnapshot) > 0 {
		if err := os.WriteFile(filepath.Join(dir, "page.png"), artifacts.PageSnapshot, 0o644); err != nil {
			return nil, &provider.StorageError{Err: eris.Wrap(err, "evidence: write page snapshot")}
		}
		refs = append(refs, filepath.Join(rel, "page.png"))
	}

	for field, png := range artifacts.RegionCrops {
		if len(png) == 0 {
			continue
		}
		name := sanitizeFieldName(field) + ".png"
		if err := os.WriteFile(filepath.Join(dir, name), png, 0o644); err != nil {
			return nil, &provider.StorageError{Err: eris.Wrapf(err, "evidence: write crop for %s", field)}
		}
		refs = append(refs, filepath.Join(rel, name))
	}

	return refs, nil
}

// sanitizeFieldName keeps crop filenames filesystem-safe.
func sanitizeFieldName(field string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, field)
}
