// Package file provides a JSON-file persistence implementation, used for
// development setups and hermetic tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/thibo-redpepper/convoflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of one JSON file
// per record.
type Persistence struct {
	root        string
	workflows   *WorkflowRepository
	enrollments *EnrollmentRepository
	sessions    *SessionRepository
	events      *EventRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix is tolerated so the same URL flag can select either
// backend.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.TrimPrefix(root, "file://")

	return &Persistence{
		root:        cleanRoot,
		workflows:   &WorkflowRepository{root: cleanRoot},
		enrollments: &EnrollmentRepository{root: cleanRoot},
		sessions:    &SessionRepository{root: cleanRoot},
		events:      &EventRepository{root: cleanRoot},
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return p.enrollments
}

func (p *Persistence) SessionRepository() persistence.SessionRepository {
	return p.sessions
}

func (p *Persistence) EventRepository() persistence.EventRepository {
	return p.events
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// readRecord loads one JSON file into out, reporting found=false when the
// file does not exist.
func readRecord(root, kind, id string, out any) (bool, error) {
	path := filepath.Clean(filepath.Join(root, kind, id+".json"))

	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return true, nil
}

// writeRecord stores one record as an indented JSON file.
func writeRecord(root, kind, id string, record any) error {
	dir := filepath.Join(root, kind)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	return os.WriteFile(filepath.Join(dir, id+".json"), data, 0600)
}

func deleteRecord(root, kind, id string) (bool, error) {
	err := os.Remove(filepath.Join(root, kind, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}

	return true, nil
}

// listIDs returns the record ids present for one kind.
func listIDs(root, kind string) ([]string, error) {
	dir := os.DirFS(filepath.Join(root, kind))

	files, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", kind, err)
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, strings.TrimSuffix(f, ".json"))
	}

	return ids, nil
}
