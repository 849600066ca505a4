// Package file provides file-based persistence for workflows and their execution history.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/flowrun/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
// One mutex guards every read-modify-write so counter updates are serialized within the process.
type Persistence struct {
	root          string
	mu            *sync.Mutex
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	mu := &sync.Mutex{}

	return &Persistence{
		root:          cleanRoot,
		mu:            mu,
		workflowRepo:  &WorkflowRepository{root: cleanRoot, mu: mu, logger: defaultLogger()},
		executionRepo: &ExecutionRepository{root: cleanRoot, mu: mu},
	}
}

func defaultLogger() *slog.Logger {
	return slog.Default().With("module", "file_persistence")
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func readJSON(filePath string, v any) error {
	body, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}

// writeJSON writes through a temporary file and a rename so readers never see a partial document.
func writeJSON(filePath string, v any) error {
	err := os.MkdirAll(filepath.Dir(filePath), 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := filePath + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return err
	}

	return os.Rename(tmp, filePath)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
