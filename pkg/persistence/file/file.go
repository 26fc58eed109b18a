// Package file provides file-based persistence for workflows and conversation state.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

const (
	workflowsDir         = "workflows"
	executionContextsDir = "execution_contexts"
	pendingActionsDir    = "pending_actions"
	committedActionsDir  = "committed_actions"
)

// Persistence implements persistence.Persistence on the local file system.
// A single mutex makes every check-and-set atomic within the process.
type Persistence struct {
	root string
	mu   sync.Mutex

	workflowRepo         *WorkflowRepository
	executionContextRepo *ExecutionContextRepository
	pendingActionRepo    *PendingActionRepository
	committedActionRepo  *CommittedActionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	p := &Persistence{root: strings.Replace(root, "file://", "", 1)}

	p.workflowRepo = &WorkflowRepository{store: p}
	p.executionContextRepo = &ExecutionContextRepository{store: p}
	p.pendingActionRepo = &PendingActionRepository{store: p}
	p.committedActionRepo = &CommittedActionRepository{store: p}

	return p
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionContextRepository() persistence.ExecutionContextRepository {
	return fp.executionContextRepo
}

func (fp *Persistence) PendingActionRepository() persistence.PendingActionRepository {
	return fp.pendingActionRepo
}

func (fp *Persistence) CommittedActionRepository() persistence.CommittedActionRepository {
	return fp.committedActionRepo
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// validateID rejects identifiers that could escape the storage directory.
func validateID(id string) error {
	if id == "" {
		return errors.New("identifier cannot be empty")
	}

	if id == "." || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("identifier %q contains invalid characters", id)
	}

	return nil
}

// keyDir nests a conversation under its instance, so distinct keys never share a path.
func keyDir(key models.ConversationKey) (string, error) {
	if err := validateID(key.InstanceID); err != nil {
		return "", err
	}

	if err := validateID(key.ContactID); err != nil {
		return "", err
	}

	return filepath.Join(key.InstanceID, key.ContactID), nil
}

func keyFileName(key models.ConversationKey) (string, error) {
	dir, err := keyDir(key)
	if err != nil {
		return "", err
	}

	return dir + ".json", nil
}

func (fp *Persistence) path(dir, name string) string {
	return filepath.Join(fp.root, dir, name)
}

// readJSON loads a file into out, reporting os.ErrNotExist for missing files.
func (fp *Persistence) readJSON(dir, name string, out any) error {
	data, err := os.ReadFile(fp.path(dir, name)) // #nosec G304 -- name is validated
	if err != nil {
		return err
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s/%s: %w", dir, name, err)
	}

	return nil
}

// writeJSON writes through a temporary file and rename so readers never see partial data.
func (fp *Persistence) writeJSON(dir, name string, value any) error {
	target := fp.path(dir, name)
	folder := filepath.Dir(target)

	err := os.MkdirAll(folder, 0o750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, name, err)
	}

	tmp, err := os.CreateTemp(folder, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s/%s: %w", dir, name, err)
	}

	err = os.Rename(tmp.Name(), target)
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace %s/%s: %w", dir, name, err)
	}

	return nil
}

func (fp *Persistence) remove(dir, name string) error {
	err := os.Remove(fp.path(dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s/%s: %w", dir, name, err)
	}

	return nil
}

// list returns the json file names of a directory, which may not exist yet.
func (fp *Persistence) list(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fp.root, dir))
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s directory: %w", dir, err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}

	return names, nil
}
