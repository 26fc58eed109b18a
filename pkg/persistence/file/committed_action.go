package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// CommittedActionRepository stores one JSON file per committed action inside a
// directory per conversation key, so a look-back reads only that contact.
type CommittedActionRepository struct {
	store *Persistence
}

func (cr *CommittedActionRepository) Record(ctx context.Context, action *models.CommittedAction) error {
	if err := validateID(action.ID); err != nil {
		return fmt.Errorf("invalid committed action id: %w", err)
	}

	dir, err := keyDir(action.Key())
	if err != nil {
		return fmt.Errorf("invalid committed action key: %w", err)
	}

	cr.store.mu.Lock()
	defer cr.store.mu.Unlock()

	return cr.store.writeJSON(filepath.Join(committedActionsDir, dir), action.ID+".json", action)
}

func (cr *CommittedActionRepository) Recent(ctx context.Context, key models.ConversationKey, since time.Time) ([]*models.CommittedAction, error) {
	dir, err := keyDir(key)
	if err != nil {
		return nil, persistence.NewConversationError("Recent", key.InstanceID, key.ContactID, err)
	}

	dir = filepath.Join(committedActionsDir, dir)

	cr.store.mu.Lock()
	defer cr.store.mu.Unlock()

	names, err := cr.store.list(dir)
	if err != nil {
		return nil, err
	}

	recent := make([]*models.CommittedAction, 0, len(names))

	for _, name := range names {
		var action models.CommittedAction

		err := cr.store.readJSON(dir, name, &action)
		if err != nil {
			return nil, err
		}

		if !action.CommittedAt.Before(since) {
			recent = append(recent, &action)
		}
	}

	sort.Slice(recent, func(i, j int) bool { return recent[i].CommittedAt.After(recent[j].CommittedAt) })

	return recent, nil
}

// walk visits every committed action file as a path relative to the store root.
func (cr *CommittedActionRepository) walk(visit func(rel string) error) error {
	root := cr.store.path(committedActionsDir, "")

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		return visit(rel)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

var errStopWalk = errors.New("stop walk")

func (cr *CommittedActionRepository) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	if err := validateID(id); err != nil {
		return fmt.Errorf("invalid committed action id: %w", err)
	}

	cr.store.mu.Lock()
	defer cr.store.mu.Unlock()

	var found string

	err := cr.walk(func(rel string) error {
		if filepath.Base(rel) != id+".json" {
			return nil
		}

		found = rel

		return errStopWalk
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return fmt.Errorf("failed to find committed action %s: %w", id, err)
	}

	if found == "" {
		return fmt.Errorf("mark cancelled %s: %w", id, persistence.ErrCommittedActionNotFound)
	}

	var action models.CommittedAction

	err = cr.store.readJSON(committedActionsDir, found, &action)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("mark cancelled %s: %w", id, persistence.ErrCommittedActionNotFound)
	}

	if err != nil {
		return err
	}

	action.CancelledAt = &at

	return cr.store.writeJSON(committedActionsDir, found, &action)
}

func (cr *CommittedActionRepository) Prune(ctx context.Context, before time.Time) (int, error) {
	cr.store.mu.Lock()
	defer cr.store.mu.Unlock()

	var expired []string

	err := cr.walk(func(rel string) error {
		var action models.CommittedAction

		err := cr.store.readJSON(committedActionsDir, rel, &action)
		if err != nil {
			return err
		}

		if action.CommittedAt.Before(before) {
			expired = append(expired, rel)
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan committed actions: %w", err)
	}

	pruned := 0

	for _, rel := range expired {
		err := cr.store.remove(committedActionsDir, rel)
		if err != nil {
			return pruned, err
		}

		pruned++
	}

	return pruned, nil
}
