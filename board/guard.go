package board

import (
	"fmt"

	"taskboard/domain"
)

// principalID returns the signed-in principal or ErrAuthenticationRequired.
func (b *Board) principalID() (string, error) {
	id, ok := b.principal.CurrentPrincipal()
	if !ok || id == "" {
		return "", domain.ErrAuthenticationRequired
	}
	return id, nil
}

// authorize is the single ownership check applied before any mutating
// request reaches the remote store. It resolves the task against the board's
// own copy, never against the remote.
func authorize(s *state, principal, taskID string) (domain.Task, error) {
	cur, ok := s.get(taskID)
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	if cur.OwnerID != principal {
		return domain.Task{}, fmt.Errorf("%w: task %s", domain.ErrPermissionDenied, taskID)
	}
	return cur, nil
}

// authorizeAll resolves every id or none.
func authorizeAll(s *state, principal string, taskIDs []string) ([]domain.Task, error) {
	out := make([]domain.Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		cur, err := authorize(s, principal, id)
		if err != nil {
			return nil, err
		}
		out = append(out, cur)
	}
	return out, nil
}

func remoteErr(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, err)
}
