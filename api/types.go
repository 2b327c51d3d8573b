package api

import (
	"taskboard/board"
	"taskboard/domain"
	"taskboard/identity"
)

// Authenticator resolves the principal of a request.
type Authenticator interface {
	identity.Verifier
	PrincipalFromHeader(string) (string, error)
}

type sessionResponse struct {
	PrincipalID string         `json:"principalId"`
	Board       board.Snapshot `json:"board"`
}

type moveRequest struct {
	Status domain.Status `json:"status"`
}

type selectionResponse struct {
	TaskID   string `json:"taskId"`
	Selected bool   `json:"selected"`
}

// batchRequest targets TaskIDs, or the current selection when TaskIDs is
// absent.
type batchRequest struct {
	TaskIDs []string         `json:"taskIds,omitempty"`
	Patch   domain.TaskPatch `json:"patch"`
}

type batchResponse struct {
	Tasks []domain.Task `json:"tasks,omitempty"`
}
