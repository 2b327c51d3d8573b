package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/board"
	"taskboard/domain"
	"taskboard/identity"
)

const maxBodySize = 64 << 10

type handlers struct {
	spaces *Workspaces
	auth   Authenticator
	log    *log.Logger
}

// boardHandler serves a request for a principal that has signed in.
type boardHandler func(c echo.Context, ws *workspace, m *requestMetrics) error

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, spaces *Workspaces, auth Authenticator, logger *log.Logger) {
	h := &handlers{spaces: spaces, auth: auth, log: logger}

	e.GET("/healthz", healthz)
	e.POST("/api/session", h.signIn)
	e.GET("/api/board/stream", h.streamBoard)

	routes := []struct {
		method string
		path   string
		fn     boardHandler
	}{
		{http.MethodDelete, "/api/session", h.signOut},
		{http.MethodGet, "/api/board", h.getBoard},
		{http.MethodPost, "/api/board/refresh", h.refresh},
		{http.MethodPost, "/api/tasks", h.createTask},
		{http.MethodPut, "/api/tasks/:id", h.updateTask},
		{http.MethodDelete, "/api/tasks/:id", h.deleteTask},
		{http.MethodPost, "/api/tasks/:id/move", h.moveTask},
		{http.MethodPut, "/api/filter", h.setFilter},
		{http.MethodPost, "/api/selection/:id", h.toggleSelection},
		{http.MethodDelete, "/api/selection", h.clearSelection},
		{http.MethodPost, "/api/batch/update", h.batchUpdate},
		{http.MethodPost, "/api/batch/delete", h.batchDelete},
		{http.MethodGet, "/api/history", h.getHistory},
	}
	for _, r := range routes {
		e.Add(r.method, r.path, h.withBoard(r.path, r.fn))
	}
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handlers) begin(c echo.Context, route string) *requestMetrics {
	m, spanCtx := newRequestMetrics(c.Request().Context(), h.log, route)
	c.SetRequest(c.Request().WithContext(spanCtx))
	return m
}

func (h *handlers) withBoard(route string, fn boardHandler) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		m := h.begin(c, route)
		defer func() {
			m.Log(c.Response().Status, err)
		}()

		ws, authErr := h.resolve(c, m, c.Request().Header.Get(echo.HeaderAuthorization))
		if authErr != nil {
			return h.fail(c, m, "auth", authErr)
		}
		return fn(c, ws, m)
	}
}

// resolve verifies the header and returns the workspace of its principal.
func (h *handlers) resolve(c echo.Context, m *requestMetrics, header string) (*workspace, error) {
	start := time.Now()
	principal, err := h.auth.PrincipalFromHeader(header)
	m.ObserveAuth(time.Since(start))
	if err != nil {
		return nil, err
	}
	ws, ok := h.spaces.lookup(principal)
	if !ok {
		return nil, fmt.Errorf("%w: no session for principal", domain.ErrAuthenticationRequired)
	}
	return ws, nil
}

func (h *handlers) signIn(c echo.Context) (err error) {
	m := h.begin(c, "/api/session")
	defer func() {
		m.Log(c.Response().Status, err)
	}()

	token, tokErr := identity.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if tokErr != nil {
		return h.fail(c, m, "auth", tokErr)
	}
	start := time.Now()
	principal, authErr := h.auth.Verify(token)
	m.ObserveAuth(time.Since(start))
	if authErr != nil {
		return h.fail(c, m, "auth", authErr)
	}
	ws := h.spaces.open(principal)
	if _, signErr := ws.session.SignIn(token); signErr != nil {
		return h.fail(c, m, "auth", signErr)
	}

	ctx := c.Request().Context()
	if refreshErr := m.TimeBoard(func() error { return ws.board.Refresh(ctx) }); refreshErr != nil {
		return h.fail(c, m, "board", refreshErr)
	}
	snap, snapErr := ws.board.Snapshot()
	if snapErr != nil {
		return h.fail(c, m, "board", snapErr)
	}
	m.SetTasksReturned(len(snap.Tasks))
	return h.respond(c, m, http.StatusOK, sessionResponse{PrincipalID: principal, Board: snap})
}

func (h *handlers) signOut(c echo.Context, ws *workspace, m *requestMetrics) error {
	ws.session.SignOut()
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) getBoard(c echo.Context, ws *workspace, m *requestMetrics) error {
	return h.respondSnapshot(c, ws, m)
}

func (h *handlers) refresh(c echo.Context, ws *workspace, m *requestMetrics) error {
	ctx := c.Request().Context()
	if err := m.TimeBoard(func() error { return ws.board.Refresh(ctx) }); err != nil {
		return h.fail(c, m, "board", err)
	}
	return h.respondSnapshot(c, ws, m)
}

func (h *handlers) createTask(c echo.Context, ws *workspace, m *requestMetrics) error {
	var in domain.TaskInput
	if err := decodeBody(c, &in, false); err != nil {
		return h.fail(c, m, "decode", err)
	}
	if err := in.Validate(); err != nil {
		return h.fail(c, m, "validate", err)
	}
	var created domain.Task
	err := m.TimeBoard(func() (err error) {
		created, err = ws.board.Create(c.Request().Context(), in)
		return err
	})
	if err != nil {
		return h.fail(c, m, "board", err)
	}
	return h.respond(c, m, http.StatusCreated, created)
}

func (h *handlers) updateTask(c echo.Context, ws *workspace, m *requestMetrics) error {
	var task domain.Task
	if err := decodeBody(c, &task, false); err != nil {
		return h.fail(c, m, "decode", err)
	}
	task.ID = c.Param("id")
	in := task.Input()
	if err := in.Validate(); err != nil {
		return h.fail(c, m, "validate", err)
	}
	var updated domain.Task
	err := m.TimeBoard(func() (err error) {
		updated, err = ws.board.Update(c.Request().Context(), task)
		return err
	})
	if err != nil {
		return h.fail(c, m, "board", err)
	}
	return h.respond(c, m, http.StatusOK, updated)
}

func (h *handlers) moveTask(c echo.Context, ws *workspace, m *requestMetrics) error {
	var req moveRequest
	if err := decodeBody(c, &req, false); err != nil {
		return h.fail(c, m, "decode", err)
	}
	if !req.Status.Valid() {
		return h.fail(c, m, "validate", fmt.Errorf("%w: unknown status %q", domain.ErrValidation, req.Status))
	}
	var moved domain.Task
	err := m.TimeBoard(func() (err error) {
		moved, err = ws.board.Move(c.Request().Context(), c.Param("id"), req.Status)
		return err
	})
	if err != nil {
		return h.fail(c, m, "board", err)
	}
	return h.respond(c, m, http.StatusOK, moved)
}

func (h *handlers) deleteTask(c echo.Context, ws *workspace, m *requestMetrics) error {
	err := m.TimeBoard(func() error {
		return ws.board.Delete(c.Request().Context(), c.Param("id"))
	})
	if err != nil {
		return h.fail(c, m, "board", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) setFilter(c echo.Context, ws *workspace, m *requestMetrics) error {
	var f domain.Filter
	if err := decodeBody(c, &f, false); err != nil {
		return h.fail(c, m, "decode", err)
	}
	if _, err := ws.board.SetFilter(f); err != nil {
		return h.fail(c, m, "board", err)
	}
	return h.respondSnapshot(c, ws, m)
}

func (h *handlers) toggleSelection(c echo.Context, ws *workspace, m *requestMetrics) error {
	id := c.Param("id")
	on, err := ws.board.ToggleSelection(id)
	if err != nil {
		return h.fail(c, m, "board", err)
	}
	return h.respond(c, m, http.StatusOK, selectionResponse{TaskID: id, Selected: on})
}

func (h *handlers) clearSelection(c echo.Context, ws *workspace, m *requestMetrics) error {
	if err := ws.board.ClearSelection(); err != nil {
		return h.fail(c, m, "board", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) batchUpdate(c echo.Context, ws *workspace, m *requestMetrics) error {
	var req batchRequest
	if err := decodeBody(c, &req, false); err != nil {
		return h.fail(c, m, "decode", err)
	}
	m.SetBatchSize(len(req.TaskIDs))
	if err := req.Patch.Validate(); err != nil {
		return h.fail(c, m, "validate", err)
	}
	ctx := c.Request().Context()
	var updated []domain.Task
	err := m.TimeBoard(func() (err error) {
		if req.TaskIDs == nil {
			updated, err = ws.board.BatchUpdateSelected(ctx, req.Patch)
		} else {
			updated, err = ws.board.BatchUpdate(ctx, req.TaskIDs, req.Patch)
		}
		return err
	})
	if err != nil {
		return h.fail(c, m, "board", err)
	}
	m.SetTasksReturned(len(updated))
	return h.respond(c, m, http.StatusOK, batchResponse{Tasks: updated})
}

func (h *handlers) batchDelete(c echo.Context, ws *workspace, m *requestMetrics) error {
	var req struct {
		TaskIDs []string `json:"taskIds,omitempty"`
	}
	if err := decodeBody(c, &req, true); err != nil {
		return h.fail(c, m, "decode", err)
	}
	m.SetBatchSize(len(req.TaskIDs))
	ctx := c.Request().Context()
	err := m.TimeBoard(func() error {
		if req.TaskIDs == nil {
			return ws.board.BatchDeleteSelected(ctx)
		}
		return ws.board.BatchDelete(ctx, req.TaskIDs)
	})
	if err != nil {
		return h.fail(c, m, "board", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) getHistory(c echo.Context, ws *workspace, m *requestMetrics) error {
	items, err := ws.board.History(c.QueryParam("taskId"))
	if err != nil {
		return h.fail(c, m, "board", err)
	}
	if items == nil {
		items = []board.HistoryItem{}
	}
	return h.respond(c, m, http.StatusOK, items)
}

func (h *handlers) respondSnapshot(c echo.Context, ws *workspace, m *requestMetrics) error {
	snap, err := ws.board.Snapshot()
	if err != nil {
		return h.fail(c, m, "board", err)
	}
	m.SetTasksReturned(len(snap.FilteredTasks))
	return h.respond(c, m, http.StatusOK, snap)
}

func (h *handlers) respond(c echo.Context, m *requestMetrics, status int, v any) error {
	start := time.Now()
	err := c.JSON(status, v)
	m.ObserveEncode(time.Since(start))
	if err != nil {
		m.Fail("encode_response", err)
	}
	return err
}

// fail writes err as a plain-text response with the status it maps to.
func (h *handlers) fail(c echo.Context, m *requestMetrics, stage string, err error) error {
	m.Fail(stage, err)
	return c.String(statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, board.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody strictly decodes a JSON body. An empty body is accepted only
// when allowEmpty is set and leaves v untouched.
func decodeBody(c echo.Context, v any, allowEmpty bool) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", domain.ErrValidation, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: empty body", domain.ErrValidation)
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid body", domain.ErrValidation)
	}
	return nil
}
