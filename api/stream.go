package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const streamKeepAlive = 25 * time.Second

// streamBoard pushes a board snapshot as a server-sent event after every
// change. Browsers cannot set headers on EventSource, so the token may come
// from the query string instead.
func (h *handlers) streamBoard(c echo.Context) (err error) {
	m := h.begin(c, "/api/board/stream")
	defer func() {
		m.Log(c.Response().Status, err)
	}()

	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token := c.QueryParam("token"); header == "" && token != "" {
		header = "Bearer " + token
	}
	ws, authErr := h.resolve(c, m, header)
	if authErr != nil {
		return h.fail(c, m, "auth", authErr)
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	ctx := c.Request().Context()
	updates, subErr := ws.board.Subscribe(ctx)
	if subErr != nil {
		return h.fail(c, m, "subscribe", subErr)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Response().Write([]byte(": keep-alive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case snap, open := <-updates:
			if !open {
				return nil
			}
			data, err := sonic.Marshal(snap)
			if err != nil {
				m.Fail("encode_response", err)
				return nil
			}
			if _, err := c.Response().Write([]byte("event: snapshot\ndata: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(data); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
