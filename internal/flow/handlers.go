package flow

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arc-self/amy-core/internal/httpmiddleware"
)

const defaultReplayCount = 50

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RegisterRoutes mounts the read-only dashboard-facing surface spec.md §1
// Non-goals still permit: GET /v1/flow-events (ring buffer snapshot), the
// WS upgrade endpoint, and /healthz (spec.md §4.6, §6.4).
func RegisterRoutes(e *echo.Echo, emitter *Emitter, logger *zap.Logger) {
	e.GET("/healthz", healthzHandler(emitter))
	e.GET("/v1/flow-events", flowEventsHandler(emitter), httpmiddleware.NullToEmptyArray())
	e.GET("/ws", wsHandler(emitter, logger))
}

func healthzHandler(emitter *Emitter) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":        "ok",
			"dropped_event": emitter.DroppedCount(),
		})
	}
}

func flowEventsHandler(emitter *Emitter) echo.HandlerFunc {
	return func(c echo.Context) error {
		n := defaultReplayCount
		if v := c.QueryParam("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				n = parsed
			}
		}
		return c.JSON(http.StatusOK, emitter.ring.Last(n))
	}
}

// wsHandler upgrades the connection, replays the last N ring-buffer
// events, then streams live events one JSON frame per event until the
// client disconnects (spec.md §6.4).
func wsHandler(emitter *Emitter, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		n := defaultReplayCount
		if v := c.QueryParam("replay"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
				n = parsed
			}
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return err
		}
		defer conn.Close()

		events, replay, cancel := emitter.Subscribe(n)
		defer cancel()

		for _, ev := range replay {
			if err := writeEvent(conn, ev); err != nil {
				return nil
			}
		}

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if err := writeEvent(conn, ev); err != nil {
					return nil
				}
			case <-c.Request().Context().Done():
				return nil
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev Event) error {
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return conn.WriteJSON(ev)
}
