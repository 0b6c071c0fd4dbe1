package controller

import (
	"context"
	"net/http"
	"time"

	"algojudge/internal/judge/model"
	appErr "algojudge/pkg/errors"
	"algojudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// WatchConfig controls the websocket status stream.
type WatchConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxDuration  time.Duration `yaml:"maxDuration"`
}

func (c *WatchConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 10 * time.Minute
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Watch streams status changes of a submission over a websocket until the
// pass reaches a terminal state or the client goes away.
func (h *JudgeController) Watch(c *gin.Context) {
	submissionID := c.Param("id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.watch.MaxDuration)
	defer cancel()
	go readUntilClosed(conn, cancel)

	ticker := time.NewTicker(h.watch.PollInterval)
	defer ticker.Stop()
	var last model.JudgeStatus
	sent := false
	for {
		status, err := h.svc.Status(ctx, submissionID)
		switch {
		case err == nil:
			if !sent || status != last {
				if err := writeJSON(conn, status); err != nil {
					return
				}
				last, sent = status, true
			}
			if status.State.Terminal() {
				closeWith(conn, websocket.CloseNormalClosure, "judging finished")
				return
			}
		case !appErr.Is(err, appErr.NotFound):
			logger.Warn(ctx, "watch status failed", zap.Error(err))
			closeWith(conn, websocket.CloseInternalServerErr, "status unavailable")
			return
		}

		select {
		case <-ctx.Done():
			closeWith(conn, websocket.CloseGoingAway, "watch ended")
			return
		case <-ticker.C:
		}
	}
}

// readUntilClosed drains client frames so control messages are handled and
// cancels the watch when the client disconnects.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	// The hijacked conn keeps the http.Server read deadline.
	_ = conn.SetReadDeadline(time.Time{})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
