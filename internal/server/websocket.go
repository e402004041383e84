package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/codeon-dev/codeon/internal/executor"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // tenant identity is established upstream
	},
}

// defaultTenant is used when the connection carries no tenant metadata.
const defaultTenant = "default-user"

// wsConn serializes writes to one WebSocket connection.
type wsConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *zap.Logger
}

func (c *wsConn) write(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		c.logger.Debug("websocket write", zap.Error(err))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		tenant = defaultTenant
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := &Session{
		ID:     uuid.New().String(),
		Tenant: tenant,
		cancel: cancel,
		status: StatusConnecting,
	}
	s.sessions.Add(sess)
	defer s.sessions.Remove(sess.ID)
	defer sess.setStatus(StatusDisconnected)

	s.logger.Info("session connected",
		zap.String("session", sess.ID),
		zap.String("tenant", tenant))
	defer s.logger.Info("session disconnected",
		zap.String("session", sess.ID),
		zap.String("tenant", tenant))

	c := &wsConn{conn: conn, logger: s.logger}

	// The reader feeds a dispatch loop so a disconnect cancels in-flight
	// work instead of waiting behind it. Commands from one session are
	// still processed strictly in receipt order.
	cmds := make(chan command)
	go func() {
		defer close(cmds)
		for {
			var cmd command
			if err := conn.ReadJSON(&cmd); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("websocket read", zap.Error(err))
				}
				cancel()
				return
			}
			select {
			case cmds <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			s.dispatch(ctx, c, sess, cmd)
		}
	}
}

// dispatch handles one command. Every failure produces exactly one error
// event; failures never cross tenants and the session stays usable.
func (s *Server) dispatch(ctx context.Context, c *wsConn, sess *Session, cmd command) {
	switch cmd.Type {
	case cmdInit:
		sb, err := s.registry.Acquire(ctx, sess.Tenant)
		if err != nil {
			s.fail(c, sess, err)
			return
		}
		sess.setStatus(StatusReady)
		c.write(readyEvent{Type: "ready", SandboxID: sb.ID})

	case cmdExecute:
		sb, err := s.registry.Acquire(ctx, sess.Tenant)
		if err != nil {
			s.fail(c, sess, err)
			return
		}

		sess.setStatus(StatusExecuting)
		c.write(statusEvent{
			Type:    "status",
			State:   "running",
			Message: fmt.Sprintf("Executing %s code...", cmd.Language),
		})

		res, err := s.engine.Run(ctx, sb, executor.Request{Code: cmd.Code, Language: cmd.Language})
		if err != nil {
			s.fail(c, sess, err)
			c.write(statusEvent{Type: "status", State: "error", Message: "Execution failed"})
			return
		}

		c.write(outputEvent{
			Type:     "output",
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			ExitCode: res.ExitCode,
		})
		sess.setStatus(StatusReady)
		c.write(statusEvent{Type: "status", State: "ready", Message: "Ready for next execution"})

	case cmdStop:
		// Stop tears down the tenant's sandbox entirely; the next init or
		// execute provisions a fresh one.
		if err := s.registry.Release(ctx, sess.Tenant); err != nil {
			s.fail(c, sess, err)
			return
		}
		sess.setStatus(StatusReady)
		c.write(stoppedEvent{Type: "stopped"})

	case cmdLogs:
		data, err := s.registry.Logs(ctx, sess.Tenant)
		if err != nil {
			s.fail(c, sess, err)
			return
		}
		c.write(logsEvent{Type: "logs", Text: string(data)})

	default:
		c.write(errorEvent{Type: "error", Message: "unknown command: " + cmd.Type})
	}
}

// fail emits the single error event for a failed command and returns the
// session to a usable state.
func (s *Server) fail(c *wsConn, sess *Session, err error) {
	s.logger.Warn("command failed",
		zap.String("session", sess.ID),
		zap.String("tenant", sess.Tenant),
		zap.Error(err))
	sess.setStatus(StatusError)
	c.write(errorEvent{Type: "error", Message: err.Error()})
	sess.setStatus(StatusReady)
}
