// Package healthcheck exposes a unix-socket readiness protocol: the daemon
// opens the socket on startup and closes readyCh once attach() has
// succeeded, so `hud wait` (or a supervising process) can block until the
// eBPF programs are actually loaded rather than just the process existing.
package healthcheck

import (
	"context"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"

	log "github.com/rs/zerolog"
)

// ReadyByte is the single byte written to a connecting client once the
// session is attached and tracing; pkg/cmd/wait reads it back to decide
// the daemon is up.
const ReadyByte = 0x01

// ReadinessServer serves the attach-readiness protocol over a unix domain
// socket at socketPath, for hud wait and other supervisors to poll.
type ReadinessServer struct {
	ln         net.Listener
	readyCh    chan struct{}
	socketPath string
	logger     log.Logger
}

func NewReadinessServer(socketPath string, logger log.Logger) *ReadinessServer {
	l := logger.With().Str("component", "healthcheck").Logger()
	return &ReadinessServer{
		socketPath: socketPath,
		readyCh:    make(chan struct{}),
		logger:     l,
	}
}

// InitializeListener binds the readiness socket and starts accepting
// connections in the background.
func (s *ReadinessServer) InitializeListener(ctx context.Context) error {
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errors.Wrap(err, "healthcheck: listen on readiness socket")
	}
	s.ln = ln

	go s.acceptConnections(ctx)

	return nil
}

// NotifyReadiness unblocks every connection waiting on the readiness
// message. Called once, right after attach() succeeds.
func (s *ReadinessServer) NotifyReadiness() {
	s.logger.Debug().Msg("marking readiness")
	close(s.readyCh)
}

// ShutdownListener closes the listener and removes the socket file.
func (s *ReadinessServer) ShutdownListener() error {
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("error closing listener")
		}
	}

	if err := os.Remove(s.socketPath); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug().Err(err).Msg("error removing socket")
			return err
		}
		s.logger.Debug().Msg("ignoring removing socket file, as it is already removed")
	}

	return nil
}

func (s *ReadinessServer) acceptConnections(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("stopping accepting connections")
			return
		default:
			conn, err := s.ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					s.logger.Debug().Msg("ignoring accepting connection as it is closed")
					return
				}
				s.logger.Warn().Err(err).Msg("accept error")
				continue
			}

			go s.processConnection(ctx, conn)
		}
	}
}

// processConnection blocks until readyCh closes or ctx is canceled, then
// writes the readiness byte to the waiting client.
func (s *ReadinessServer) processConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	select {
	case <-s.readyCh:
		if !s.isConnectionAlive(conn) {
			s.logger.Debug().Msg("connection is closed")
			return
		}
		if err := s.safeWrite(conn, []byte{ReadyByte}); err != nil {
			if !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				s.logger.Debug().Err(err).Msg("failed to write")
			}
		}
	case <-ctx.Done():
		s.logger.Debug().Msg("ignoring sending readiness message as context is canceled")
		return
	}
}

func (s *ReadinessServer) isConnectionAlive(conn net.Conn) bool {
	conn.SetReadDeadline(time.Now())
	if _, err := conn.Read([]byte{}); err == io.EOF {
		s.logger.Debug().Err(err).Msg("cannot write ready message: connection is already closed")
		conn.Close()

		return false
	}

	conn.SetReadDeadline(time.Time{})
	return true
}

func (s *ReadinessServer) safeWrite(conn net.Conn, data []byte) error {
	_, err := conn.Write(data)
	if err != nil {
		switch {
		case errors.Is(err, syscall.EPIPE):
			conn.Close()
			return errors.Wrap(err, "peer closed the connection")
		case errors.Is(err, syscall.ECONNRESET):
			conn.Close()
			return errors.Wrap(err, "peer reset the connection")
		default:
			return errors.Wrap(err, "failed to write")
		}
	}
	return nil
}
