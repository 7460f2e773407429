package healthcheck

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// mockConn implements net.Conn for processConnection's write path.
type mockConn struct {
	mock.Mock
}

func (m *mockConn) Read(b []byte) (n int, err error) {
	args := m.Called(b)
	return args.Int(0), args.Error(1)
}

func (m *mockConn) Write(b []byte) (n int, err error) {
	args := m.Called(b)
	return args.Int(0), args.Error(1)
}

func (m *mockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockConn) LocalAddr() net.Addr {
	args := m.Called()
	return args.Get(0).(net.Addr)
}

func (m *mockConn) RemoteAddr() net.Addr {
	args := m.Called()
	return args.Get(0).(net.Addr)
}

func (m *mockConn) SetDeadline(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *mockConn) SetReadDeadline(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *mockConn) SetWriteDeadline(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

func TestReadinessServerInitializeListener(t *testing.T) {
	t.Run("should start UDS listener without errors", func(t *testing.T) {
		logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
		rs := NewReadinessServer("/tmp/hud-readiness.sock", logger)

		os.Remove("/tmp/hud-readiness.sock")
		ln, err := net.Listen("unix", "/tmp/hud-readiness.sock")
		assert.Nil(t, err)
		rs.ln = ln

		err = rs.InitializeListener(context.Background())
		assert.Nil(t, err)
	})
}

func TestReadinessServerNotifyReadiness(t *testing.T) {
	t.Run("should write readiness byte once ready", func(t *testing.T) {
		logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
		rs := NewReadinessServer("/tmp/hud-readiness.sock", logger)

		rs.NotifyReadiness()

		assert.Panics(t, func() {
			rs.readyCh <- struct{}{}
		})

		conn := new(mockConn)
		conn.On("Write", []byte{ReadyByte}).Return(1, nil)
		conn.On("Close").Return(nil)
		conn.On("SetReadDeadline", mock.Anything).Return(nil)
		conn.On("Read", mock.AnythingOfType("[]uint8")).Return(1, nil)

		rs.processConnection(context.Background(), conn)

		conn.AssertExpectations(t)
	})
}

func TestReadinessServerShutdownListener(t *testing.T) {
	t.Run("should close the listener and remove the socket", func(t *testing.T) {
		logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
		rs := NewReadinessServer("/tmp/hud-readiness.sock", logger)

		os.Remove("/tmp/hud-readiness.sock")
		ln, err := net.Listen("unix", "/tmp/hud-readiness.sock")
		assert.Nil(t, err)
		rs.ln = ln

		go rs.acceptConnections(context.Background())

		err = rs.ShutdownListener()
		assert.Nil(t, err)

		fi, err := os.Stat(rs.socketPath)
		assert.Nil(t, fi)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
