package connection_manager

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tbroker/broker_common/messages"
	"tbroker/broker_server/core/conn"
	"tbroker/common/connection"
	"tbroker/common/logger"
)

type nopTransport struct {
	closed int32
}

func (f *nopTransport) ConnectionType() uint8 { return connection.TypeTCP }
func (f *nopTransport) Address() string { return "127.0.0.1:9999" }
func (f *nopTransport) Greet(string) error { return nil }
func (f *nopTransport) State() int { return connection.StateReading }
func (f *nopTransport) String() string { return "nop" }
func (f *nopTransport) Write(messages.Frame, time.Duration) error { return nil }
func (f *nopTransport) Read(time.Duration) (messages.Frame, error) {
	return messages.Frame{}, errors.New("not readable")
}

func (f *nopTransport) Close() error {
	atomic.StoreInt32(&f.closed, 1)
	return nil
}

func newConnection(t *testing.T) (*conn.Connection, *nopTransport) {
	transport := &nopTransport{}
	return conn.NewConnection(transport, 4, time.Second, logger.NewTestLogger(t)), transport
}

func TestAddAndRemove(t *testing.T) {
	m := NewConnectionManager(logger.NewTestLogger(t))
	c, _ := newConnection(t)

	require.NoError(t, m.AddConnection(c))
	assert.Equal(t, 1, m.Count())
	assert.Same(t, c, m.GetConnection(c.Id()))
	assert.True(t, errors.Is(m.AddConnection(c), ErrConnectionExists))
	assert.Equal(t, ErrNilConnection, m.AddConnection(nil))

	require.NoError(t, m.RemoveConnection(c.Id()))
	assert.Equal(t, 0, m.Count())
	assert.Nil(t, m.GetConnection(c.Id()))
	assert.True(t, errors.Is(m.RemoveConnection(c.Id()), ErrConnectionNotFound))
}

func TestClosedConnectionRemovesItself(t *testing.T) {
	m := NewConnectionManager(logger.NewTestLogger(t))
	c, transport := newConnection(t)
	require.NoError(t, m.AddConnection(c))

	require.NoError(t, m.Disconnect(c.Id()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&transport.closed))
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, ErrConnectionNotFound, m.Disconnect(c.Id()))
}

func TestDisconnectAllConnections(t *testing.T) {
	m := NewConnectionManager(logger.NewTestLogger(t))
	var transports []*nopTransport
	for i := 0; i < 5; i++ {
		c, transport := newConnection(t)
		transports = append(transports, transport)
		require.NoError(t, m.AddConnection(c))
	}
	visited := 0
	m.WithAllConnections(func(*conn.Connection) {
		visited++
	})
	assert.Equal(t, 5, visited)

	require.NoError(t, m.DisconnectAllConnections())
	assert.Equal(t, 0, m.Count())
	for _, transport := range transports {
		assert.Equal(t, int32(1), atomic.LoadInt32(&transport.closed))
	}
}
