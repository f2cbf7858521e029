package connection_manager

import (
	"tbroker/broker_server/core/conn"
	"tbroker/common/logger"
)

type IConnectionManager interface {
	AddConnection(*conn.Connection) error
	RemoveConnection(id string) error
	GetConnection(id string) *conn.Connection
	Count() int
	Disconnect(id string) error
	DisconnectAllConnections() error
	WithAllConnections(func(*conn.Connection))
}

// ConnectionManager tracks live client connections. A connection removes itself from the
// manager when it closes.
type ConnectionManager struct {
	logger    *logger.SimpleLogger
	connStore IConnectionStore
}

func NewConnectionManager(l *logger.SimpleLogger) *ConnectionManager {
	return &ConnectionManager{
		logger:    l.WithPrefix("[ConnectionManager]"),
		connStore: NewInMemoryConnectionStore(),
	}
}

func (m *ConnectionManager) AddConnection(c *conn.Connection) (err error) {
	defer func() {
		logger.LogError(m.logger, "AddConnection", err)
	}()
	if err = m.connStore.Add(c); err != nil {
		return
	}
	c.OnClose(m.handleConnectionClosed)
	m.logger.Debugf("connection %s added, %d connections alive", c.Id(), m.connStore.Size())
	return
}

func (m *ConnectionManager) handleConnectionClosed(c *conn.Connection) {
	if m.connStore.Delete(c.Id()) == nil {
		m.logger.Printf("connection %s(%s) closed", c.Id(), c.Address())
	}
}

func (m *ConnectionManager) RemoveConnection(id string) error {
	return m.connStore.Delete(id)
}

func (m *ConnectionManager) GetConnection(id string) *conn.Connection {
	return m.connStore.Get(id)
}

func (m *ConnectionManager) Count() int {
	return m.connStore.Size()
}

func (m *ConnectionManager) Disconnect(id string) error {
	c := m.connStore.Get(id)
	if c == nil {
		return ErrConnectionNotFound
	}
	return c.Close()
}

// DisconnectAllConnections closes every connection and returns the last close error.
func (m *ConnectionManager) DisconnectAllConnections() (err error) {
	for _, c := range m.connStore.GetAll() {
		if e := c.Close(); e != nil {
			m.logger.Warnf("unable to close connection %s due to %s", c.Id(), e.Error())
			err = e
		}
	}
	return
}

func (m *ConnectionManager) WithAllConnections(cb func(*conn.Connection)) {
	for _, c := range m.connStore.GetAll() {
		cb(c)
	}
}
