package tcp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"tbroker/broker_common/messages"
	"tbroker/common/connection"
)

// TCPConnection carries length-prefixed frames over a net.Conn.
type TCPConnection struct {
	conn   net.Conn
	reader *messages.FrameReader
	state  int
	rwLock *sync.RWMutex
}

func NewTCPConnection(conn net.Conn, sizeLimit int) *TCPConnection {
	return &TCPConnection{
		conn:   conn,
		reader: messages.NewFrameReader(conn, sizeLimit),
		state:  connection.StateIdle,
		rwLock: new(sync.RWMutex),
	}
}

func (c *TCPConnection) withWrite(cb func()) {
	c.rwLock.Lock()
	defer c.rwLock.Unlock()
	cb()
}

func (c *TCPConnection) State() (state int) {
	c.rwLock.RLock()
	defer c.rwLock.RUnlock()
	return c.state
}

func (c *TCPConnection) setState(state int) {
	c.withWrite(func() {
		if c.state < state {
			c.state = state
		}
	})
}

func (c *TCPConnection) ConnectionType() uint8 {
	return connection.TypeTCP
}

func (c *TCPConnection) Address() string {
	return c.conn.RemoteAddr().String()
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func (c *TCPConnection) Greet(welcome string) error {
	return c.writeAll([]byte(welcome+"\n"), 0)
}

func (c *TCPConnection) Read(timeout time.Duration) (messages.Frame, error) {
	c.setState(connection.StateReading)
	if err := c.conn.SetReadDeadline(deadline(timeout)); err != nil {
		return messages.Frame{}, err
	}
	return c.reader.Next()
}

func (c *TCPConnection) Write(frame messages.Frame, timeout time.Duration) error {
	return c.writeAll(messages.EncodeFrame(frame), timeout)
}

func (c *TCPConnection) writeAll(data []byte, timeout time.Duration) error {
	if err := c.conn.SetWriteDeadline(deadline(timeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *TCPConnection) Close() (err error) {
	if c.State() >= connection.StateClosing {
		return nil
	}
	c.setState(connection.StateClosing)
	err = c.conn.Close()
	c.setState(connection.StateDisconnected)
	return
}

func (c *TCPConnection) String() string {
	return fmt.Sprintf("TCPConnection { address: %s, state: %d }", c.Address(), c.State())
}
