package tcp

import (
	"bufio"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"

	"tbroker/broker_common/messages"
	"tbroker/common/logger"
)

const DefaultDialTimeout = 5 * time.Second

var ErrNotConnected = errors.New("no connection has been established yet")

// TCPClient speaks the broker protocol over TCP: a welcome line, then frames both ways.
type TCPClient struct {
	serverAddr string
	protocol   uint8
	retryCount int
	logger     *logger.SimpleLogger

	conn    net.Conn
	reader  *bufio.Reader
	frames  *messages.FrameReader
	welcome string
}

func NewTCPClient(serverAddr string, protocol uint8, retryCount int, l *logger.SimpleLogger) *TCPClient {
	if retryCount < 1 {
		retryCount = 1
	}
	return &TCPClient{
		serverAddr: serverAddr,
		protocol:   protocol,
		retryCount: retryCount,
		logger:     l.WithPrefix("[TCPClient]"),
	}
}

func (c *TCPClient) Connect() error {
	return c.connectWithRetry(c.retryCount, nil)
}

func (c *TCPClient) connectWithRetry(retry int, lastErr error) error {
	if retry == 0 {
		return lastErr
	}
	conn, err := net.DialTimeout("tcp", c.serverAddr, DefaultDialTimeout)
	if err != nil {
		c.logger.Debugf("dial %s failed: %s, %d retries left", c.serverAddr, err.Error(), retry-1)
		return c.connectWithRetry(retry-1, err)
	}
	return c.handleConnection(conn)
}

func (c *TCPClient) handleConnection(conn net.Conn) error {
	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(DefaultDialTimeout))
	line, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return errors.Wrapf(err, "no welcome from %s", c.serverAddr)
	}
	conn.SetReadDeadline(time.Time{})
	c.conn = conn
	c.reader = reader
	c.frames = messages.NewFrameReader(reader, 0)
	c.welcome = strings.TrimSuffix(line, "\n")
	c.logger.Debugf("connected to %s: %s", c.serverAddr, c.welcome)
	return nil
}

func (c *TCPClient) Welcome() string {
	return c.welcome
}

func (c *TCPClient) LocalAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

func (c *TCPClient) Send(envelope messages.Envelope) error {
	frame, err := messages.EncodeEnvelope(envelope, c.protocol)
	if err != nil {
		return err
	}
	return c.SendRaw(messages.EncodeFrame(frame))
}

// SendRaw writes data as is, without framing.
func (c *TCPClient) SendRaw(data []byte) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	_, err := c.conn.Write(data)
	return err
}

// Receive waits up to timeout for the next envelope; zero waits forever.
func (c *TCPClient) Receive(timeout time.Duration) (messages.Envelope, error) {
	if c.conn == nil {
		return messages.Envelope{}, ErrNotConnected
	}
	c.conn.SetReadDeadline(deadline(timeout))
	frame, err := c.frames.Next()
	if err != nil {
		return messages.Envelope{}, err
	}
	return messages.DecodeFrame(frame)
}

func (c *TCPClient) Close() error {
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.Close()
}
