package wclient

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"tbroker/broker_common/messages"
	"tbroker/common/logger"
	"tbroker/websocket/connection"
)

var ErrNotConnected = errors.New("connection is not established yet")

// WClient speaks the broker protocol over websocket. A Receive that times out leaves the
// underlying connection unusable, the client must be closed afterwards.
type WClient struct {
	serverUrl string
	protocol  uint8
	logger    *logger.SimpleLogger
	conn      *websocket.Conn
	welcome   string
}

func New(serverUrl string, protocol uint8, l *logger.SimpleLogger) *WClient {
	return &WClient{
		serverUrl: serverUrl,
		protocol:  protocol,
		logger:    l.WithPrefix("[WebSocketClient]"),
	}
}

func (c *WClient) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.serverUrl, nil)
	if err != nil {
		return errors.Wrapf(err, "unable to dial %s", c.serverUrl)
	}
	conn.SetReadDeadline(time.Now().Add(websocket.DefaultDialer.HandshakeTimeout))
	messageType, welcome, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return errors.Wrapf(err, "no welcome from %s", c.serverUrl)
	}
	conn.SetReadDeadline(time.Time{})
	if messageType != websocket.TextMessage {
		conn.Close()
		return errors.Errorf("unexpected welcome message type %d", messageType)
	}
	c.conn = conn
	c.welcome = string(welcome)
	c.logger.Debugf("connected to %s: %s", c.serverUrl, c.welcome)
	return nil
}

func (c *WClient) Welcome() string {
	return c.welcome
}

func (c *WClient) Send(envelope messages.Envelope) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	frame, err := messages.EncodeEnvelope(envelope, c.protocol)
	if err != nil {
		return err
	}
	messageType, err := connection.MessageTypeOf(frame.Protocol)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, frame.Body)
}

// SendRaw writes data as a single message of messageType.
func (c *WClient) SendRaw(messageType int, data []byte) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *WClient) Receive(timeout time.Duration) (messages.Envelope, error) {
	if c.conn == nil {
		return messages.Envelope{}, ErrNotConnected
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	c.conn.SetReadDeadline(deadline)
	messageType, body, err := c.conn.ReadMessage()
	if err != nil {
		return messages.Envelope{}, err
	}
	protocol, err := connection.ProtocolOf(messageType)
	if err != nil {
		return messages.Envelope{}, err
	}
	return messages.DecodeFrame(messages.Frame{Protocol: protocol, Body: body})
}

func (c *WClient) Close() error {
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.Close()
}
