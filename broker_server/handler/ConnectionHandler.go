package handler

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"tbroker/broker_common/messages"
	"tbroker/broker_server/core/conn"
	"tbroker/broker_server/core/connection_manager"
	brokererr "tbroker/broker_server/core/error"
	"tbroker/broker_server/core/router"
	"tbroker/broker_server/core/topic"
	"tbroker/common/connection"
	"tbroker/common/logger"
)

type IConnectionHandler interface {
	// Handle serves transport until it fails, the peer leaves or ctx is cancelled. It blocks.
	Handle(ctx context.Context, transport connection.IConnection)
}

type ConnectionHandler struct {
	router      router.IRouter
	registry    topic.IRegistry
	connections connection_manager.IConnectionManager
	timeout     time.Duration
	queueSize   int
	logger      *logger.SimpleLogger
}

func NewConnectionHandler(
	r router.IRouter,
	registry topic.IRegistry,
	connections connection_manager.IConnectionManager,
	timeout time.Duration,
	l *logger.SimpleLogger,
) *ConnectionHandler {
	return &ConnectionHandler{
		router:      r,
		registry:    registry,
		connections: connections,
		timeout:     timeout,
		queueSize:   conn.DefaultOutboundQueueSize,
		logger:      l.WithPrefix("[Handler]"),
	}
}

func (h *ConnectionHandler) Handle(ctx context.Context, transport connection.IConnection) {
	c := conn.NewConnection(transport, h.queueSize, h.timeout, h.logger)
	if err := h.connections.AddConnection(c); err != nil {
		c.Close()
		return
	}
	h.logger.Printf("new %s connection %s from %s", connection.TypeName(transport.ConnectionType()), c.Id(), c.Address())
	c.StartWriter()
	defer h.cleanup(c)
	h.readLoop(ctx, c)
}

func (h *ConnectionHandler) readLoop(ctx context.Context, c *conn.Connection) {
	for ctx.Err() == nil {
		frame, err := c.Transport().Read(h.timeout)
		if err == nil {
			h.handleFrame(c, frame)
			continue
		}
		if brokererr.IsTimeout(err) {
			continue
		}
		if errors.Is(err, messages.ErrFrameTooLarge) {
			if !h.rejectOversize(c, err) {
				return
			}
			continue
		}
		if ctx.Err() == nil && !c.IsClosed() {
			h.logger.Printf("connection %s from %s ended: %s", c.Id(), c.Address(),
				brokererr.Wrap(brokererr.ClassifyTransportError(err), err, err.Error()).Error())
		}
		return
	}
}

func (h *ConnectionHandler) handleFrame(c *conn.Connection, frame messages.Frame) {
	if _, err := messages.ParserFor(frame.Protocol); err == nil {
		c.SetProtocol(frame.Protocol)
	}
	envelope, err := messages.DecodeFrame(frame)
	if err != nil {
		berr := brokererr.NewInvalidEnvelopeError("unable to decode frame: %s", err.Error())
		h.logger.Warnf("connection %s sent an invalid frame: %s", c.Id(), berr.Message())
		h.reply(c, router.Rejection(berr))
		return
	}
	h.logger.Debugf("received %s from %s", envelope.String(), c.Id())
	result := h.router.Handle(c, envelope)
	if result.Status == router.Rejected {
		h.logger.Warnf("%s from %s rejected: %s", envelope.Type, c.Id(), result.Err.Error())
	}
	h.reply(c, result)
}

func (h *ConnectionHandler) reply(c *conn.Connection, result router.RouteResult) {
	if err := c.Deliver(result.Reply); err != nil {
		h.logger.Debugf("unable to reply to %s: %s", c.Id(), err.Error())
	}
}

// rejectOversize answers an oversize frame and reports whether the connection can still be read.
// The tcp frame reader has already skipped the body. A websocket past its read limit is unusable.
func (h *ConnectionHandler) rejectOversize(c *conn.Connection, cause error) bool {
	berr := brokererr.NewInvalidEnvelopeError("%s", cause.Error())
	h.logger.Warnf("connection %s from %s sent an oversize frame: %s", c.Id(), c.Address(), cause.Error())
	h.reply(c, router.Rejection(berr))
	if c.Transport().ConnectionType() == connection.TypeWS {
		c.CloseGracefully(h.timeout)
		return false
	}
	return true
}

// cleanup withdraws every binding before the connection closes. Closing removes it from the
// connection manager.
func (h *ConnectionHandler) cleanup(c *conn.Connection) {
	bindings := h.registry.WithdrawAll(c)
	for _, b := range bindings {
		h.logger.Debugf("connection %s withdrawn as %s of topic %s", c.Id(), b.Role, b.Topic)
	}
	c.Close()
	h.logger.Printf("connection %s from %s closed, %d bindings withdrawn", c.Id(), c.Address(), len(bindings))
}
