package handler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tbroker/broker_common/messages"
	"tbroker/broker_server/core/connection_manager"
	brokererr "tbroker/broker_server/core/error"
	"tbroker/broker_server/core/router"
	"tbroker/broker_server/core/topic"
	"tbroker/common/connection"
	"tbroker/common/logger"
	"tbroker/common/test_utils"
)

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }
func (timeoutError) Temporary() bool { return true }

type readResult struct {
	frame messages.Frame
	err   error
}

// scriptedTransport hands out queued read results and records written frames.
type scriptedTransport struct {
	addr     string
	connType uint8
	inbox    chan readResult
	closed   chan struct{}
	once     sync.Once
	lock     sync.Mutex
	written  []messages.Envelope
}

func newScriptedTransport(addr string) *scriptedTransport {
	return &scriptedTransport{addr: addr, inbox: make(chan readResult, 16), closed: make(chan struct{})}
}

func (s *scriptedTransport) ConnectionType() uint8 { return s.connType }
func (s *scriptedTransport) Address() string { return s.addr }
func (s *scriptedTransport) Greet(string) error { return nil }
func (s *scriptedTransport) State() int { return connection.StateReading }
func (s *scriptedTransport) String() string { return s.addr }

func (s *scriptedTransport) Read(timeout time.Duration) (messages.Frame, error) {
	select {
	case r := <-s.inbox:
		return r.frame, r.err
	case <-s.closed:
		return messages.Frame{}, io.EOF
	case <-time.After(timeout):
		return messages.Frame{}, timeoutError{}
	}
}

func (s *scriptedTransport) Write(frame messages.Frame, _ time.Duration) error {
	e, err := messages.DecodeFrame(frame)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.written = append(s.written, e)
	return nil
}

func (s *scriptedTransport) Close() error {
	s.once.Do(func() {
		close(s.closed)
	})
	return nil
}

func (s *scriptedTransport) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *scriptedTransport) send(t *testing.T, envelope messages.Envelope, protocol uint8) {
	frame, err := messages.EncodeEnvelope(envelope, protocol)
	require.NoError(t, err)
	s.inbox <- readResult{frame: frame}
}

func (s *scriptedTransport) received() []messages.Envelope {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]messages.Envelope(nil), s.written...)
}

func (s *scriptedTransport) waitFor(n int) []messages.Envelope {
	test_utils.Eventually(time.Second, func() bool {
		return len(s.received()) >= n
	})
	return s.received()
}

type fixture struct {
	handler     *ConnectionHandler
	registry    *topic.Registry
	connections *connection_manager.ConnectionManager
}

func newFixture(t *testing.T) *fixture {
	l := logger.NewTestLogger(t)
	registry := topic.NewRegistry(topic.NewInMemoryTopicStore(), l)
	connections := connection_manager.NewConnectionManager(l)
	h := NewConnectionHandler(router.NewRouter(registry, l), registry, connections, 20*time.Millisecond, l)
	return &fixture{h, registry, connections}
}

func (f *fixture) serve(ctx context.Context, transport connection.IConnection) chan struct{} {
	done := make(chan struct{})
	go func() {
		f.handler.Handle(ctx, transport)
		close(done)
	}()
	return done
}

func waitDone(t *testing.T, done chan struct{}) {
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit")
	}
}

func TestPublishReachesConsumerInItsOwnProtocol(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	producer := newScriptedTransport("127.0.0.1:1001")
	consumer := newScriptedTransport("127.0.0.1:1002")
	f.serve(ctx, producer)
	f.serve(ctx, consumer)

	consumer.send(t, messages.NewRegisterEnvelope("topic1", messages.RoleConsumer), messages.ProtocolFlatBuffer)
	require.Equal(t, []messages.Envelope{messages.NewAckEnvelope("topic1", messages.TypeRegister)}, consumer.waitFor(1))
	producer.send(t, messages.NewRegisterEnvelope("topic1", messages.RoleProducer), messages.ProtocolJSON)
	producer.waitFor(1)

	producer.send(t, messages.NewMessageEnvelope("topic1", "Hello World!"), messages.ProtocolJSON)
	assert.Equal(t, []messages.Envelope{
		messages.NewAckEnvelope("topic1", messages.TypeRegister),
		messages.NewAckEnvelope("topic1", messages.TypeMessage),
	}, producer.waitFor(2))
	assert.Equal(t, messages.NewMessageEnvelope("topic1", "Hello World!"), consumer.waitFor(2)[1])
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	transport := newScriptedTransport("127.0.0.1:1001")
	f.serve(ctx, transport)

	transport.inbox <- readResult{frame: messages.Frame{Protocol: messages.ProtocolJSON, Body: []byte("{not json")}}
	transport.inbox <- readResult{frame: messages.Frame{Protocol: 7, Body: []byte("{}")}}
	transport.send(t, messages.NewRegisterEnvelope("topic1", messages.RoleConsumer), messages.ProtocolJSON)

	received := transport.waitFor(3)
	require.Len(t, received, 3)
	for _, e := range received[:2] {
		assert.Equal(t, messages.TypeError, e.Type)
		assert.Contains(t, e.Content, brokererr.InvalidEnvelope.String())
	}
	assert.Equal(t, messages.NewAckEnvelope("topic1", messages.TypeRegister), received[2])
	assert.False(t, transport.isClosed())
}

func TestOversizeFrameKeepsTCPConnection(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	transport := newScriptedTransport("127.0.0.1:1001")
	f.serve(ctx, transport)

	transport.inbox <- readResult{err: errors.Wrapf(messages.ErrFrameTooLarge, "frame of %d bytes", 2048)}
	transport.send(t, messages.NewRegisterEnvelope("topic1", messages.RoleConsumer), messages.ProtocolJSON)

	received := transport.waitFor(2)
	require.Len(t, received, 2)
	assert.Equal(t, messages.TypeError, received[0].Type)
	assert.Contains(t, received[0].Content, brokererr.InvalidEnvelope.String())
	assert.Equal(t, messages.NewAckEnvelope("topic1", messages.TypeRegister), received[1])
	assert.False(t, transport.isClosed())
	assert.Equal(t, 1, f.connections.Count())
}

func TestOversizeFrameClosesWebsocket(t *testing.T) {
	f := newFixture(t)
	transport := newScriptedTransport("127.0.0.1:1001")
	transport.connType = connection.TypeWS
	done := f.serve(context.Background(), transport)

	transport.inbox <- readResult{err: errors.Wrap(messages.ErrFrameTooLarge, "read limit exceeded")}
	waitDone(t, done)

	assert.True(t, transport.isClosed())
	received := transport.received()
	require.Len(t, received, 1)
	assert.Equal(t, messages.TypeError, received[0].Type)
	assert.Contains(t, received[0].Content, brokererr.InvalidEnvelope.String())
	assert.Equal(t, 0, f.connections.Count())
}

func TestDisconnectWithdrawsEveryBinding(t *testing.T) {
	f := newFixture(t)
	transport := newScriptedTransport("127.0.0.1:1001")
	done := f.serve(context.Background(), transport)

	transport.send(t, messages.NewRegisterEnvelope("topic1", messages.RoleProducer), messages.ProtocolJSON)
	transport.send(t, messages.NewRegisterEnvelope("topic1", messages.RoleConsumer), messages.ProtocolJSON)
	transport.send(t, messages.NewRegisterEnvelope("topic2", messages.RoleConsumer), messages.ProtocolJSON)
	transport.waitFor(3)
	assert.Equal(t, 1, f.connections.Count())

	transport.Close()
	waitDone(t, done)

	assert.Empty(t, f.registry.ConsumersOf("topic1"))
	assert.Empty(t, f.registry.ProducersOf("topic1"))
	assert.Empty(t, f.registry.ConsumersOf("topic2"))
	assert.Equal(t, 0, f.connections.Count())
}

func TestCancelledContextEndsHandler(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	transport := newScriptedTransport("127.0.0.1:1001")
	done := f.serve(ctx, transport)

	transport.send(t, messages.NewRegisterEnvelope("topic1", messages.RoleConsumer), messages.ProtocolJSON)
	transport.waitFor(1)
	cancel()
	waitDone(t, done)

	assert.True(t, transport.isClosed())
	assert.Empty(t, f.registry.ConsumersOf("topic1"))
}
