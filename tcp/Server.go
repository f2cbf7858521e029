package tcp

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"tbroker/common/connection"
	"tbroker/common/logger"
)

type TCPServer struct {
	name              string
	address           string
	welcome           string
	sizeLimit         int
	pollInterval      time.Duration
	admit             connection.AdmitFunc
	listener          *net.TCPListener
	onClientConnected func(connection.IConnection)
	stop              chan struct{}
	stopOnce          sync.Once
	logger            *logger.SimpleLogger
}

func NewTCPServer(config TCPServerConfig, l *logger.SimpleLogger) *TCPServer {
	pollInterval := config.AcceptPollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultAcceptPollInterval
	}
	return &TCPServer{
		name:         config.Name,
		address:      config.Address,
		welcome:      config.Welcome,
		sizeLimit:    config.SizeLimit,
		pollInterval: pollInterval,
		admit:        config.Admit,
		stop:         make(chan struct{}),
		logger:       l.WithPrefix("[TCPServer]").With("listener", config.Address),
	}
}

func (s *TCPServer) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", s.address)
	}
	s.listener = listener.(*net.TCPListener)
	s.logger.Printf("%s listening on %s", s.name, s.listener.Addr().String())
	return nil
}

func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *TCPServer) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// nextAcceptDelay doubles the pause after a failed accept, capped at maxAcceptDelay.
func nextAcceptDelay(delay time.Duration) time.Duration {
	if delay == 0 {
		return minAcceptDelay
	}
	if delay *= 2; delay > maxAcceptDelay {
		return maxAcceptDelay
	}
	return delay
}

// pause waits for delay and reports false when the server stops first.
func (s *TCPServer) pause(delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-s.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (s *TCPServer) Serve() {
	var acceptDelay time.Duration
	for !s.stopped() {
		if err := s.listener.SetDeadline(time.Now().Add(s.pollInterval)); err != nil {
			if s.stopped() {
				return
			}
			s.logger.Errorf("unable to set accept deadline: %s", err.Error())
		}
		raw, err := s.listener.Accept()
		if err != nil {
			if s.stopped() || errors.Is(err, net.ErrClosed) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			acceptDelay = nextAcceptDelay(acceptDelay)
			s.logger.Errorf("unable to accept connection: %s, retrying in %s", err.Error(), acceptDelay)
			if !s.pause(acceptDelay) {
				return
			}
			continue
		}
		acceptDelay = 0
		go s.handleNewConnection(raw)
	}
}

func (s *TCPServer) handleNewConnection(raw net.Conn) {
	if s.admit != nil {
		if err := s.admit(raw.RemoteAddr()); err != nil {
			s.logger.Warnf("rejected %s: %s", raw.RemoteAddr().String(), err.Error())
			raw.Close()
			return
		}
	}
	c := NewTCPConnection(raw, s.sizeLimit)
	if s.welcome != "" {
		if err := c.Greet(s.welcome); err != nil {
			s.logger.Warnf("unable to greet %s: %s", c.Address(), err.Error())
			c.Close()
			return
		}
	}
	s.logger.Debugf("new connection from %s", c.Address())
	if s.onClientConnected != nil {
		s.onClientConnected(c)
	} else {
		c.Close()
	}
}

// Stop closes the listener. Connections already handed over are not affected.
func (s *TCPServer) Stop() (err error) {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.listener != nil {
			err = s.listener.Close()
		}
	})
	return
}

func (s *TCPServer) OnClientConnected(cb func(connection.IConnection)) {
	s.onClientConnected = cb
}
