package broker_server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"tbroker/broker_server/config"
	"tbroker/broker_server/core/admission"
	"tbroker/broker_server/core/connection_manager"
	"tbroker/broker_server/core/router"
	"tbroker/broker_server/core/topic"
	"tbroker/broker_server/handler"
	"tbroker/common/connection"
	"tbroker/common/logger"
	"tbroker/tcp"
	"tbroker/websocket/wserver"
)

const (
	Welcome = "Welcome to the server!"

	blockListSweepInterval = time.Minute
)

var ErrServerStopped = errors.New("server has been stopped")

type IServer interface {
	Start() error
	Stop() error
	Addrs() []net.Addr
}

// Server owns every listener and the state shared by all connections.
type Server struct {
	config      config.Config
	timeout     time.Duration
	registry    *topic.Registry
	connections *connection_manager.ConnectionManager
	admission   *admission.AdmissionController
	handler     *handler.ConnectionHandler
	listeners   []connection.IServer

	ctx      context.Context
	cancel   context.CancelFunc
	lock     sync.Mutex
	stopping bool
	stopOnce sync.Once
	serving  sync.WaitGroup
	handlers sync.WaitGroup
	logger   *logger.SimpleLogger
}

type options struct {
	blockList admission.IBlockListStore
}

type Option func(*options)

// WithBlockListStore replaces the in-memory block list, e.g. with one shared through redis.
func WithBlockListStore(store admission.IBlockListStore) Option {
	return func(o *options) {
		o.blockList = store
	}
}

func NewServer(cfg config.Config, l *logger.SimpleLogger, opts ...Option) *Server {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.blockList == nil {
		o.blockList = admission.NewInMemoryBlockListStore(blockListSweepInterval)
	}
	l = l.WithPrefix("[Server]").With("server", cfg.ServerID)
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = config.DefaultConfig().Timeout()
	}
	registry := topic.NewRegistry(topic.NewInMemoryTopicStore(), l)
	connections := connection_manager.NewConnectionManager(l)
	admissionController := admission.NewAdmissionController(cfg.AllowedIPAdddresses, o.blockList, l)
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:      cfg.Copy(),
		timeout:     timeout,
		registry:    registry,
		connections: connections,
		admission:   admissionController,
		handler:     handler.NewConnectionHandler(router.NewRouter(registry, l), registry, connections, timeout, l),
		ctx:         ctx,
		cancel:      cancel,
		logger:      l,
	}
}

func (s *Server) newListener(addr ListenAddress) connection.IServer {
	if addr.WebSocket {
		return wserver.NewWServer(wserver.NewServerConfig(s.config.ServerID, addr.Address, addr.Path, Welcome, s.config.SizeLimit, s.admission.Admit), s.logger)
	}
	return tcp.NewTCPServer(tcp.NewServerConfig(s.config.ServerID, addr.Address, Welcome, s.config.SizeLimit, s.timeout, s.admission.Admit), s.logger)
}

// Start binds every listen address and starts accepting. When any address fails to bind,
// the listeners already bound are stopped and the error is returned.
func (s *Server) Start() error {
	if s.ctx.Err() != nil {
		return ErrServerStopped
	}
	for _, pattern := range s.config.ListenAddresses {
		addr, err := ParseListenAddress(pattern)
		if err != nil {
			s.stopListeners()
			return err
		}
		listener := s.newListener(addr)
		if err = listener.Start(); err != nil {
			s.stopListeners()
			return err
		}
		listener.OnClientConnected(s.serveConnection)
		s.listeners = append(s.listeners, listener)
	}
	for _, listener := range s.listeners {
		s.serving.Add(1)
		go func(l connection.IServer) {
			defer s.serving.Done()
			l.Serve()
		}(listener)
	}
	s.logger.Printf("server %s started with %d listeners", s.config.ServerID, len(s.listeners))
	return nil
}

func (s *Server) serveConnection(transport connection.IConnection) {
	s.lock.Lock()
	if s.stopping {
		s.lock.Unlock()
		transport.Close()
		return
	}
	s.handlers.Add(1)
	s.lock.Unlock()
	defer s.handlers.Done()
	s.handler.Handle(s.ctx, transport)
}

func (s *Server) stopListeners() {
	for _, listener := range s.listeners {
		if err := listener.Stop(); err != nil {
			s.logger.Warnf("unable to stop listener %s: %s", listener.Addr(), err.Error())
		}
	}
}

// Stop closes the listeners, disconnects every client and waits for their handlers.
func (s *Server) Stop() (err error) {
	s.stopOnce.Do(func() {
		s.logger.Printf("server %s is stopping", s.config.ServerID)
		s.cancel()
		s.stopListeners()
		s.serving.Wait()
		s.lock.Lock()
		s.stopping = true
		s.lock.Unlock()
		err = s.connections.DisconnectAllConnections()
		s.handlers.Wait()
		s.admission.Close()
		s.logger.Printf("server %s stopped", s.config.ServerID)
	})
	return
}

func (s *Server) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, listener := range s.listeners {
		addrs = append(addrs, listener.Addr())
	}
	return addrs
}

func (s *Server) Topics() []topic.TopicDescriptor {
	return s.registry.Topics()
}

func (s *Server) ConnectionCount() int {
	return s.connections.Count()
}

// Block refuses new connections from the IP of addr for admission.DefaultBlockListTtl.
// Established connections are kept.
func (s *Server) Block(addr string) error {
	return s.admission.Demote(addr)
}
