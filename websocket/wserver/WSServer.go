package wserver

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	base_conn "tbroker/common/connection"
	"tbroker/common/logger"
	"tbroker/websocket/connection"
)

type WServer struct {
	name              string
	address           string
	path              string
	welcome           string
	sizeLimit         int64
	admit             base_conn.AdmitFunc
	listener          net.Listener
	httpServer        *http.Server
	upgrader          *websocket.Upgrader
	onNoUpgradable    func(w http.ResponseWriter, r *http.Request)
	onClientConnected func(base_conn.IConnection)
	logger            *logger.SimpleLogger
}

func NewWServer(config WsServerConfig, l *logger.SimpleLogger) *WServer {
	ws := &WServer{
		name:           config.Name,
		address:        config.Address,
		path:           config.UpgradeUrlPath,
		welcome:        config.Welcome,
		sizeLimit:      int64(config.SizeLimit),
		admit:          config.Admit,
		onNoUpgradable: config.OnNoUpgradableRequest,
		logger:         l.WithPrefix("[WServer]").With("listener", config.Address),
	}
	if ws.path == "" {
		ws.path = DefaultUpgradeUrlPath
	}
	if ws.onNoUpgradable == nil {
		ws.onNoUpgradable = DefaultNoUpgradableHTTPRequestHandler
	}
	ws.upgrader = &websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		// clients are not browsers, admission is decided by address
		CheckOrigin: func(req *http.Request) bool {
			return true
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(ws.path, ws.handleHTTPRequest)
	ws.httpServer = &http.Server{Handler: mux}
	return ws
}

func (ws *WServer) Start() error {
	listener, err := net.Listen("tcp", ws.address)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", ws.address)
	}
	ws.listener = listener
	ws.logger.Printf("%s listening on ws://%s%s", ws.name, listener.Addr().String(), ws.path)
	return nil
}

func (ws *WServer) Serve() {
	err := ws.httpServer.Serve(ws.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		ws.logger.Errorf("http serve error: %s", err.Error())
	}
}

// Stop closes the listener. Upgraded connections are hijacked and stay open.
func (ws *WServer) Stop() error {
	return ws.httpServer.Close()
}

func (ws *WServer) Addr() net.Addr {
	if ws.listener == nil {
		return nil
	}
	return ws.listener.Addr()
}

func (ws *WServer) remoteAddr(r *http.Request) net.Addr {
	if addr, err := net.ResolveTCPAddr("tcp", r.RemoteAddr); err == nil {
		return addr
	}
	return &net.TCPAddr{}
}

func (ws *WServer) handleHTTPRequest(w http.ResponseWriter, r *http.Request) {
	// each HTTP request is a new goroutine, so no need to add extra concurrency here
	if ws.admit != nil {
		if err := ws.admit(ws.remoteAddr(r)); err != nil {
			ws.logger.Warnf("rejected %s: %s", r.RemoteAddr, err.Error())
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
	}
	if r.URL.Path != ws.path || !websocket.IsWebSocketUpgrade(r) {
		ws.logger.Printf("invalid request from %s(METHOD = %s URL = %s)", r.RemoteAddr, r.Method, r.URL)
		ws.onNoUpgradable(w, r)
		return
	}
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Printf("err while upgrading HTTP request: %s", err.Error())
		return
	}
	ws.handleNewConnection(conn)
}

func (ws *WServer) handleNewConnection(conn *websocket.Conn) {
	if ws.sizeLimit > 0 {
		conn.SetReadLimit(ws.sizeLimit)
	}
	c := connection.NewWsConnection(conn)
	if ws.welcome != "" {
		if err := c.Greet(ws.welcome); err != nil {
			ws.logger.Warnf("unable to greet %s: %s", c.Address(), err.Error())
			c.Close()
			return
		}
	}
	ws.logger.Debugf("new connection from %s", c.Address())
	if ws.onClientConnected != nil {
		ws.onClientConnected(c)
	} else {
		c.Close()
	}
}

func (ws *WServer) OnClientConnected(cb func(base_conn.IConnection)) {
	ws.onClientConnected = cb
}
