package connection

import "net"

// AdmitFunc decides whether a peer may connect. A non-nil error rejects the peer before any
// byte is written to it.
type AdmitFunc func(addr net.Addr) error

// IServer is a listener that admits transports and hands them over to OnClientConnected.
type IServer interface {
	// Start binds the listener. Bind errors are returned, accepting starts with Serve.
	Start() error
	// Serve accepts until Stop is called. Each admitted transport is greeted and passed to
	// the OnClientConnected callback on its own goroutine.
	Serve()
	Stop() error
	Addr() net.Addr
	OnClientConnected(func(IConnection))
}
