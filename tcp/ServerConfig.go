package tcp

import (
	"time"

	"tbroker/common/connection"
)

const DefaultAcceptPollInterval = 3 * time.Second

type TCPServerConfig struct {
	Name    string
	Address string
	// Welcome is written, newline terminated, to every admitted client.
	Welcome   string
	SizeLimit int
	// AcceptPollInterval bounds how long Accept blocks before Serve rechecks for shutdown.
	AcceptPollInterval time.Duration
	Admit              connection.AdmitFunc
}

func NewServerConfig(name string, address string, welcome string, sizeLimit int, pollInterval time.Duration, admit connection.AdmitFunc) TCPServerConfig {
	return TCPServerConfig{name, address, welcome, sizeLimit, pollInterval, admit}
}
