package wserver

import (
	"net/http"

	"tbroker/common/connection"
)

const DefaultUpgradeUrlPath = "/"

type WsServerConfig struct {
	Name           string
	Address        string
	UpgradeUrlPath string
	// Welcome is sent as the first text message to every admitted client.
	Welcome   string
	SizeLimit int
	Admit     connection.AdmitFunc
	// OnNoUpgradableRequest answers plain HTTP requests on the upgrade path.
	OnNoUpgradableRequest func(w http.ResponseWriter, r *http.Request)
}

func NewServerConfig(name string, address string, upgradeUrlPath string, welcome string, sizeLimit int, admit connection.AdmitFunc) WsServerConfig {
	if upgradeUrlPath == "" {
		upgradeUrlPath = DefaultUpgradeUrlPath
	}
	return WsServerConfig{
		Name:           name,
		Address:        address,
		UpgradeUrlPath: upgradeUrlPath,
		Welcome:        welcome,
		SizeLimit:      sizeLimit,
		Admit:          admit,
	}
}

func DefaultNoUpgradableHTTPRequestHandler(w http.ResponseWriter, r *http.Request) {
	code := http.StatusBadRequest
	http.Error(w, http.StatusText(code), code)
}
