package config

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	brokererr "tbroker/broker_server/core/error"
	"tbroker/common/logger"
)

const DefaultConfigFileName = "config.json"

const (
	defaultServerID   = "it's me, your server"
	defaultTimeOut    = 3
	defaultSizeLimit  = 1048576
	defaultListenAddr = "*"
)

// Config keys are the on-disk JSON keys, AllowedIPAdddresses keeps the historical spelling.
type Config struct {
	ServerID            string   `json:"ServerID"`
	ListenAddresses     []string `json:"ListenAddresses"`
	TimeOut             int      `json:"TimeOut"`
	SizeLimit           int      `json:"SizeLimit"`
	AllowedIPAdddresses []string `json:"AllowedIPAdddresses"`
}

func DefaultConfig() Config {
	return Config{
		ServerID:            defaultServerID,
		ListenAddresses:     []string{defaultListenAddr},
		TimeOut:             defaultTimeOut,
		SizeLimit:           defaultSizeLimit,
		AllowedIPAdddresses: []string{"10.0.0.0/24", "192.168.1.0/24"},
	}
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeOut) * time.Second
}

func (c Config) Copy() Config {
	cp := c
	cp.ListenAddresses = append([]string(nil), c.ListenAddresses...)
	cp.AllowedIPAdddresses = append([]string(nil), c.AllowedIPAdddresses...)
	return cp
}

// normalize replaces values the broker can not run with by their defaults.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.TimeOut <= 0 {
		c.TimeOut = d.TimeOut
	}
	if c.SizeLimit <= 0 {
		c.SizeLimit = d.SizeLimit
	}
	if len(c.ListenAddresses) == 0 {
		c.ListenAddresses = d.ListenAddresses
	}
}

// DefaultConfigPath is config.json beside the running binary.
func DefaultConfigPath() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultConfigFileName
	}
	return filepath.Join(filepath.Dir(exe), DefaultConfigFileName)
}

type IConfigProvider interface {
	Snapshot() Config
	Update(func(*Config)) error
	Path() string
}

// Provider loads the JSON config file once and persists every Update.
type Provider struct {
	path   string
	config Config
	lock   *sync.RWMutex
	logger *logger.SimpleLogger
}

// Load never fails: a missing, unreadable or corrupt file leaves the provider with defaults,
// the returned error only reports what went wrong.
func Load(path string, l *logger.SimpleLogger) (*Provider, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	p := &Provider{
		path:   path,
		config: DefaultConfig(),
		lock:   new(sync.RWMutex),
		logger: l.WithPrefix("[Config]"),
	}
	return p, p.load()
}

func (p *Provider) load() error {
	stream, err := ioutil.ReadFile(p.path)
	if os.IsNotExist(err) {
		p.logger.Printf("configuration file %s not found, initializing default configuration", p.path)
		return p.initConfig()
	}
	if err != nil {
		cerr := brokererr.Wrap(brokererr.ConfigIO, err, "unable to read configuration file")
		p.logger.Errorf("%s, using default configuration", cerr.Error())
		return cerr
	}
	config, err := parseServerConfig(stream)
	if err != nil {
		cerr := brokererr.Wrap(brokererr.ConfigParse, err, "invalid JSON in config file")
		p.logger.Errorf("%s, re-initializing default configuration", cerr.Error())
		if werr := p.initConfig(); werr != nil {
			return werr
		}
		return cerr
	}
	p.config = config
	p.logger.Debugf("configuration loaded from %s", p.path)
	return nil
}

// keys absent from the file keep their default values
func parseServerConfig(stream []byte) (Config, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(stream, &config); err != nil {
		return Config{}, err
	}
	config.normalize()
	return config, nil
}

func (p *Provider) initConfig() error {
	p.config = DefaultConfig()
	return p.write()
}

func (p *Provider) write() error {
	marshalled, err := json.MarshalIndent(p.config, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to marshal configuration")
	}
	if dir := filepath.Dir(p.path); dir != "" {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return p.writeFailed(err)
		}
	}
	if err = ioutil.WriteFile(p.path, marshalled, 0644); err != nil {
		return p.writeFailed(err)
	}
	return nil
}

func (p *Provider) writeFailed(err error) error {
	cerr := brokererr.Wrap(brokererr.ConfigIO, err, "an error occurred while writing the configuration file")
	p.logger.Errorf("%s", cerr.Error())
	return cerr
}

func (p *Provider) Snapshot() Config {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.config.Copy()
}

// Update applies fn to the configuration and writes it back to disk.
func (p *Provider) Update(fn func(*Config)) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	fn(&p.config)
	p.config.normalize()
	return p.write()
}

func (p *Provider) Path() string {
	return p.path
}

func (p *Provider) String() string {
	marshalled, _ := json.Marshal(p.Snapshot())
	return string(marshalled)
}
