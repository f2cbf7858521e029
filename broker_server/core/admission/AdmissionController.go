package admission

import (
	"net"
	"strings"
	"time"

	brokererr "tbroker/broker_server/core/error"
	"tbroker/common/logger"
)

const DefaultBlockListTtl = time.Hour

type IAdmissionController interface {
	// Admit returns an AdmissionDenied error for addresses outside the allow-list or blocked.
	Admit(addr net.Addr) error
	AdmitAddress(addr string) error
	// Demote blocks the address's IP for DefaultBlockListTtl.
	Demote(addr string) error
	Close()
}

type AdmissionController struct {
	allowed []*net.IPNet
	store   IBlockListStore
	ttl     time.Duration
	logger  *logger.SimpleLogger
}

// NewAdmissionController parses cidrs, entries that do not parse are logged and skipped.
// An empty allow-list admits every address.
func NewAdmissionController(cidrs []string, store IBlockListStore, l *logger.SimpleLogger) *AdmissionController {
	c := &AdmissionController{
		store:  store,
		ttl:    DefaultBlockListTtl,
		logger: l.WithPrefix("[Admission]"),
	}
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			c.logger.Errorf("ignoring allowed address %q: %s", cidr, err.Error())
			continue
		}
		c.allowed = append(c.allowed, ipNet)
	}
	if len(c.allowed) == 0 {
		c.logger.Warnf("allow-list is empty, every address will be admitted")
	}
	return c
}

func hostIP(addr string) net.IP {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return net.ParseIP(host)
}

func (c *AdmissionController) Admit(addr net.Addr) error {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return c.admitIP(tcpAddr.IP, addr.String())
	}
	return c.AdmitAddress(addr.String())
}

func (c *AdmissionController) AdmitAddress(addr string) error {
	return c.admitIP(hostIP(addr), addr)
}

func (c *AdmissionController) admitIP(ip net.IP, addr string) error {
	if ip == nil {
		return brokererr.NewAdmissionDeniedError(addr)
	}
	if !c.isAllowed(ip) {
		return brokererr.NewAdmissionDeniedError(addr)
	}
	blocked, err := c.store.Has(ip.String())
	if err != nil {
		c.logger.Errorf("unable to check block list for %s: %s", addr, err.Error())
	}
	if blocked {
		return brokererr.NewAdmissionDeniedError(addr)
	}
	return nil
}

func (c *AdmissionController) isAllowed(ip net.IP) bool {
	if len(c.allowed) == 0 {
		return true
	}
	for _, ipNet := range c.allowed {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

func (c *AdmissionController) Demote(addr string) error {
	ip := hostIP(addr)
	if ip == nil {
		return brokererr.NewAdmissionDeniedError(addr)
	}
	_, err := c.store.Add(ip.String(), c.ttl)
	if err != nil {
		c.logger.Errorf("address %s is not added to the block list due to %s", addr, err.Error())
	} else {
		c.logger.Warnf("address %s was added to the block list for %s", ip, c.ttl)
	}
	return err
}

func (c *AdmissionController) Close() {
	c.store.Close()
}
