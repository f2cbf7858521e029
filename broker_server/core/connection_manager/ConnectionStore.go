package connection_manager

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"tbroker/broker_server/core/conn"
)

var (
	ErrNilConnection      = errors.New("nil connection")
	ErrConnectionExists   = errors.New("connection already exists")
	ErrConnectionNotFound = errors.New("connection not found")
)

type IConnectionStore interface {
	Add(*conn.Connection) error
	Has(id string) bool
	Delete(id string) error
	Get(id string) *conn.Connection
	GetAll() []*conn.Connection
	Size() int
}

type InMemoryConnectionStore struct {
	store  map[string]*conn.Connection
	rwLock *sync.RWMutex
}

func NewInMemoryConnectionStore() *InMemoryConnectionStore {
	return &InMemoryConnectionStore{
		store:  make(map[string]*conn.Connection),
		rwLock: new(sync.RWMutex),
	}
}

func (s *InMemoryConnectionStore) withWrite(cb func()) {
	s.rwLock.Lock()
	defer s.rwLock.Unlock()
	cb()
}

func (s *InMemoryConnectionStore) withRead(cb func()) {
	s.rwLock.RLock()
	defer s.rwLock.RUnlock()
	cb()
}

func (s *InMemoryConnectionStore) Add(c *conn.Connection) (err error) {
	if c == nil {
		return ErrNilConnection
	}
	s.withWrite(func() {
		if _, exist := s.store[c.Id()]; exist {
			err = errors.Wrapf(ErrConnectionExists, "add %s", c.Id())
			return
		}
		s.store[c.Id()] = c
	})
	return
}

func (s *InMemoryConnectionStore) Has(id string) bool {
	return s.Get(id) != nil
}

func (s *InMemoryConnectionStore) Delete(id string) (err error) {
	s.withWrite(func() {
		if _, exist := s.store[id]; !exist {
			err = errors.Wrapf(ErrConnectionNotFound, "delete %s", id)
			return
		}
		delete(s.store, id)
	})
	return
}

func (s *InMemoryConnectionStore) Get(id string) (c *conn.Connection) {
	s.withRead(func() {
		c = s.store[id]
	})
	return
}

// GetAll returns the stored connections ordered by id.
func (s *InMemoryConnectionStore) GetAll() []*conn.Connection {
	var conns []*conn.Connection
	s.withRead(func() {
		conns = make([]*conn.Connection, 0, len(s.store))
		for _, c := range s.store {
			conns = append(conns, c)
		}
	})
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].Id() < conns[j].Id()
	})
	return conns
}

func (s *InMemoryConnectionStore) Size() (size int) {
	s.withRead(func() {
		size = len(s.store)
	})
	return
}
