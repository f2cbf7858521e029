package admission

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"tbroker/common/ctimer"
)

const DefaultCleanInterval = time.Minute * 30

var ErrRecordNotFound = errors.New("record does not exist")

type IBlockListStore interface {
	Add(record string, ttl time.Duration) (bool, error)
	Has(record string) (bool, error)
	Delete(record string) (bool, error)
	Close()
}

type ttlRecord struct {
	record   string
	expireAt time.Time
}

type InMemoryBlockListStore struct {
	records       map[string]*ttlRecord
	lock          *sync.RWMutex
	cleanJobTimer ctimer.ICTimer
	now           func() time.Time
}

func NewInMemoryBlockListStore(cleanInterval time.Duration) *InMemoryBlockListStore {
	store := &InMemoryBlockListStore{
		records: make(map[string]*ttlRecord),
		lock:    new(sync.RWMutex),
		now:     time.Now,
	}
	store.cleanJobTimer = ctimer.New(cleanInterval, store.cleanJob)
	store.cleanJobTimer.Repeat()
	return store
}

func (s *InMemoryBlockListStore) withWrite(cb func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	cb()
}

func (s *InMemoryBlockListStore) cleanJob() {
	now := s.now()
	s.withWrite(func() {
		for k, v := range s.records {
			if !v.expireAt.After(now) {
				delete(s.records, k)
			}
		}
	})
}

// Add inserts record or renews an expired one. exist reports a record that was still live,
// its expiry is left as is.
func (s *InMemoryBlockListStore) Add(record string, ttl time.Duration) (exist bool, err error) {
	now := s.now()
	s.withWrite(func() {
		if old := s.records[record]; old != nil && old.expireAt.After(now) {
			exist = true
			return
		}
		s.records[record] = &ttlRecord{
			record:   record,
			expireAt: now.Add(ttl),
		}
	})
	return
}

func (s *InMemoryBlockListStore) Has(record string) (bool, error) {
	s.lock.RLock()
	r := s.records[record]
	s.lock.RUnlock()
	if r == nil {
		return false, nil
	}
	if !r.expireAt.After(s.now()) {
		s.Delete(record)
		return false, nil
	}
	return true, nil
}

func (s *InMemoryBlockListStore) Delete(record string) (success bool, err error) {
	s.withWrite(func() {
		if s.records[record] == nil {
			err = ErrRecordNotFound
			return
		}
		delete(s.records, record)
		success = true
	})
	return
}

func (s *InMemoryBlockListStore) size() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.records)
}

func (s *InMemoryBlockListStore) Close() {
	s.cleanJobTimer.Cancel()
}
