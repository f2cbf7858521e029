package topic

import (
	"sort"
	"sync"
)

type ITopicStore interface {
	// GetOrCreate returns the topic named id, creating an empty one on first use.
	GetOrCreate(id string) *Topic
	// Get returns nil for an unknown topic.
	Get(id string) *Topic
	Topics() []*Topic
}

type InMemoryTopicStore struct {
	topics map[string]*Topic
	lock   *sync.RWMutex
}

func NewInMemoryTopicStore() *InMemoryTopicStore {
	return &InMemoryTopicStore{
		topics: make(map[string]*Topic),
		lock:   new(sync.RWMutex),
	}
}

func (s *InMemoryTopicStore) Get(id string) *Topic {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.topics[id]
}

func (s *InMemoryTopicStore) GetOrCreate(id string) *Topic {
	if t := s.Get(id); t != nil {
		return t
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if t := s.topics[id]; t != nil {
		return t
	}
	t := NewTopic(id)
	s.topics[id] = t
	return t
}

func (s *InMemoryTopicStore) Topics() []*Topic {
	s.lock.RLock()
	topics := make([]*Topic, 0, len(s.topics))
	for _, t := range s.topics {
		topics = append(topics, t)
	}
	s.lock.RUnlock()
	sort.Slice(topics, func(i, j int) bool {
		return topics[i].Name() < topics[j].Name()
	})
	return topics
}
