package topic

import (
	"sort"
	"sync"

	"tbroker/broker_common/messages"
)

// ISubscriber is the registry's view of a Connection.
type ISubscriber interface {
	Id() string
	Address() string
	// Deliver queues envelope for the connection's writer. It must not block.
	Deliver(envelope messages.Envelope) error
}

type Role string

const (
	RoleProducer Role = messages.RoleProducer
	RoleConsumer Role = messages.RoleConsumer
)

func ParseRole(role string) (Role, bool) {
	switch role {
	case messages.RoleProducer:
		return RoleProducer, true
	case messages.RoleConsumer:
		return RoleConsumer, true
	}
	return "", false
}

type Binding struct {
	Topic string
	Role  Role
}

type TopicDescriptor struct {
	Name      string `json:"name"`
	Producers int    `json:"producers"`
	Consumers int    `json:"consumers"`
}

// Topic holds the producer and consumer sets of one topic name. Every access goes through the
// topic's own lock.
type Topic struct {
	name      string
	producers map[string]ISubscriber
	consumers map[string]ISubscriber
	lock      *sync.Mutex
}

func NewTopic(name string) *Topic {
	return &Topic{
		name:      name,
		producers: make(map[string]ISubscriber),
		consumers: make(map[string]ISubscriber),
		lock:      new(sync.Mutex),
	}
}

func (t *Topic) withLock(cb func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	cb()
}

func (t *Topic) Name() string {
	return t.name
}

func (t *Topic) members(role Role) map[string]ISubscriber {
	if role == RoleProducer {
		return t.producers
	}
	return t.consumers
}

func (t *Topic) add(sub ISubscriber, role Role) (added bool) {
	t.withLock(func() {
		m := t.members(role)
		if _, exist := m[sub.Id()]; exist {
			return
		}
		m[sub.Id()] = sub
		added = true
	})
	return
}

func (t *Topic) remove(id string, role Role) (removed bool) {
	t.withLock(func() {
		m := t.members(role)
		if _, exist := m[id]; !exist {
			return
		}
		delete(m, id)
		removed = true
	})
	return
}

func (t *Topic) has(id string, role Role) (exist bool) {
	t.withLock(func() {
		_, exist = t.members(role)[id]
	})
	return
}

func (t *Topic) snapshot(role Role) (subs []ISubscriber) {
	t.withLock(func() {
		subs = sortedMembers(t.members(role))
	})
	return
}

func sortedMembers(m map[string]ISubscriber) []ISubscriber {
	subs := make([]ISubscriber, 0, len(m))
	for _, s := range m {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].Id() < subs[j].Id()
	})
	return subs
}

func (t *Topic) Describe() (desc TopicDescriptor) {
	t.withLock(func() {
		desc = TopicDescriptor{Name: t.name, Producers: len(t.producers), Consumers: len(t.consumers)}
	})
	return
}
