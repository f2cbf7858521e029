package topic

import (
	"sort"
	"sync"

	brokererr "tbroker/broker_server/core/error"
	"tbroker/common/logger"
)

// IRegistry is the single source of truth for who hears what. Topic sets are guarded by
// per-topic locks, the per-connection binding index by the registry lock; the two are never
// held together.
type IRegistry interface {
	Register(sub ISubscriber, topic string, role Role) (added bool, err error)
	Withdraw(sub ISubscriber, topic string, role Role) (removed bool, err error)
	WithdrawAll(sub ISubscriber) []Binding
	ConsumersOf(topic string) []ISubscriber
	ProducersOf(topic string) []ISubscriber
	IsProducer(sub ISubscriber, topic string) bool
	// Fanout checks that from is a producer of topic and calls deliver with the consumer
	// snapshot while holding the topic lock, so publishes on one topic are serialized.
	Fanout(topic string, from ISubscriber, deliver func(consumers []ISubscriber)) error
	BindingsOf(sub ISubscriber) []Binding
	Topics() []TopicDescriptor
}

type Registry struct {
	store    ITopicStore
	bindings map[string]map[Binding]bool
	lock     *sync.RWMutex
	logger   *logger.SimpleLogger
}

func NewRegistry(store ITopicStore, l *logger.SimpleLogger) *Registry {
	return &Registry{
		store:    store,
		bindings: make(map[string]map[Binding]bool),
		lock:     new(sync.RWMutex),
		logger:   l.WithPrefix("[Registry]"),
	}
}

func (r *Registry) withWrite(cb func()) {
	r.lock.Lock()
	defer r.lock.Unlock()
	cb()
}

func validate(topic string, role Role) error {
	if topic == "" {
		return NewEmptyTopicError()
	}
	if role != RoleProducer && role != RoleConsumer {
		return NewUnknownRoleError(string(role))
	}
	return nil
}

func (r *Registry) index(id string, b Binding) {
	r.withWrite(func() {
		set := r.bindings[id]
		if set == nil {
			set = make(map[Binding]bool)
			r.bindings[id] = set
		}
		set[b] = true
	})
}

func (r *Registry) unindex(id string, b Binding) {
	r.withWrite(func() {
		set := r.bindings[id]
		delete(set, b)
		if len(set) == 0 {
			delete(r.bindings, id)
		}
	})
}

func (r *Registry) Register(sub ISubscriber, topic string, role Role) (added bool, err error) {
	if err = validate(topic, role); err != nil {
		return false, err
	}
	added = r.store.GetOrCreate(topic).add(sub, role)
	if added {
		r.index(sub.Id(), Binding{topic, role})
		r.logger.Debugf("connection %s registered as %s of topic %s", sub.Id(), role, topic)
	}
	return added, nil
}

func (r *Registry) Withdraw(sub ISubscriber, topic string, role Role) (removed bool, err error) {
	if err = validate(topic, role); err != nil {
		return false, err
	}
	t := r.store.Get(topic)
	if t == nil {
		return false, nil
	}
	removed = t.remove(sub.Id(), role)
	if removed {
		r.unindex(sub.Id(), Binding{topic, role})
		r.logger.Debugf("connection %s withdrew as %s of topic %s", sub.Id(), role, topic)
	}
	return removed, nil
}

func (r *Registry) WithdrawAll(sub ISubscriber) []Binding {
	var bindings []Binding
	r.withWrite(func() {
		for b := range r.bindings[sub.Id()] {
			bindings = append(bindings, b)
		}
		delete(r.bindings, sub.Id())
	})
	for _, b := range bindings {
		if t := r.store.Get(b.Topic); t != nil {
			t.remove(sub.Id(), b.Role)
		}
	}
	if len(bindings) > 0 {
		r.logger.Debugf("withdrew %d bindings of connection %s", len(bindings), sub.Id())
	}
	sortBindings(bindings)
	return bindings
}

func (r *Registry) BindingsOf(sub ISubscriber) []Binding {
	r.lock.RLock()
	bindings := make([]Binding, 0, len(r.bindings[sub.Id()]))
	for b := range r.bindings[sub.Id()] {
		bindings = append(bindings, b)
	}
	r.lock.RUnlock()
	sortBindings(bindings)
	return bindings
}

func sortBindings(bindings []Binding) {
	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Topic != bindings[j].Topic {
			return bindings[i].Topic < bindings[j].Topic
		}
		return bindings[i].Role < bindings[j].Role
	})
}

func (r *Registry) ConsumersOf(topic string) []ISubscriber {
	if t := r.store.Get(topic); t != nil {
		return t.snapshot(RoleConsumer)
	}
	return nil
}

func (r *Registry) ProducersOf(topic string) []ISubscriber {
	if t := r.store.Get(topic); t != nil {
		return t.snapshot(RoleProducer)
	}
	return nil
}

func (r *Registry) IsProducer(sub ISubscriber, topic string) bool {
	if t := r.store.Get(topic); t != nil {
		return t.has(sub.Id(), RoleProducer)
	}
	return false
}

func (r *Registry) Fanout(topic string, from ISubscriber, deliver func(consumers []ISubscriber)) (err error) {
	if topic == "" {
		return NewEmptyTopicError()
	}
	t := r.store.Get(topic)
	if t == nil {
		return brokererr.NewNotAuthorizedError(from.Id(), topic)
	}
	t.withLock(func() {
		if _, ok := t.producers[from.Id()]; !ok {
			err = brokererr.NewNotAuthorizedError(from.Id(), topic)
			return
		}
		deliver(sortedMembers(t.consumers))
	})
	return
}

func (r *Registry) Topics() []TopicDescriptor {
	topics := r.store.Topics()
	desc := make([]TopicDescriptor, len(topics))
	for i, t := range topics {
		desc[i] = t.Describe()
	}
	return desc
}
