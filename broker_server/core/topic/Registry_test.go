package topic

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tbroker/broker_common/messages"
	brokererr "tbroker/broker_server/core/error"
	"tbroker/common/logger"
	"tbroker/common/test_utils"
)

type fakeSubscriber struct {
	id        string
	lock      sync.Mutex
	delivered []messages.Envelope
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id}
}

func (s *fakeSubscriber) Id() string { return s.id }
func (s *fakeSubscriber) Address() string { return "127.0.0.1:0" }

func (s *fakeSubscriber) Deliver(e messages.Envelope) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.delivered = append(s.delivered, e)
	return nil
}

func ids(subs []ISubscriber) []string {
	res := make([]string, len(subs))
	for i, s := range subs {
		res[i] = s.Id()
	}
	return res
}

func newRegistry(t *testing.T) *Registry {
	return NewRegistry(NewInMemoryTopicStore(), logger.NewTestLogger(t))
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := newRegistry(t)
	a := newFakeSubscriber("a")

	added, err := r.Register(a, "topic1", RoleConsumer)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = r.Register(a, "topic1", RoleConsumer)
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, []string{"a"}, ids(r.ConsumersOf("topic1")))
	assert.Empty(t, r.ProducersOf("topic1"))
	assert.Equal(t, []Binding{{"topic1", RoleConsumer}}, r.BindingsOf(a))
}

func TestWithdrawIsIdempotent(t *testing.T) {
	r := newRegistry(t)
	a := newFakeSubscriber("a")

	removed, err := r.Withdraw(a, "never-registered", RoleProducer)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Empty(t, r.Topics(), "withdraw must not create topics")

	_, err = r.Register(a, "topic1", RoleProducer)
	require.NoError(t, err)
	removed, err = r.Withdraw(a, "topic1", RoleProducer)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = r.Withdraw(a, "topic1", RoleProducer)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.False(t, r.IsProducer(a, "topic1"))
	assert.Empty(t, r.BindingsOf(a))
}

func TestRegisterValidation(t *testing.T) {
	r := newRegistry(t)
	a := newFakeSubscriber("a")

	_, err := r.Register(a, "", RoleProducer)
	assert.Equal(t, brokererr.InvalidEnvelope, brokererr.KindOf(err))
	_, err = r.Register(a, "topic1", Role("admin"))
	assert.Equal(t, brokererr.InvalidEnvelope, brokererr.KindOf(err))
	_, err = r.Withdraw(a, "topic1", Role(""))
	assert.Equal(t, brokererr.InvalidEnvelope, brokererr.KindOf(err))
}

func TestWithdrawAll(t *testing.T) {
	r := newRegistry(t)
	a, b := newFakeSubscriber("a"), newFakeSubscriber("b")
	r.Register(a, "topic1", RoleProducer)
	r.Register(a, "topic1", RoleConsumer)
	r.Register(a, "topic2", RoleConsumer)
	r.Register(b, "topic2", RoleConsumer)

	bindings := r.WithdrawAll(a)
	assert.Equal(t, []Binding{{"topic1", RoleConsumer}, {"topic1", RoleProducer}, {"topic2", RoleConsumer}}, bindings)
	assert.Empty(t, r.ConsumersOf("topic1"))
	assert.Empty(t, r.ProducersOf("topic1"))
	assert.Equal(t, []string{"b"}, ids(r.ConsumersOf("topic2")))
	assert.Empty(t, r.WithdrawAll(a))

	assert.Equal(t, []TopicDescriptor{
		{Name: "topic1"},
		{Name: "topic2", Consumers: 1},
	}, r.Topics())
}

func TestFanout(t *testing.T) {
	r := newRegistry(t)
	a, b, c := newFakeSubscriber("a"), newFakeSubscriber("b"), newFakeSubscriber("c")
	r.Register(b, "topic1", RoleConsumer)
	r.Register(c, "topic1", RoleConsumer)

	called := false
	err := r.Fanout("topic1", a, func([]ISubscriber) { called = true })
	assert.Equal(t, brokererr.NotAuthorized, brokererr.KindOf(err))
	assert.False(t, called)

	err = r.Fanout("unknown", a, func([]ISubscriber) { called = true })
	assert.Equal(t, brokererr.NotAuthorized, brokererr.KindOf(err))
	assert.False(t, called)

	r.Register(a, "topic1", RoleProducer)
	var got []string
	require.NoError(t, r.Fanout("topic1", a, func(consumers []ISubscriber) { got = ids(consumers) }))
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := newRegistry(t)
	producer := newFakeSubscriber("producer")
	r.Register(producer, "topic1", RoleProducer)
	const n = 50
	subs := make([]*fakeSubscriber, n)
	for i := range subs {
		subs[i] = newFakeSubscriber(fmt.Sprintf("c%02d", i))
	}

	churn := func(from, to int) func() {
		return func() {
			for i := from; i < to; i++ {
				r.Register(subs[i], "topic1", RoleConsumer)
				r.Register(subs[i], "topic2", RoleConsumer)
				r.Withdraw(subs[i], "topic2", RoleConsumer)
			}
		}
	}
	publish := func() {
		for i := 0; i < 100; i++ {
			r.Fanout("topic1", producer, func(consumers []ISubscriber) {
				for _, c := range consumers {
					c.Deliver(messages.NewMessageEnvelope("topic1", "x"))
				}
			})
		}
	}

	test_utils.NewTestGroup("Registry", "concurrent register, withdraw and fanout").
		Concurrently("churn", "", churn(0, n/2), churn(n/2, n), publish, publish).
		Then("every consumer registered once", "", func() bool {
			return len(r.ConsumersOf("topic1")) == n && len(r.ConsumersOf("topic2")) == 0
		}).
		Concurrently("disconnect all", "", func() {
			for _, s := range subs[:n/2] {
				r.WithdrawAll(s)
			}
		}, func() {
			for _, s := range subs[n/2:] {
				r.WithdrawAll(s)
			}
		}).
		Then("no bindings left", "", func() bool {
			return len(r.ConsumersOf("topic1")) == 0 && len(r.BindingsOf(subs[0])) == 0
		}).
		Run(t)
}
