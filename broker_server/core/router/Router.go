package router

import (
	"tbroker/broker_common/messages"
	brokererr "tbroker/broker_server/core/error"
	"tbroker/broker_server/core/topic"
	"tbroker/common/logger"
)

type Status int

const (
	Acknowledged Status = iota
	Delivered
	Rejected
)

func (s Status) String() string {
	switch s {
	case Acknowledged:
		return "Acknowledged"
	case Delivered:
		return "Delivered"
	case Rejected:
		return "Rejected"
	}
	return "Unknown"
}

// RouteResult is the outcome of one inbound envelope. Reply is always set and goes back to the
// sender: an ack for Acknowledged and Delivered, an error envelope for Rejected.
type RouteResult struct {
	Status     Status
	Reply      messages.Envelope
	Deliveries int
	Err        *brokererr.BrokerError
}

func acknowledged(envelope messages.Envelope) RouteResult {
	return RouteResult{Status: Acknowledged, Reply: messages.NewAckEnvelope(envelope.Topic, envelope.Type)}
}

func rejected(envelope messages.Envelope, err *brokererr.BrokerError) RouteResult {
	return RouteResult{Status: Rejected, Reply: messages.NewErrorEnvelope(envelope.Topic, err.Error()), Err: err}
}

// Rejection builds the result for an inbound frame that could not be decoded.
func Rejection(err *brokererr.BrokerError) RouteResult {
	return rejected(messages.Envelope{}, err)
}

type IRouter interface {
	Handle(sub topic.ISubscriber, envelope messages.Envelope) RouteResult
}

type Router struct {
	registry topic.IRegistry
	logger   *logger.SimpleLogger
}

func NewRouter(registry topic.IRegistry, l *logger.SimpleLogger) *Router {
	return &Router{
		registry: registry,
		logger:   l.WithPrefix("[Router]"),
	}
}

func (r *Router) Handle(sub topic.ISubscriber, envelope messages.Envelope) RouteResult {
	switch envelope.Type {
	case messages.TypeRegister:
		return r.register(sub, envelope)
	case messages.TypeWithdraw:
		return r.withdraw(sub, envelope)
	case messages.TypeMessage:
		return r.publish(sub, envelope)
	}
	return rejected(envelope, brokererr.NewInvalidEnvelopeError("unknown envelope type %q", envelope.Type))
}

func parseBinding(envelope messages.Envelope) (topic.Role, *brokererr.BrokerError) {
	if envelope.Topic == "" {
		return "", topic.NewEmptyTopicError()
	}
	role, ok := topic.ParseRole(envelope.Content)
	if !ok {
		return "", topic.NewUnknownRoleError(envelope.Content)
	}
	return role, nil
}

func (r *Router) register(sub topic.ISubscriber, envelope messages.Envelope) RouteResult {
	role, berr := parseBinding(envelope)
	if berr != nil {
		return rejected(envelope, berr)
	}
	added, err := r.registry.Register(sub, envelope.Topic, role)
	if err != nil {
		return r.registryError(envelope, err)
	}
	if added {
		r.logger.Printf("connection %s has registered as %s of topic %s", sub.Id(), role, envelope.Topic)
	}
	return acknowledged(envelope)
}

func (r *Router) withdraw(sub topic.ISubscriber, envelope messages.Envelope) RouteResult {
	role, berr := parseBinding(envelope)
	if berr != nil {
		return rejected(envelope, berr)
	}
	removed, err := r.registry.Withdraw(sub, envelope.Topic, role)
	if err != nil {
		return r.registryError(envelope, err)
	}
	if removed {
		r.logger.Printf("connection %s has withdrawn as %s of topic %s", sub.Id(), role, envelope.Topic)
	}
	return acknowledged(envelope)
}

func (r *Router) publish(sub topic.ISubscriber, envelope messages.Envelope) RouteResult {
	if envelope.Topic == "" {
		return rejected(envelope, topic.NewEmptyTopicError())
	}
	delivery := messages.NewMessageEnvelope(envelope.Topic, envelope.Content)
	deliveries := 0
	err := r.registry.Fanout(envelope.Topic, sub, func(consumers []topic.ISubscriber) {
		for _, consumer := range consumers {
			if derr := consumer.Deliver(delivery); derr != nil {
				r.logger.Warnf("unable to deliver message on topic %s from %s to %s(%s) due to %s",
					envelope.Topic, sub.Id(), consumer.Id(), consumer.Address(), derr.Error())
				continue
			}
			deliveries++
		}
	})
	if err != nil {
		return r.registryError(envelope, err)
	}
	r.logger.Debugf("message from %s on topic %s delivered to %d consumers", sub.Id(), envelope.Topic, deliveries)
	return RouteResult{
		Status:     Delivered,
		Reply:      messages.NewAckEnvelope(envelope.Topic, envelope.Type),
		Deliveries: deliveries,
	}
}

func (r *Router) registryError(envelope messages.Envelope, err error) RouteResult {
	if berr, ok := err.(*brokererr.BrokerError); ok {
		return rejected(envelope, berr)
	}
	return rejected(envelope, brokererr.NewBrokerError(brokererr.Unknown, err.Error()))
}
