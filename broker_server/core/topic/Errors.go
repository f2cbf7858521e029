package topic

import (
	brokererr "tbroker/broker_server/core/error"
)

func NewEmptyTopicError() *brokererr.BrokerError {
	return brokererr.NewInvalidEnvelopeError("topic must not be empty")
}

func NewUnknownRoleError(role string) *brokererr.BrokerError {
	return brokererr.NewInvalidEnvelopeError("unknown role %q, expected %q or %q", role, RoleProducer, RoleConsumer)
}
