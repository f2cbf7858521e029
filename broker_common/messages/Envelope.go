package messages

import "fmt"

// Envelope types. register, message and withdraw flow from clients to the broker, message, ack
// and error flow from the broker to clients.
const (
	TypeRegister = "register"
	TypeMessage  = "message"
	TypeWithdraw = "withdraw"
	TypeAck      = "ack"
	TypeError    = "error"
)

// Roles carried in the content of register and withdraw envelopes.
const (
	RoleProducer = "producer"
	RoleConsumer = "consumer"
)

type Envelope struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

func (e Envelope) String() string {
	return fmt.Sprintf("{type: %q, topic: %q, content: %q}", e.Type, e.Topic, e.Content)
}

func NewEnvelope(envelopeType string, topic string, content string) Envelope {
	return Envelope{envelopeType, topic, content}
}

func NewRegisterEnvelope(topic string, role string) Envelope {
	return Envelope{TypeRegister, topic, role}
}

func NewWithdrawEnvelope(topic string, role string) Envelope {
	return Envelope{TypeWithdraw, topic, role}
}

func NewMessageEnvelope(topic string, content string) Envelope {
	return Envelope{TypeMessage, topic, content}
}

// NewAckEnvelope acknowledges an envelope of type acked on topic.
func NewAckEnvelope(topic string, acked string) Envelope {
	return Envelope{TypeAck, topic, acked}
}

func NewErrorEnvelope(topic string, errorMessage string) Envelope {
	return Envelope{TypeError, topic, errorMessage}
}

func IsValidRole(role string) bool {
	return role == RoleProducer || role == RoleConsumer
}
