package messages

import (
	"encoding/json"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/pkg/errors"

	"tbroker/broker_common/messages/fb"
)

// Frame body protocols.
const (
	ProtocolJSON       = 0 // use json object
	ProtocolFlatBuffer = 1 // use FlatBuffer table
)

var ErrUnknownProtocol = errors.New("unknown frame protocol")

type IEnvelopeParser interface {
	Serialize(envelope Envelope) ([]byte, error)
	Deserialize([]byte) (Envelope, error)
}

var (
	jsonParser = NewJSONEnvelopeParser()
	fbParser   = NewFBEnvelopeParser()
)

func ParserFor(protocol uint8) (IEnvelopeParser, error) {
	switch protocol {
	case ProtocolJSON:
		return jsonParser, nil
	case ProtocolFlatBuffer:
		return fbParser, nil
	}
	return nil, errors.Wrapf(ErrUnknownProtocol, "protocol %d", protocol)
}

type JSONEnvelopeParser struct{}

func NewJSONEnvelopeParser() *JSONEnvelopeParser {
	return &JSONEnvelopeParser{}
}

type jsonEnvelope struct {
	Type    *string `json:"type"`
	Topic   *string `json:"topic"`
	Content *string `json:"content"`
}

func (p *JSONEnvelopeParser) Serialize(envelope Envelope) ([]byte, error) {
	return json.Marshal(envelope)
}

func (p *JSONEnvelopeParser) Deserialize(buffer []byte) (Envelope, error) {
	var raw jsonEnvelope
	if err := json.Unmarshal(buffer, &raw); err != nil {
		return Envelope{}, errors.Wrap(err, "unable to parse the envelope")
	}
	if raw.Type == nil {
		return Envelope{}, errors.New("envelope has no type")
	}
	envelope := Envelope{Type: *raw.Type}
	if raw.Topic != nil {
		envelope.Topic = *raw.Topic
	}
	if raw.Content != nil {
		envelope.Content = *raw.Content
	}
	return envelope, nil
}

type FBEnvelopeParser struct{}

func NewFBEnvelopeParser() *FBEnvelopeParser {
	return &FBEnvelopeParser{}
}

func (p *FBEnvelopeParser) Serialize(envelope Envelope) ([]byte, error) {
	builder := flatbuffers.NewBuilder(64 + len(envelope.Topic) + len(envelope.Content))
	typeOffset := builder.CreateString(envelope.Type)
	topicOffset := builder.CreateString(envelope.Topic)
	contentOffset := builder.CreateString(envelope.Content)
	fb.EnvelopeStart(builder)
	fb.EnvelopeAddType(builder, typeOffset)
	fb.EnvelopeAddTopic(builder, topicOffset)
	fb.EnvelopeAddContent(builder, contentOffset)
	offset := fb.EnvelopeEnd(builder)
	builder.Finish(offset)
	return builder.Bytes[builder.Head():], nil
}

// Deserialize recovers from the panics the flatbuffers accessors raise on corrupt buffers.
func (p *FBEnvelopeParser) Deserialize(buffer []byte) (envelope Envelope, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			envelope = Envelope{}
			err = errors.Errorf("unable to parse the envelope: %v", recovered)
		}
	}()
	if len(buffer) < flatbuffers.SizeUOffsetT {
		return Envelope{}, errors.New("invalid buffer format")
	}
	table := fb.GetRootAsEnvelope(buffer, 0)
	envelopeType := table.Type()
	if len(envelopeType) == 0 {
		return Envelope{}, errors.New("envelope has no type")
	}
	return Envelope{
		Type:    string(envelopeType),
		Topic:   string(table.Topic()),
		Content: string(table.Content()),
	}, nil
}

// EncodeEnvelope serializes envelope with the given protocol into a frame.
func EncodeEnvelope(envelope Envelope, protocol uint8) (Frame, error) {
	parser, err := ParserFor(protocol)
	if err != nil {
		return Frame{}, err
	}
	body, err := parser.Serialize(envelope)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Protocol: protocol, Body: body}, nil
}

func DecodeFrame(frame Frame) (Envelope, error) {
	parser, err := ParserFor(frame.Protocol)
	if err != nil {
		return Envelope{}, err
	}
	return parser.Deserialize(frame.Body)
}
