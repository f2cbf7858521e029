package messages

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONEnvelopeParser(t *testing.T) {
	p := NewJSONEnvelopeParser()

	serialized, err := p.Serialize(NewMessageEnvelope("topic1", "hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","topic":"topic1","content":"hello"}`, string(serialized))

	e, err := p.Deserialize([]byte(`{"type":"register","topic":"topic1","content":"producer","extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, NewRegisterEnvelope("topic1", RoleProducer), e)

	e, err = p.Deserialize([]byte(`{"type":"withdraw"}`))
	require.NoError(t, err)
	assert.Equal(t, Envelope{Type: TypeWithdraw}, e)

	for _, malformed := range []string{
		``,
		`not json`,
		`{"topic":"topic1"}`,
		`{"type":5}`,
		`["register","topic1","producer"]`,
		`null`,
		`{"type":"register"} trailing`,
	} {
		_, err := p.Deserialize([]byte(malformed))
		assert.Error(t, err, "input %q", malformed)
	}
}

func TestFBEnvelopeParser(t *testing.T) {
	p := NewFBEnvelopeParser()
	e0 := NewMessageEnvelope("x/y/z", "hello")
	serialized, err := p.Serialize(e0)
	require.NoError(t, err)
	e, err := p.Deserialize(serialized)
	require.NoError(t, err)
	assert.Equal(t, e0, e)

	partial, err := p.Serialize(Envelope{Type: TypeWithdraw})
	require.NoError(t, err)
	e, err = p.Deserialize(partial)
	require.NoError(t, err)
	assert.Equal(t, Envelope{Type: TypeWithdraw}, e)

	_, err = p.Deserialize([]byte{1, 2})
	assert.Error(t, err)
	_, err = p.Deserialize([]byte{0xff, 0xff, 0xff, 0x7f, 0, 0, 0, 0})
	assert.Error(t, err)
}

func TestEncodeAndDecodeFrame(t *testing.T) {
	for _, protocol := range []uint8{ProtocolJSON, ProtocolFlatBuffer} {
		frame, err := EncodeEnvelope(NewAckEnvelope("topic1", TypeRegister), protocol)
		require.NoError(t, err)
		assert.Equal(t, protocol, frame.Protocol)
		e, err := DecodeFrame(frame)
		require.NoError(t, err)
		assert.Equal(t, NewAckEnvelope("topic1", TypeRegister), e)
	}

	_, err := DecodeFrame(Frame{Protocol: 9, Body: []byte(`{}`)})
	assert.Equal(t, ErrUnknownProtocol, errors.Cause(err))
	_, err = EncodeEnvelope(Envelope{}, 9)
	assert.Error(t, err)
}
