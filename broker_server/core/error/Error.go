package error

import (
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

type ErrorKind int

const (
	Unknown ErrorKind = iota
	ConnectionRefused
	ConnectionReset
	ConnectionAborted
	Timeout
	InvalidEnvelope
	NotAuthorized
	AdmissionDenied
	ConfigIO
	ConfigParse
)

var kindNames = map[ErrorKind]string{
	Unknown:           "Unknown",
	ConnectionRefused: "ConnectionRefused",
	ConnectionReset:   "ConnectionReset",
	ConnectionAborted: "ConnectionAborted",
	Timeout:           "Timeout",
	InvalidEnvelope:   "InvalidEnvelope",
	NotAuthorized:     "NotAuthorized",
	AdmissionDenied:   "AdmissionDenied",
	ConfigIO:          "ConfigIO",
	ConfigParse:       "ConfigParse",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

type IBrokerError interface {
	Kind() ErrorKind
	Error() string
}

type BrokerError struct {
	kind  ErrorKind
	msg   string
	cause error
}

func (e *BrokerError) Kind() ErrorKind {
	return e.kind
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Message is the error text without the kind.
func (e *BrokerError) Message() string {
	return e.msg
}

func (e *BrokerError) Unwrap() error {
	return e.cause
}

func NewBrokerError(kind ErrorKind, msg string) *BrokerError {
	return &BrokerError{kind: kind, msg: msg}
}

func Wrap(kind ErrorKind, cause error, msg string) *BrokerError {
	return &BrokerError{kind: kind, msg: fmt.Sprintf("%s: %v", msg, cause), cause: cause}
}

func NewInvalidEnvelopeError(format string, args ...interface{}) *BrokerError {
	return NewBrokerError(InvalidEnvelope, fmt.Sprintf(format, args...))
}

func NewNotAuthorizedError(connId string, topic string) *BrokerError {
	return NewBrokerError(NotAuthorized, fmt.Sprintf("connection %s is not a producer of topic %s", connId, topic))
}

func NewAdmissionDeniedError(addr string) *BrokerError {
	return NewBrokerError(AdmissionDenied, fmt.Sprintf("address %s is not admitted", addr))
}

// KindOf returns the kind of err if it is, or wraps, a BrokerError, else Unknown.
func KindOf(err error) ErrorKind {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Kind()
	}
	return Unknown
}

func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if ne, ok := errors.Cause(err).(net.Error); ok && ne.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// ClassifyTransportError maps a socket error to the transport kinds. Errors that carry no
// recognisable errno are reported as ConnectionAborted.
func ClassifyTransportError(err error) ErrorKind {
	cause := errors.Cause(err)
	switch {
	case cause == nil:
		return Unknown
	case IsTimeout(cause):
		return Timeout
	case cause == io.EOF, cause == io.ErrUnexpectedEOF, errors.Is(cause, syscall.ECONNRESET), errors.Is(cause, syscall.EPIPE):
		return ConnectionReset
	case errors.Is(cause, syscall.ECONNREFUSED):
		return ConnectionRefused
	}
	return ConnectionAborted
}
