package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"tbroker/broker_common/messages"
	"tbroker/common/connection"
	"tbroker/common/logger"
	"tbroker/tcp"
	"tbroker/websocket/wclient"
)

const receiveTimeout = 5 * time.Second

func newClient(addr string, protocol uint8, l *logger.SimpleLogger) connection.IClient {
	if strings.HasPrefix(addr, "ws://") {
		return wclient.New(addr, protocol, l)
	}
	return tcp.NewTCPClient(addr, protocol, 3, l)
}

func roundTrip(c connection.IClient, envelope messages.Envelope) error {
	if err := c.Send(envelope); err != nil {
		return err
	}
	reply, err := c.Receive(receiveTimeout)
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", envelope.String(), reply.String())
	if reply.Type == messages.TypeError {
		return errors.New(reply.Content)
	}
	return nil
}

// registers as producer of a topic, publishes a message and withdraws
func main() {
	addr := flag.String("addr", "127.0.0.1:8000", "broker address, host:port or ws://host:port/path")
	topic := flag.String("topic", "topic1", "topic to publish on")
	content := flag.String("message", "Hello World!", "message to publish")
	binary := flag.Bool("flatbuffers", false, "encode envelopes with FlatBuffers instead of JSON")
	flag.Parse()

	l := logger.New(os.Stderr, "[Client]", false)
	defer l.Sync()
	protocol := uint8(messages.ProtocolJSON)
	if *binary {
		protocol = messages.ProtocolFlatBuffer
	}

	c := newClient(*addr, protocol, l)
	if err := c.Connect(); err != nil {
		l.Errorf("unable to connect to %s: %s", *addr, err.Error())
		os.Exit(1)
	}
	defer c.Close()
	fmt.Println(c.Welcome())

	steps := []messages.Envelope{
		messages.NewRegisterEnvelope(*topic, messages.RoleProducer),
		messages.NewMessageEnvelope(*topic, *content),
		messages.NewWithdrawEnvelope(*topic, messages.RoleProducer),
	}
	for _, step := range steps {
		if err := roundTrip(c, step); err != nil {
			l.Errorf("%s failed: %s", step.Type, err.Error())
			os.Exit(1)
		}
	}
}
