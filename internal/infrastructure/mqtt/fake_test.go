package mqtt

import (
	"errors"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a completed (or never-completing) paho token.
type fakeToken struct {
	err  error
	hang bool
}

func (t *fakeToken) Wait() bool                     { return !t.hang }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.hang }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.hang {
		close(ch)
	}
	return ch
}

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho implements the parts of pahomqtt.Client the Client uses.
// Unimplemented methods panic through the nil embedded interface.
type fakePaho struct {
	pahomqtt.Client
	broker *fakeBroker

	mu          sync.Mutex
	open        bool
	disconnects []uint
}

func (f *fakePaho) Connect() pahomqtt.Token {
	b := f.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	b.connectCalls++
	if b.connectFailures > 0 {
		b.connectFailures--
		return &fakeToken{err: errors.New("connection refused")}
	}
	if b.connectHang {
		return &fakeToken{hang: true}
	}

	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	b := f.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	data, _ := payload.([]byte)
	if b.publishErr != nil {
		return &fakeToken{err: b.publishErr}
	}
	if b.publishHang {
		return &fakeToken{hang: true}
	}
	b.published = append(b.published, publishedMessage{topic: topic, qos: qos, retained: retained, payload: data})
	return &fakeToken{}
}

func (f *fakePaho) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.disconnects = append(f.disconnects, quiesce)
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakePaho) IsConnectionOpen() bool {
	return f.IsConnected()
}

// fakeBroker hands out fakePaho clients and records what they did.
type fakeBroker struct {
	mu              sync.Mutex
	connectFailures int
	connectHang     bool
	connectCalls    int
	publishErr      error
	publishHang     bool
	published       []publishedMessage

	options *pahomqtt.ClientOptions
	clients []*fakePaho
}

func (b *fakeBroker) newClient(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.options = opts
	c := &fakePaho{broker: b}
	b.clients = append(b.clients, c)
	return c
}

func (b *fakeBroker) last() *fakePaho {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clients[len(b.clients)-1]
}

func (b *fakeBroker) messages(topic string) []publishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publishedMessage
	for _, m := range b.published {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (b *fakeBroker) set(fn func(b *fakeBroker)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}
