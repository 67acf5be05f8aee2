package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

// fakeClient records publishes. Methods not overridden panic through the
// nil embedded interface.
type fakeClient struct {
	pahomqtt.Client
	token        *fakeToken
	connected    bool
	disconnected bool
	messages     []published
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return c.token
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Disconnect(quiesce uint) { c.disconnected = true }

func TestMQTTBackend_Write(t *testing.T) {
	client := &fakeClient{token: completedToken(nil), connected: true}
	b := newMQTTBackend(client, &MQTTConfig{TopicPrefix: "/sar/host1/", QoS: 1, Retain: true}, time.Second, zerolog.Nop())

	require.NoError(t, b.Write(context.Background(), "csv/disk_tps.csv", []byte("# timestamp;sda\n")))
	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, "sar/host1/csv/disk_tps.csv", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retain)
	assert.Equal(t, []byte("# timestamp;sda\n"), msg.payload)

	require.NoError(t, b.Close())
	assert.True(t, client.disconnected)
	assert.Equal(t, "mqtt", b.Type())
}

func TestMQTTBackend_PublishError(t *testing.T) {
	client := &fakeClient{token: completedToken(errors.New("not connected"))}
	b := newMQTTBackend(client, &MQTTConfig{}, time.Second, zerolog.Nop())

	err := b.Write(context.Background(), "disk.csv", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MQTT publish to disk.csv failed")

	require.NoError(t, b.Close())
	assert.False(t, client.disconnected, "no disconnect without a connection")
}

func TestMQTTBackend_Timeout(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: make(chan struct{})}}
	b := newMQTTBackend(client, &MQTTConfig{}, 10*time.Millisecond, zerolog.Nop())

	err := b.Write(context.Background(), "disk.csv", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestMQTTBackend_Cancelled(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: make(chan struct{})}}
	b := newMQTTBackend(client, &MQTTConfig{}, time.Minute, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Write(ctx, "disk.csv", []byte("x")), context.Canceled)
}

func TestNewMQTTBackend_Validation(t *testing.T) {
	_, err := NewMQTTBackend(&MQTTConfig{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewMQTTBackend(&MQTTConfig{Broker: "tcp://localhost:1883", QoS: 3}, zerolog.Nop())
	assert.Error(t, err)
}
