package publish

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/awaistahir/smart-heat/internal/engine"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (t *fakeToken) Error() error                   { return t.err }

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	connected bool
	token     *fakeToken
	published []message
}

func (c *fakeClient) IsConnected() bool { return c.connected }
func (c *fakeClient) Connect() paho.Token {
	c.connected = c.token.err == nil
	return c.token
}
func (c *fakeClient) Disconnect(uint) { c.connected = false }
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.published = append(c.published, message{topic, qos, retained, payload.([]byte)})
	return c.token
}

func TestPublishSchedule(t *testing.T) {
	client := &fakeClient{token: &fakeToken{complete: true}}
	p := newPublisher(client, "home/heating/", 1)
	require.NoError(t, p.Connect())

	at := time.Date(2024, 12, 1, 6, 0, 0, 0, time.UTC)
	res := &engine.Result{
		Transitions: []engine.Transition{{Time: at, On: true, Price: 5}},
		Summary:     engine.Summary{ComfortSlots: 4, WarmComfortSlots: 4},
	}
	require.NoError(t, p.PublishSchedule(res, at))
	require.NoError(t, p.PublishState(true, 5, at))

	require.Len(t, client.published, 2)
	assert.Equal(t, "home/heating/schedule", client.published[0].topic)
	assert.Equal(t, byte(1), client.published[0].qos)
	assert.True(t, client.published[0].retained)

	var sched ScheduleMessage
	require.NoError(t, json.Unmarshal(client.published[0].payload, &sched))
	require.Len(t, sched.Transitions, 1)
	assert.True(t, sched.Transitions[0].On)
	assert.Equal(t, 4, sched.Summary.WarmComfortSlots)

	assert.Equal(t, "home/heating/state", client.published[1].topic)
	var state StateMessage
	require.NoError(t, json.Unmarshal(client.published[1].payload, &state))
	assert.True(t, state.On)
	assert.Equal(t, 5.0, state.Price)

	p.Close()
	assert.False(t, client.connected)
}

func TestPublishErrors(t *testing.T) {
	p := newPublisher(&fakeClient{token: &fakeToken{complete: false}}, "", 0)
	assert.ErrorIs(t, p.PublishState(false, 0, time.Now()), ErrTimeout)
	assert.Equal(t, "smartheat/state", p.Topic("state"))

	boom := errors.New("not authorised")
	p = newPublisher(&fakeClient{token: &fakeToken{complete: true, err: boom}}, "x", 0)
	assert.ErrorIs(t, p.Connect(), boom)
}
