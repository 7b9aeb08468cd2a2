package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEvent(t *testing.T) {
	require.Equal(t, "lighthouse-subscription", NormalizeEvent(".lighthouse-subscription"))
	require.Equal(t, `App\Events\X`, NormalizeEvent(`\App\Events\X`))
	require.Equal(t, "plain", NormalizeEvent("plain"))
	require.Equal(t, "", NormalizeEvent(""))
}

func TestDecodeData(t *testing.T) {
	obj, err := DecodeData(json.RawMessage(`{"data":{"a":1}}`))
	require.NoError(t, err)
	require.Equal(t, map[string]any{"data": map[string]any{"a": float64(1)}}, obj)

	str, err := DecodeData(json.RawMessage(`"{\"data\":{\"a\":1}}"`))
	require.NoError(t, err)
	require.Equal(t, obj, str)

	empty, err := DecodeData(nil)
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = DecodeData(json.RawMessage(`[1]`))
	require.Error(t, err)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"event":"lighthouse-subscription","channel":"private-x","data":{"k":"v"}}`))
	require.NoError(t, err)
	require.Equal(t, "lighthouse-subscription", env.Event)
	require.Equal(t, "private-x", env.Channel)

	_, err = DecodeEnvelope([]byte(`nope`))
	require.Error(t, err)
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	ch, err := m.Private(context.Background(), "lighthouse-1")
	require.NoError(t, err)
	require.Equal(t, "private-lighthouse-1", ch.Name())

	var got map[string]any
	require.NoError(t, ch.Listen(".evt", func(p map[string]any) { got = p }))
	require.NoError(t, m.Joined("private-lighthouse-1").Fire("evt", map[string]any{"a": 1}))
	require.Equal(t, map[string]any{"a": 1}, got)
	require.Error(t, m.Joined("private-lighthouse-1").Fire("other", nil))

	require.NoError(t, m.Leave("lighthouse-1"))
	require.Nil(t, m.Joined("private-lighthouse-1"))
	require.Equal(t, []Call{{"Private", "lighthouse-1"}, {"Leave", "lighthouse-1"}}, m.Calls())

	boom := errors.New("boom")
	_, err = m.FailWith("Join", boom).Join(context.Background(), "room")
	require.ErrorIs(t, err, boom)
}

func TestMockChannelListenFailureIsSynchronized(t *testing.T) {
	ch, err := NewMockClient().Private(context.Background(), "x")
	require.NoError(t, err)
	mc := ch.(*MockChannel)

	boom := errors.New("boom")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		mc.FailListen(boom)
	}()
	go func() {
		defer wg.Done()
		_ = mc.Listen("e", func(map[string]any) {})
	}()
	wg.Wait()

	require.ErrorIs(t, mc.Listen("e", func(map[string]any) {}), boom)
}
