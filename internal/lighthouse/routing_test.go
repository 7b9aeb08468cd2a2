package lighthouse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeExtensions(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &out))
	return out
}

func TestParseRoutingV1(t *testing.T) {
	ext := decodeExtensions(t, `{"lighthouse_subscriptions":{"channels":{"someEvent":"private-lighthouse-1","other":""}}}`)
	r := ParseRouting(ext, DefaultNamespace)
	require.Equal(t, RoutingV1{Channels: map[string]string{"someEvent": "private-lighthouse-1"}}, r)
	require.Equal(t, 1, r.Version())

	name, ok := r.ChannelFor("someEvent")
	require.True(t, ok)
	require.Equal(t, "private-lighthouse-1", name)
	_, ok = r.ChannelFor("other")
	require.False(t, ok)
}

func TestParseRoutingV2(t *testing.T) {
	ext := decodeExtensions(t, `{"lighthouse_subscriptions":{"version":2,"channel":"private-lighthouse-2"}}`)
	r := ParseRouting(ext, DefaultNamespace)
	require.Equal(t, RoutingV2{Channel: "private-lighthouse-2"}, r)
	require.Equal(t, 2, r.Version())

	name, ok := r.ChannelFor("anything")
	require.True(t, ok)
	require.Equal(t, "private-lighthouse-2", name)
}

func TestParseRoutingVersionForms(t *testing.T) {
	for _, v := range []any{2, int64(2), float64(2), json.Number("2"), "2"} {
		ext := map[string]any{DefaultNamespace: map[string]any{"version": v, "channel": "c"}}
		require.Equal(t, RoutingV2{Channel: "c"}, ParseRouting(ext, DefaultNamespace), "version %#v", v)
	}
	// a v2 discriminator never falls back to the v1 channel map
	ext := map[string]any{DefaultNamespace: map[string]any{
		"version":  2,
		"channels": map[string]string{"f": "c"},
	}}
	require.Nil(t, ParseRouting(ext, DefaultNamespace))
}

func TestParseRoutingAbsent(t *testing.T) {
	cases := []map[string]any{
		nil,
		{},
		{"other": map[string]any{"channels": map[string]any{"f": "c"}}},
		{DefaultNamespace: "not an object"},
		{DefaultNamespace: map[string]any{}},
		{DefaultNamespace: map[string]any{"channels": map[string]any{"f": 42}}},
		{DefaultNamespace: map[string]any{"version": 2}},
		{DefaultNamespace: map[string]any{"version": 2.5, "channel": "c"}},
	}
	for i, ext := range cases {
		require.Nil(t, ParseRouting(ext, DefaultNamespace), "case %d", i)
	}
}

func TestParseRoutingCustomNamespace(t *testing.T) {
	ext := map[string]any{"subs": map[string]any{"channels": map[string]any{"f": "c"}}}
	require.Nil(t, ParseRouting(ext, DefaultNamespace))
	require.NotNil(t, ParseRouting(ext, "subs"))
}
