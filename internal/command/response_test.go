package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalsAcceptStringOrList(t *testing.T) {
	tests := []struct {
		in   string
		want Signals
	}{
		{`{"signals":"quit"}`, Signals{"quit"}},
		{`{"signals":["reload","reset"]}`, Signals{"reload", "reset"}},
		{`{"signals":""}`, nil},
		{`{}`, nil},
	}
	for _, tt := range tests {
		var r Response
		require.NoError(t, json.Unmarshal([]byte(tt.in), &r), tt.in)
		assert.Equal(t, tt.want, r.Signals, tt.in)
	}

	var r Response
	assert.Error(t, json.Unmarshal([]byte(`{"signals":5}`), &r))
}

func TestParseSignal(t *testing.T) {
	s, ok := ParseSignal(" Reload ")
	assert.True(t, ok)
	assert.Equal(t, SignalReload, s)

	_, ok = ParseSignal("explode")
	assert.False(t, ok)
	assert.Equal(t, "quit", SignalQuit.String())
}

func TestResponseFromMap(t *testing.T) {
	r, err := ResponseFromMap(nil)
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = ResponseFromMap(map[string]interface{}{
		"msg":        "hi",
		"private":    true,
		"msgOptions": map[string]interface{}{"embed": map[string]interface{}{"title": "T"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", r.Msg)
	assert.True(t, r.Private)
	require.NotNil(t, r.MsgOptions)
	assert.Equal(t, "T", r.MsgOptions.Embed.Title)
}

func TestSwitch(t *testing.T) {
	var got []string
	sw := Switch{
		"add": func(args []string, c *Context) (*Response, error) {
			got = args
			return Reply("added"), nil
		},
		DefaultCase: func(args []string, c *Context) (*Response, error) {
			return Reply("default %d", len(args)), nil
		},
	}

	r, err := sw.Run([]string{"ADD", "x", "y"}, &Context{})
	require.NoError(t, err)
	assert.Equal(t, "added", r.Msg)
	assert.Equal(t, []string{"x", "y"}, got)

	r, err = sw.Run([]string{"what"}, &Context{})
	require.NoError(t, err)
	assert.Equal(t, "default 1", r.Msg)

	r, err = Switch{}.Run(nil, &Context{})
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestWrapAndRoot(t *testing.T) {
	inner := &echoCommand{name: "echo"}
	outer := Apply(inner, WithGuildOnly())

	assert.Equal(t, "echo", outer.Name())
	assert.Same(t, inner, Root(outer))

	r, err := outer.Run(nil, &Context{})
	require.NoError(t, err)
	assert.Contains(t, r.Msg, "only works in a server")
}
