package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/flake/datastore"
	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/internal/command"
	"github.com/keshon/flake/internal/config"
	"github.com/keshon/flake/internal/markov"
	"github.com/keshon/flake/internal/state"
)

type sent struct {
	to      string
	direct  bool
	text    string
	options *chat.SendOptions
}

type fakeMessenger struct {
	mu       sync.Mutex
	self     string
	sent     []sent
	presence []string
}

func (f *fakeMessenger) SelfID() string { return f.self }

func (f *fakeMessenger) SendMessage(_ context.Context, channelID, text string, opts *chat.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{channelID, false, text, opts})
	return nil
}

func (f *fakeMessenger) SendDirect(_ context.Context, userID, text string, opts *chat.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{userID, true, text, opts})
	return nil
}

func (f *fakeMessenger) FetchChannel(_ context.Context, id string) (*chat.Channel, error) {
	return &chat.Channel{ID: id, Public: true}, nil
}

func (f *fakeMessenger) FetchMessage(_ context.Context, channelID, messageID string) (*chat.Message, error) {
	return &chat.Message{ID: messageID, ChannelID: channelID, Public: true}, nil
}

func (f *fakeMessenger) SetPresence(_ context.Context, text, kind string) error {
	f.presence = append(f.presence, kind+":"+text)
	return nil
}

func (f *fakeMessenger) DisplayName(_ context.Context, userID, _ string) (string, error) {
	if userID == f.self {
		return "Flake", nil
	}
	return "", errors.New("no such member")
}

// funcCommand adapts a function to command.Command.
type funcCommand struct {
	name string
	run  command.RunFunc
}

func (f *funcCommand) Name() string        { return f.name }
func (f *funcCommand) Description() string { return f.name }
func (f *funcCommand) Category() string    { return "test" }
func (f *funcCommand) Run(args []string, c *command.Context) (*command.Response, error) {
	return f.run(args, c)
}

type mapSource map[string]command.RunFunc

func (m mapSource) List() ([]string, error) {
	var ids []string
	for name := range m {
		ids = append(ids, name+".test")
	}
	return ids, nil
}

func (m mapSource) Load(id string) (command.Command, error) {
	name := command.NameFromID(id)
	return &funcCommand{name: name, run: m[name]}, nil
}

type fixture struct {
	d         *Dispatcher
	store     *state.Store
	messenger *fakeMessenger
	signals   []command.Signal
	calls     map[string][][]string
	roll      float64
	hookHit   bool
	corpus    *markov.Corpus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	snap, err := datastore.New(datastore.DefaultConfig(filepath.Join(dir, "memory.json")))
	require.NoError(t, err)

	f := &fixture{
		store:     state.Open(snap, zerolog.Nop()),
		messenger: &fakeMessenger{self: "bot"},
		calls:     map[string][][]string{},
		roll:      0.99,
	}
	f.corpus = markov.NewCorpus(markov.Config{GuildsDir: filepath.Join(dir, "guilds"), FileName: "markov.txt", Logger: zerolog.Nop()})

	record := func(name string) command.RunFunc {
		return func(args []string, c *command.Context) (*command.Response, error) {
			f.calls[name] = append(f.calls[name], args)
			return nil, nil
		}
	}
	src := mapSource{
		"echo": func(args []string, c *command.Context) (*command.Response, error) {
			f.calls["echo"] = append(f.calls["echo"], args)
			return &command.Response{Msg: strings.Join(args, " ")}, nil
		},
		"boom": func(args []string, c *command.Context) (*command.Response, error) {
			panic("kaboom")
		},
		"fail": func(args []string, c *command.Context) (*command.Response, error) {
			return nil, errors.New("nope")
		},
		"secret": func(args []string, c *command.Context) (*command.Response, error) {
			return &command.Response{Msg: "psst", Private: true}, nil
		},
		"remember": func(args []string, c *command.Context) (*command.Response, error) {
			return &command.Response{
				Log:    "remembering",
				Memory: map[string]any{"users": map[string]any{c.AuthorID(): map[string]any{"note": args[0]}}},
			}, nil
		},
		"badmem": func(args []string, c *command.Context) (*command.Response, error) {
			return &command.Response{Memory: []any{1, 2}}, nil
		},
		"bye": func(args []string, c *command.Context) (*command.Response, error) {
			return &command.Response{
				Msg:     "bye",
				Memory:  map[string]any{"flag": "set"},
				Signals: command.Signals{"explode", "quit"},
			}, nil
		},
		"markov": record("markov"),
		"tick":   record("tick"),
	}
	reg := command.NewRegistry(src, zerolog.Nop())
	_, err = reg.ReloadAll()
	require.NoError(t, err)

	f.d = New(Config{
		Registry:  reg,
		Store:     f.store,
		Messenger: f.messenger,
		Corpus:    f.corpus,
		Defaults:  config.Defaults().Guild,
		OwnerID:   "owner",
		Signal: func(_ context.Context, s command.Signal) {
			// signals must observe fully applied state
			if s == command.SignalQuit {
				assert.Equal(t, "set", f.store.Read()["flag"])
				assert.NotEmpty(t, f.messenger.sent)
			}
			f.signals = append(f.signals, s)
		},
		Rand:   func() float64 { return f.roll },
		Logger: zerolog.Nop(),
	})
	f.d.Bind(nil, &stubHooks{f: f})
	return f
}

type stubHooks struct{ f *fixture }

func (s *stubHooks) Register(string, state.HookDescriptor) (bool, error) { return true, nil }
func (s *stubHooks) Unregister(string, string)                          {}
func (s *stubHooks) Match(context.Context, *chat.Message, config.GuildConfig) bool {
	return s.f.hookHit
}

func guildMsg(text string) *chat.Message {
	return &chat.Message{ID: "m", ChannelID: "c", GuildID: "g", AuthorID: "u", AuthorTag: "user#1", Content: text, Public: true}
}

func TestPrefixedCommandParsing(t *testing.T) {
	f := newFixture(t)

	f.d.HandleMessage(context.Background(), guildMsg("m! ECHO hi   there"))

	require.Len(t, f.calls["echo"], 1)
	assert.Equal(t, []string{"hi", "there"}, f.calls["echo"][0])
	require.Len(t, f.messenger.sent, 1)
	assert.Equal(t, sent{to: "c", text: "hi there"}, f.messenger.sent[0])
}

func TestBarePrefixIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.d.HandleMessage(context.Background(), guildMsg("m!   "))
	assert.Empty(t, f.messenger.sent)
}

func TestUnknownCommandFallback(t *testing.T) {
	f := newFixture(t)

	assert.NotPanics(t, func() {
		f.d.HandleMessage(context.Background(), guildMsg("m!nothing"))
	})
	require.Len(t, f.messenger.sent, 1)
	assert.Equal(t, UnknownCommandText, f.messenger.sent[0].text)
}

func TestFaultsAreContained(t *testing.T) {
	f := newFixture(t)

	assert.NotPanics(t, func() {
		f.d.HandleMessage(context.Background(), guildMsg("m!boom now"))
		f.d.HandleMessage(context.Background(), guildMsg("m!fail"))
	})
	f.d.HandleMessage(context.Background(), guildMsg("m!echo still alive"))

	require.Len(t, f.messenger.sent, 3)
	assert.Contains(t, f.messenger.sent[0].text, "`boom now` failed")
	assert.Contains(t, f.messenger.sent[1].text, "`fail` failed")
	assert.Equal(t, "still alive", f.messenger.sent[2].text)
}

func TestPrivateAndNonPublicGoDirect(t *testing.T) {
	f := newFixture(t)

	f.d.HandleMessage(context.Background(), guildMsg("m!secret"))
	dm := &chat.Message{ID: "m2", ChannelID: "dm", AuthorID: "u", Content: "m!echo hey", Public: false}
	f.d.HandleMessage(context.Background(), dm)

	require.Len(t, f.messenger.sent, 2)
	assert.Equal(t, sent{to: "u", direct: true, text: "psst"}, f.messenger.sent[0])
	assert.Equal(t, sent{to: "u", direct: true, text: "hey"}, f.messenger.sent[1])
}

func TestMemoryIsMerged(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.MergeDurable(map[string]any{"users": map[string]any{"u": map[string]any{"other": 1}}}))

	f.d.HandleMessage(context.Background(), guildMsg("m!remember milk"))
	f.d.HandleMessage(context.Background(), guildMsg("m!badmem"))

	u, ok := f.store.Scope(state.Users, "u")
	require.True(t, ok)
	assert.Equal(t, "milk", u["note"])
	assert.Equal(t, 1.0, u["other"])
}

func TestSignalsRunAfterEffects(t *testing.T) {
	f := newFixture(t)

	f.d.HandleMessage(context.Background(), guildMsg("m!bye"))

	assert.Equal(t, []command.Signal{command.SignalQuit}, f.signals)
}

func TestSelfAndBotsAreIgnored(t *testing.T) {
	f := newFixture(t)

	self := guildMsg("m!echo me")
	self.AuthorID = "bot"
	f.d.HandleMessage(context.Background(), self)

	other := guildMsg("m!echo beep")
	other.AuthorBot = true
	f.d.HandleMessage(context.Background(), other)

	assert.Empty(t, f.calls["echo"])
}

func TestBotsAllowedByOverride(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetScopeValue(state.Guilds, "g", state.KeyConfigOverride, map[string]any{"ignore_bots": false, "prefix": "!"}))

	other := guildMsg("!echo beep")
	other.AuthorBot = true
	f.d.HandleMessage(context.Background(), other)

	assert.Len(t, f.calls["echo"], 1)
}

func TestBrokenOverrideFallsBackToDefaults(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetScopeValue(state.Guilds, "g", state.KeyConfigOverride, map[string]any{"prefix": 5}))

	assert.Equal(t, "m!", f.d.GuildConfig("g").Prefix)
}

func TestRandomTrigger(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetScopeValue(state.Guilds, "g", state.KeyConfigOverride, map[string]any{
		"random_markov":          true,
		"markov_min_messages":    2,
		"markov_chance":          10,
		"markov_chance_increase": 5,
	}))
	say := func() { f.d.HandleMessage(context.Background(), guildMsg("just chatting")) }

	say()
	say()
	since, chance, ok := f.d.PassiveState("g")
	require.True(t, ok)
	assert.Equal(t, 2, since)
	assert.Equal(t, 10.0, chance)

	f.roll = 0.99
	say()
	_, chance, _ = f.d.PassiveState("g")
	assert.Equal(t, 15.0, chance)
	assert.Empty(t, f.calls["markov"])

	f.roll = 0.15
	say()
	since, chance, _ = f.d.PassiveState("g")
	assert.Equal(t, 0, since)
	assert.Equal(t, 10.0, chance)
	require.Len(t, f.calls["markov"], 1)
	assert.Equal(t, []string{"just", "chatting"}, f.calls["markov"][0])
}

func TestHookMatchSkipsRandomTrigger(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetScopeValue(state.Guilds, "g", state.KeyConfigOverride, map[string]any{"random_markov": true}))
	f.hookHit = true

	f.d.HandleMessage(context.Background(), guildMsg("hello"))

	_, _, ok := f.d.PassiveState("g")
	assert.False(t, ok)
}

func TestTrainingFeed(t *testing.T) {
	f := newFixture(t)
	f.hookHit = true

	f.d.HandleMessage(context.Background(), guildMsg("<@!bot> learn   this"))
	bot := guildMsg("not me")
	bot.AuthorBot = true
	require.NoError(t, f.store.SetScopeValue(state.Guilds, "g", state.KeyConfigOverride, map[string]any{"ignore_bots": false}))
	f.d.HandleMessage(context.Background(), bot)
	f.d.HandleMessage(context.Background(), guildMsg("m!echo commands are not fed"))

	out := f.corpus.Generate("g", []string{"learn"}, 10, 100)
	assert.Equal(t, "learn this", out)
}

func TestCoreFacade(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.d.IsOwner("owner"))
	assert.False(t, f.d.IsOwner(""))
	assert.True(t, f.d.HasCommand("ECHO"))
	assert.Contains(t, f.d.Commands(), "echo")
	assert.Equal(t, "Flake", f.d.SelfName(context.Background(), "g"))
	assert.Equal(t, "stranger", f.d.DisplayName(context.Background(), "stranger", "g"))

	_, err := f.d.SetPersistentTimeout(context.Background(), state.Target{Kind: state.TargetInternal, Name: "x"}, 0, nil)
	assert.Error(t, err, "no scheduler bound")

	require.NoError(t, f.d.SetPresence(context.Background(), state.Presence{Text: "chess", Kind: "PLAYING"}))
	assert.Equal(t, []string{"PLAYING:chess"}, f.messenger.presence)
	assert.Equal(t, "chess", f.store.Presence().Text)

	f.d.CallCommand(context.Background(), "tick", []string{"a"}, guildMsg(""))
	assert.Equal(t, [][]string{{"a"}}, f.calls["tick"])
}
