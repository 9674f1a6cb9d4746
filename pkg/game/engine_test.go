package game

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/fablebot/pkg/commandqueue"
	"github.com/harun/fablebot/pkg/protocol"
	"github.com/harun/fablebot/pkg/reply"
	"github.com/harun/fablebot/pkg/speech"
	"github.com/harun/fablebot/pkg/transcript"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]transcript.Message
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]transcript.Message)}
}

func (s *memStore) Load(_ context.Context, sessionID string) (*transcript.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transcript.New(sessionID, s.data[sessionID]...), nil
}

func (s *memStore) Save(_ context.Context, sessionID string, t *transcript.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = t.Current()
	return nil
}

func (s *memStore) messages(sessionID string) []transcript.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transcript.Message(nil), s.data[sessionID]...)
}

// scriptedGenerator answers with canned replies and records what it was shown
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	seen    [][]transcript.Message
	err     error
}

func (g *scriptedGenerator) Generate(_ context.Context, messages []transcript.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = append(g.seen, messages)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return `[{"type":"text","voice":"narrator","role":"Narrator","text":"Nothing happens."}]`, nil
	}
	next := g.replies[0]
	g.replies = g.replies[1:]
	return next, nil
}

func (g *scriptedGenerator) calls() [][]transcript.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen
}

type recordingReplier struct {
	mu         sync.Mutex
	deliveries []reply.Delivery
	fallbacks  []string
}

func (r *recordingReplier) Deliver(_ context.Context, d reply.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, d)
	return nil
}

func (r *recordingReplier) SendFallback(_ context.Context, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, text)
	return nil
}

type fixedRoller struct {
	value int
}

func (f fixedRoller) Roll(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = f.value
	}
	return out
}

type fileAudio struct {
	content string
	path    string
}

func (a *fileAudio) Download(_ context.Context, destPath string) error {
	a.path = destPath
	return os.WriteFile(destPath, []byte(a.content), 0o644)
}

type fileTranscriber struct {
	text string
}

func (f fileTranscriber) Transcribe(_ context.Context, audioPath string) (string, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return "", err
	}
	return f.text, nil
}

type fixture struct {
	engine  *Engine
	store   *memStore
	gen     *scriptedGenerator
	replier *recordingReplier
}

func newFixture(t *testing.T, replies ...string) *fixture {
	t.Helper()
	return newFixtureWithFallback(t, DefaultFallback, replies...)
}

func newFixtureWithFallback(t *testing.T, fallback string, replies ...string) *fixture {
	t.Helper()

	queue := commandqueue.New()
	t.Cleanup(func() { _ = queue.Close() })

	f := &fixture{
		store:   newMemStore(),
		gen:     &scriptedGenerator{replies: replies},
		replier: &recordingReplier{},
	}

	engine, err := New(Config{
		Store:       f.store,
		Generator:   f.gen,
		Transcriber: fileTranscriber{text: "I open the door"},
		Replier:     f.replier,
		Queue:       queue,
		Dice:        fixedRoller{value: 12},
		Fallback:    fallback,
		TempDir:     t.TempDir(),
	})
	require.NoError(t, err)
	f.engine = engine
	return f
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestDiceReport(t *testing.T) {
	assert.Equal(t, "The player rolled a d20: 15.", DiceReport([]int{15}))
	assert.Equal(t, "The player rolled 3 d20 dice: 4, 15, 9.", DiceReport([]int{4, 15, 9}))
}

func TestSeededRollerStaysInRange(t *testing.T) {
	r := NewSeededRoller(42)
	for _, v := range r.Roll(500) {
		assert.GreaterOrEqual(t, v, protocol.MinRoll)
		assert.LessOrEqual(t, v, protocol.MaxRoll)
	}
	assert.Equal(t, NewSeededRoller(7).Roll(10), NewSeededRoller(7).Roll(10))
}

func TestHandleTextRendersDiceOutcome(t *testing.T) {
	f := newFixture(t, `[{"type":"dice","role":"Hero","skill":"Melee","base":2,"result":15}]`)

	result, err := f.engine.HandleText(context.Background(), Inbound{SessionID: "1", MessageID: 10, Text: "I attack the goblin"})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, result.FinalState)
	assert.Equal(t, 1, result.Depth)

	require.Len(t, f.replier.deliveries, 1)
	d := f.replier.deliveries[0]
	assert.Equal(t, "1", d.SessionID)
	assert.Equal(t, 10, d.MessageID)
	for _, want := range []string{"Hero", "Melee", "15", "17"} {
		assert.Contains(t, d.Reply.Text, want)
	}
	require.Len(t, d.Reply.VoiceJobs, 1)
	assert.Equal(t, protocol.NarratorVoice, d.Reply.VoiceJobs[0].VoiceID)
	assert.Contains(t, d.Reply.VoiceJobs[0].Text, "fifteen")
	assert.Contains(t, d.Reply.VoiceJobs[0].Text, "2")
	assert.Contains(t, d.Reply.VoiceJobs[0].Text, "17")

	msgs := f.store.messages("1")
	require.Len(t, msgs, 2)
	assert.Equal(t, transcript.RoleUser, msgs[0].Role)
	assert.Equal(t, "I attack the goblin", msgs[0].Content)
	assert.Equal(t, transcript.RoleAssistant, msgs[1].Role)
}

func TestRollDiceActionsAreResolvedTogether(t *testing.T) {
	f := newFixture(t,
		`[{"type":"action","action":"ROLL_DICE"},{"type":"action","action":"ROLL_DICE"}]`,
		`[{"type":"text","voice":"narrator","role":"Narrator","text":"The lock gives way."}]`,
	)

	result, err := f.engine.HandleText(context.Background(), Inbound{SessionID: "1", MessageID: 1, Text: "I pick the lock"})
	require.NoError(t, err)
	assert.Equal(t, []int{12, 12}, result.DiceRolled)
	assert.Equal(t, 2, result.Depth)

	msgs := f.store.messages("1")
	var reports []transcript.Message
	for _, m := range msgs {
		if m.Role == transcript.RoleSystem {
			reports = append(reports, m)
		}
	}
	require.Len(t, reports, 1)
	assert.Equal(t, "The player rolled 2 d20 dice: 12, 12.", reports[0].Content)

	// The second generation sees the report followed by the continue prompt
	calls := f.gen.calls()
	require.Len(t, calls, 2)
	last := calls[1]
	assert.Equal(t, ContinuePrompt, last[len(last)-1].Content)
	assert.Equal(t, transcript.RoleUser, last[len(last)-1].Role)

	// The action-only reply delivers nothing
	require.Len(t, f.replier.deliveries, 1)
	assert.Contains(t, f.replier.deliveries[0].Reply.Text, "The lock gives way.")
}

func TestProtocolViolationAbortsWithFallback(t *testing.T) {
	f := newFixture(t, "not json")

	result, err := f.engine.HandleText(context.Background(), Inbound{SessionID: "1", MessageID: 1, Text: "hello"})
	var violation *protocol.ProtocolViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, StateIdle, result.FinalState)

	assert.Empty(t, f.replier.deliveries)
	assert.Equal(t, []string{DefaultFallback}, f.replier.fallbacks)

	// The bad reply stays in the transcript
	msgs := f.store.messages("1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "not json", msgs[1].Content)
}

func TestProtocolViolationWithoutFallbackDeliversNothing(t *testing.T) {
	f := newFixtureWithFallback(t, "", `[{"type":"text","voice":"narrator"`)

	_, err := f.engine.HandleText(context.Background(), Inbound{SessionID: "1", MessageID: 1, Text: "hello"})
	var violation *protocol.ProtocolViolation
	require.ErrorAs(t, err, &violation)

	assert.Empty(t, f.replier.deliveries)
	assert.Empty(t, f.replier.fallbacks)
}

func TestStartNewGameResetsToSeed(t *testing.T) {
	f := newFixture(t,
		`[{"type":"action","action":"START_NEW_GAME"}]`,
		`[{"type":"text","voice":"narrator","role":"Narrator","text":"You wake in a tavern."}]`,
	)
	require.NoError(t, f.store.Save(context.Background(), "1", transcript.New("1",
		transcript.Message{Role: transcript.RoleUser, Content: "old move"},
		transcript.Message{Role: transcript.RoleAssistant, Content: "old reply"},
	)))

	result, err := f.engine.HandleText(context.Background(), Inbound{SessionID: "1", MessageID: 5, Text: "yes, start over"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Resets)

	calls := f.gen.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, DefaultSeed(), calls[1])

	msgs := f.store.messages("1")
	require.Len(t, msgs, 3)
	assert.Equal(t, DefaultSeed(), msgs[:2])
}

func TestHandleStartBeginsFromSeed(t *testing.T) {
	f := newFixture(t, `[{"type":"text","voice":"narrator","role":"Narrator","text":"A storm rolls in."}]`)
	require.NoError(t, f.store.Save(context.Background(), "1", transcript.New("1",
		transcript.Message{Role: transcript.RoleUser, Content: "old move"},
	)))

	result, err := f.engine.HandleStart(context.Background(), Inbound{SessionID: "1", MessageID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Resets)

	calls := f.gen.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, DefaultSeed(), calls[0])
	require.Len(t, f.replier.deliveries, 1)
}

func TestLoopBudgetExceeded(t *testing.T) {
	rollForever := make([]string, 20)
	for i := range rollForever {
		rollForever[i] = `[{"type":"action","action":"ROLL_DICE"}]`
	}
	f := newFixture(t, rollForever...)

	result, err := f.engine.HandleText(context.Background(), Inbound{SessionID: "1", MessageID: 1, Text: "roll"})
	require.ErrorIs(t, err, ErrLoopBudgetExceeded)
	assert.Equal(t, DefaultMaxDepth, result.Depth)
	assert.Len(t, f.gen.calls(), DefaultMaxDepth)
	assert.Equal(t, []string{DefaultFallback}, f.replier.fallbacks)
}

func TestGenerationFailureSendsFallback(t *testing.T) {
	f := newFixture(t)
	f.gen.err = errors.New("backend down")

	_, err := f.engine.HandleText(context.Background(), Inbound{SessionID: "1", MessageID: 1, Text: "hello"})
	require.Error(t, err)
	assert.Empty(t, f.replier.deliveries)
	assert.Equal(t, []string{DefaultFallback}, f.replier.fallbacks)

	// The player's message is kept
	msgs := f.store.messages("1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestHandleVoiceRemovesDownload(t *testing.T) {
	f := newFixture(t)
	audio := &fileAudio{content: "ogg"}

	_, err := f.engine.HandleVoice(context.Background(), InboundVoice{SessionID: "1", MessageID: 3, Audio: audio})
	require.NoError(t, err)

	require.NotEmpty(t, audio.path)
	assert.Contains(t, audio.path, "1_3_voice.ogg")
	_, statErr := os.Stat(audio.path)
	assert.True(t, os.IsNotExist(statErr))

	msgs := f.store.messages("1")
	require.NotEmpty(t, msgs)
	assert.Equal(t, "I open the door", msgs[0].Content)
}

func TestHandleVoiceEmptyTranscription(t *testing.T) {
	f := newFixture(t)
	f.engine.transcriber = fileTranscriber{text: "   "}

	_, err := f.engine.HandleVoice(context.Background(), InboundVoice{SessionID: "1", MessageID: 3, Audio: &fileAudio{content: "ogg"}})
	var failed *speech.TranscriptionFailed
	require.ErrorAs(t, err, &failed)
	assert.Empty(t, f.gen.calls())
	assert.Empty(t, f.store.messages("1"))
	assert.Equal(t, []string{DefaultFallback}, f.replier.fallbacks)
}

// blockingGenerator tracks how many generations overlap
type blockingGenerator struct {
	running, peak int32
}

func (g *blockingGenerator) Generate(_ context.Context, _ []transcript.Message) (string, error) {
	n := atomic.AddInt32(&g.running, 1)
	defer atomic.AddInt32(&g.running, -1)
	for {
		p := atomic.LoadInt32(&g.peak)
		if n <= p || atomic.CompareAndSwapInt32(&g.peak, p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return `[{"type":"text","voice":"narrator","role":"Narrator","text":"ok"}]`, nil
}

func TestSameSessionTurnsAreSerialized(t *testing.T) {
	f := newFixture(t)
	gen := &blockingGenerator{}
	f.engine.generator = gen

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := f.engine.HandleText(context.Background(), Inbound{SessionID: "1", MessageID: id, Text: fmt.Sprintf("move %d", id)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&gen.peak))
	assert.Len(t, f.store.messages("1"), 10)
}

func TestRedeliveredMessageRunsOnce(t *testing.T) {
	f := newFixture(t)

	in := Inbound{SessionID: "1", MessageID: 9, Text: "hello"}
	_, err := f.engine.HandleText(context.Background(), in)
	require.NoError(t, err)
	_, err = f.engine.HandleText(context.Background(), in)
	require.NoError(t, err)

	assert.Len(t, f.gen.calls(), 1)
	assert.Len(t, f.store.messages("1"), 2)
}
