package drill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	constants "github.com/CodeAndHammer/lockcards/internal/constants"
	ledger "github.com/CodeAndHammer/lockcards/internal/ledger"
	models "github.com/CodeAndHammer/lockcards/internal/models"
	speech "github.com/CodeAndHammer/lockcards/internal/speech"
)

var (
	thai     = models.Language{ID: "th", Name: "Thai", SpeechTag: "th-TH", SpeechRate: 0.6, Source: "words-th.json"}
	japanese = models.Language{ID: "ja", Name: "Japanese", SpeechTag: "ja-JP", SpeechRate: 0.8, Source: "words-ja.json"}
)

type fakeSource struct {
	words map[string][]models.WordEntry
	err   error
	calls int
}

func (f *fakeSource) Load(_ context.Context, lang models.Language) ([]models.WordEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.words[lang.ID], nil
}

type testDrill struct {
	*Drill
	store  *ledger.MemoryStore
	relay  *speech.Relay
	source *fakeSource
}

func newTestDrill(t *testing.T, thaiWords []models.WordEntry, intn IntnFunc) *testDrill {
	t.Helper()
	store := ledger.NewMemoryStore()
	relay := speech.NewRelay()
	source := &fakeSource{words: map[string][]models.WordEntry{
		"th": thaiWords,
		"ja": entries("犬", "猫"),
	}}
	d := New(Options{
		Languages:  [2]models.Language{thai, japanese},
		LockCounts: []int{1, 2, 3, 5},
		Store:      store,
		Source:     source,
		Speaker:    relay,
		Intn:       intn,
	})
	return &testDrill{Drill: d, store: store, relay: relay, source: source}
}

func TestStart_ShowsAndSpeaksFirstCard(t *testing.T) {
	d := newTestDrill(t, entries("A", "B", "C"), sequence(1))
	require.NoError(t, d.Start(context.Background()))

	assert.True(t, d.Loaded())
	assert.Equal(t, "B", d.CurrentKey())
	u, ok := d.relay.Take()
	require.True(t, ok)
	assert.Equal(t, speech.Utterance{Text: "B", Lang: "th-TH", Rate: 0.6}, u)

	view := d.View()
	assert.Equal(t, "Word 2 of 3 | Learned: 0", view.ProgressText)
	assert.False(t, view.AllLocked)
	require.NotNil(t, view.Word)
	assert.Equal(t, "B", view.Word.Key)
}

func TestAdvance_IncrementsOnlyLockedWords(t *testing.T) {
	ctx := context.Background()
	d := newTestDrill(t, entries("A", "B", "C", "D"), sequence(3, 1))
	require.NoError(t, ledger.Save(ctx, d.store, "th", models.LockLedger{
		"A": {Learned: true, SkipCount: 0, LockCount: 3},
		"B": {Learned: true, SkipCount: 3, LockCount: 3},
		"C": {Learned: false, SkipCount: 1, LockCount: 2},
	}))
	require.NoError(t, d.Start(ctx))

	require.NoError(t, d.Advance(ctx))

	got := d.Ledger()
	assert.Equal(t, 1, got["A"].SkipCount)
	assert.Equal(t, 3, got["B"].SkipCount)
	assert.Equal(t, 1, got["C"].SkipCount)
	assert.NotContains(t, got, "D")

	assert.Equal(t, got, ledger.Load(ctx, d.store, "th"), "advance must persist")
}

func TestLock_ResetsCountersRegardlessOfPriorState(t *testing.T) {
	ctx := context.Background()
	d := newTestDrill(t, entries("A", "B", "C"), sequence(1, 0))
	require.NoError(t, ledger.Save(ctx, d.store, "th", models.LockLedger{
		"B": {Learned: true, SkipCount: 9, LockCount: 2},
	}))
	require.NoError(t, d.Start(ctx))
	require.Equal(t, "B", d.CurrentKey())

	require.NoError(t, d.Lock(ctx, 5))

	// The lock's own advance is the first tick.
	assert.Equal(t, models.LockState{Learned: true, SkipCount: 1, LockCount: 5}, d.Ledger()["B"])
	assert.Equal(t, d.Ledger(), ledger.Load(ctx, d.store, "th"))
	assert.NotEqual(t, "B", d.CurrentKey())
}

func TestLock_Guards(t *testing.T) {
	ctx := context.Background()
	d := newTestDrill(t, entries("A", "B"), sequence(0))

	assert.ErrorIs(t, d.Lock(ctx, 2), ErrNotLoaded)
	assert.ErrorIs(t, d.Advance(ctx), ErrNotLoaded)
	assert.ErrorIs(t, d.ToggleMeaning(ctx), ErrNotLoaded)
	assert.ErrorIs(t, d.Replay(ctx), ErrNotLoaded)

	require.NoError(t, d.Start(ctx))
	assert.ErrorIs(t, d.Lock(ctx, 4), ErrInvalidThreshold)
	assert.ErrorIs(t, d.Lock(ctx, 0), ErrInvalidThreshold)
	assert.Empty(t, d.Ledger())
}

func TestScenario_LockedWordReturnsAfterThreshold(t *testing.T) {
	ctx := context.Background()
	d := newTestDrill(t, entries("A", "B", "C"), sequence(1, 0, 2, 0, 1))
	require.NoError(t, d.Start(ctx))
	require.Equal(t, "B", d.CurrentKey())

	require.NoError(t, d.Lock(ctx, 2))
	assert.ElementsMatch(t, []string{"A", "C"}, keysOf(d.EligibleWords()))

	require.NoError(t, d.Advance(ctx))
	assert.Equal(t, 2, d.Ledger()["B"].SkipCount)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, keysOf(d.EligibleWords()))

	require.NoError(t, d.Advance(ctx))
	assert.Equal(t, 2, d.Ledger()["B"].SkipCount, "eligible-again words are not ticked")
	assert.True(t, d.Ledger()["B"].Learned)
}

func TestScenario_SingleWordEmptyPool(t *testing.T) {
	ctx := context.Background()
	d := newTestDrill(t, entries("A"), nil)
	require.NoError(t, d.Start(ctx))
	require.Equal(t, "A", d.CurrentKey())

	err := d.Lock(ctx, 5)
	assert.ErrorIs(t, err, ErrEmptyPool)
	assert.Equal(t, "", d.CurrentKey())
	assert.True(t, d.View().AllLocked)
	assert.Nil(t, d.View().Word)
	assert.Equal(t, constants.NoActiveWordMessage, d.View().ProgressText)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, d.Advance(ctx), ErrEmptyPool)
		assert.Equal(t, "", d.CurrentKey())
	}

	require.NoError(t, d.Advance(ctx))
	assert.Equal(t, "A", d.CurrentKey())
	assert.Equal(t, 5, d.Ledger()["A"].SkipCount)
	assert.False(t, d.View().AllLocked)
}

func TestAdvance_NeverRepeatsConsecutively(t *testing.T) {
	ctx := context.Background()
	d := newTestDrill(t, entries("A", "B", "C"), nil)
	require.NoError(t, d.Start(ctx))

	prev := d.CurrentKey()
	for i := 0; i < 100; i++ {
		require.NoError(t, d.Advance(ctx))
		require.NotEqual(t, prev, d.CurrentKey())
		prev = d.CurrentKey()
	}
}

func TestReset_RequiresTwoConfirmations(t *testing.T) {
	ctx := context.Background()
	d := newTestDrill(t, entries("A", "B", "C"), sequence(0, 1))
	require.NoError(t, ledger.Save(ctx, d.store, "ja", models.LockLedger{"犬": {Learned: true, LockCount: 3}}))
	require.NoError(t, d.Start(ctx))
	require.NoError(t, d.Lock(ctx, 3))
	require.NotEmpty(t, d.Ledger())

	var prompts []string
	answers := []bool{true, false}
	done, err := d.Reset(ctx, func(prompt string) bool {
		prompts = append(prompts, prompt)
		return answers[len(prompts)-1]
	})
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, []string{constants.ResetFirstPrompt, constants.ResetSecondPrompt}, prompts)
	assert.NotEmpty(t, d.Ledger())

	done, err = d.Reset(ctx, func(string) bool { return false })
	require.NoError(t, err)
	assert.False(t, done)

	done, err = d.Reset(ctx, nil)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = d.Reset(ctx, func(string) bool { return true })
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, d.Ledger())
	assert.Empty(t, ledger.Load(ctx, d.store, "th"))
	assert.Len(t, ledger.Load(ctx, d.store, "ja"), 1, "other languages are untouched")
	assert.NotEmpty(t, d.CurrentKey())
}

func TestLoadFailure_LeavesDrillIdle(t *testing.T) {
	ctx := context.Background()
	d := newTestDrill(t, entries("A"), nil)
	d.source.err = errors.New("connection refused")

	err := d.Start(ctx)
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "th", loadErr.Language)

	assert.False(t, d.Loaded())
	assert.ErrorIs(t, d.Advance(ctx), ErrNotLoaded)
	view := d.View()
	assert.Contains(t, view.LoadError, "connection refused")
	assert.False(t, view.AllLocked)
	assert.Equal(t, constants.NoActiveWordMessage, view.ProgressText)
}

func TestMalformedLedger_StartsEmpty(t *testing.T) {
	ctx := context.Background()
	d := newTestDrill(t, entries("A", "B"), nil)
	require.NoError(t, d.store.Set(ctx, ledger.Key("th"), "}}garbage"))

	require.NoError(t, d.Start(ctx))
	assert.Empty(t, d.Ledger())
	assert.Len(t, d.EligibleWords(), 2)
}

func TestSwitchLanguage_CyclesAndPersists(t *testing.T) {
	ctx := context.Background()
	d := newTestDrill(t, entries("A", "B"), sequence(0))
	require.NoError(t, ledger.Save(ctx, d.store, "ja", models.LockLedger{"犬": {Learned: true, LockCount: 3}}))
	require.NoError(t, d.Start(ctx))
	require.NoError(t, d.ToggleMeaning(ctx))

	require.NoError(t, d.SwitchLanguage(ctx))
	assert.Equal(t, "ja", d.Language().ID)
	assert.Equal(t, "猫", d.CurrentKey())
	assert.False(t, d.View().ShowingMeaning)
	assert.Len(t, d.Ledger(), 1)
	assert.Equal(t, "ja", ledger.LoadLanguage(ctx, d.store, "th", "ja"))

	u, ok := d.relay.Take()
	require.True(t, ok)
	assert.Equal(t, "ja-JP", u.Lang)

	require.NoError(t, d.SwitchLanguage(ctx))
	assert.Equal(t, "th", d.Language().ID)
	assert.Empty(t, d.Ledger())
}

func TestStart_UsesPersistedLanguage(t *testing.T) {
	ctx := context.Background()
	d := newTestDrill(t, entries("A"), nil)
	require.NoError(t, ledger.SaveLanguage(ctx, d.store, "ja"))

	require.NoError(t, d.Start(ctx))
	assert.Equal(t, "ja", d.Language().ID)
}

func TestToggleMeaning_SpeaksOnReturnToHeadword(t *testing.T) {
	ctx := context.Background()
	d := newTestDrill(t, entries("A", "B"), sequence(0))
	require.NoError(t, d.Start(ctx))
	d.relay.Take()

	require.NoError(t, d.ToggleMeaning(ctx))
	assert.True(t, d.View().ShowingMeaning)
	_, ok := d.relay.Take()
	assert.False(t, ok, "revealing the meaning is silent")

	require.NoError(t, d.ToggleMeaning(ctx))
	assert.False(t, d.View().ShowingMeaning)
	u, ok := d.relay.Take()
	require.True(t, ok)
	assert.Equal(t, "A", u.Text)
}

func TestReplayAndSpeakSentence(t *testing.T) {
	ctx := context.Background()
	words := []models.WordEntry{{
		Key:              "สวัสดี",
		Meaning:          "hello",
		ExampleSentences: []string{"สวัสดีครับ", "สวัสดีค่ะ"},
	}}
	d := newTestDrill(t, words, nil)
	require.NoError(t, d.Start(ctx))
	d.relay.Take()

	require.NoError(t, d.Replay(ctx))
	u, _ := d.relay.Take()
	assert.Equal(t, "สวัสดี", u.Text)

	require.NoError(t, d.SpeakSentence(ctx, 1))
	u, _ = d.relay.Take()
	assert.Equal(t, "สวัสดีค่ะ", u.Text)

	assert.ErrorIs(t, d.SpeakSentence(ctx, 2), ErrInvalidSentence)
	assert.ErrorIs(t, d.SpeakSentence(ctx, -1), ErrInvalidSentence)
}

func TestProgressText(t *testing.T) {
	assert.Equal(t, "Word 3 of 10 | Learned: 2", ProgressText(models.Progress{Index: 3, Total: 10, Locked: 2}))
	assert.Equal(t, constants.NoActiveWordMessage, ProgressText(models.Progress{Total: 10}))
}
