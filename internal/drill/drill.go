package drill

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	constants "github.com/CodeAndHammer/lockcards/internal/constants"
	ledger "github.com/CodeAndHammer/lockcards/internal/ledger"
	models "github.com/CodeAndHammer/lockcards/internal/models"
	speech "github.com/CodeAndHammer/lockcards/internal/speech"
	util "github.com/CodeAndHammer/lockcards/internal/util"
	words "github.com/CodeAndHammer/lockcards/internal/words"
)

// ConfirmFunc asks the user a yes/no question.
type ConfirmFunc func(prompt string) bool

type Options struct {
	Languages  [2]models.Language
	LockCounts []int
	Store      ledger.Store
	Source     words.Source
	Speaker    speech.Speaker
	Intn       IntnFunc
}

// Drill is the flashcard state machine of one client: the active language's word list,
// its lock ledger and the card being shown. All methods are safe for concurrent use.
type Drill struct {
	mu sync.Mutex

	languages  [2]models.Language
	lockCounts []int
	store      ledger.Store
	source     words.Source
	speaker    speech.Speaker
	intn       IntnFunc

	state   models.SessionState
	ledger  models.LockLedger
	loaded  bool
	loadErr error

	lastAccess time.Time
}

func New(opts Options) *Drill {
	intn := opts.Intn
	if intn == nil {
		intn = CryptoIntn
	}
	return &Drill{
		languages:  opts.Languages,
		lockCounts: slices.Clone(opts.LockCounts),
		store:      opts.Store,
		source:     opts.Source,
		speaker:    opts.Speaker,
		intn:       intn,
		state:      models.SessionState{Language: opts.Languages[0]},
		ledger:     models.LockLedger{},
		lastAccess: time.Now(),
	}
}

// Start loads the persisted active language, falling back to the first configured one.
func (d *Drill) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := ledger.LoadLanguage(ctx, d.store, d.languages[0].ID, d.languages[1].ID)
	return d.loadLocked(ctx, d.languageByID(id))
}

func (d *Drill) LoadLanguage(ctx context.Context, lang models.Language) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadLocked(ctx, lang)
}

// SwitchLanguage cycles to the other configured language and reloads its words and ledger.
func (d *Drill) SwitchLanguage(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.languages[0]
	if d.state.Language.ID == d.languages[0].ID {
		next = d.languages[1]
	}
	if err := ledger.SaveLanguage(ctx, d.store, next.ID); err != nil {
		util.LogWarnCtx(ctx, "Failed to persist language selection: %v", err)
	}
	util.LogInfoCtx(ctx, "Switching language from %s to %s", d.state.Language.ID, next.ID)
	return d.loadLocked(ctx, next)
}

// Lock marks the current word learned with the given threshold, then advances.
func (d *Drill) Lock(ctx context.Context, lockCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return ErrNotLoaded
	}
	if d.state.CurrentWordKey == "" {
		return ErrNoCurrentWord
	}
	if lockCount <= 0 || !slices.Contains(d.lockCounts, lockCount) {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, lockCount)
	}

	d.ledger[d.state.CurrentWordKey] = models.LockState{
		Learned:   true,
		SkipCount: 0,
		LockCount: lockCount,
	}
	util.LogInfoCtx(ctx, "Locked %q for %d cards (%s)", d.state.CurrentWordKey, lockCount, d.state.Language.ID)
	saveErr := d.saveLocked(ctx)

	if err := d.advanceLocked(ctx); err != nil {
		return err
	}
	return saveErr
}

// Advance ticks every pending lock by one card and shows the next word. It returns
// ErrEmptyPool when every word is locked.
func (d *Drill) Advance(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return ErrNotLoaded
	}
	return d.advanceLocked(ctx)
}

// Reset clears the active language's ledger after two confirmations. It reports whether
// the reset happened.
func (d *Drill) Reset(ctx context.Context, confirm ConfirmFunc) (bool, error) {
	if confirm == nil || !confirm(constants.ResetFirstPrompt) {
		return false, nil
	}
	if !confirm(constants.ResetSecondPrompt) {
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ledger.Reset(ctx, d.store, d.state.Language.ID); err != nil {
		return false, err
	}
	d.ledger = models.LockLedger{}
	if d.loaded {
		if err := d.showNextLocked(ctx, d.state.CurrentWordKey); err != nil && !errors.Is(err, ErrEmptyPool) {
			return true, err
		}
	}
	return true, nil
}

// ToggleMeaning flips between headword and meaning. Returning to the headword speaks it again.
func (d *Drill) ToggleMeaning(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, err := d.currentLocked()
	if err != nil {
		return err
	}
	if d.state.ShowingMeaning {
		d.speakLocked(ctx, entry.Key)
	}
	d.state.ShowingMeaning = !d.state.ShowingMeaning
	return nil
}

func (d *Drill) Replay(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, err := d.currentLocked()
	if err != nil {
		return err
	}
	d.speakLocked(ctx, entry.Key)
	return nil
}

func (d *Drill) SpeakSentence(ctx context.Context, index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, err := d.currentLocked()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(entry.ExampleSentences) {
		return ErrInvalidSentence
	}
	d.speakLocked(ctx, entry.ExampleSentences[index])
	return nil
}

func (d *Drill) Progress() models.Progress {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.progressLocked()
}

func (d *Drill) View() models.CardView {
	d.mu.Lock()
	defer d.mu.Unlock()

	view := models.CardView{
		Language:       d.state.Language,
		ShowingMeaning: d.state.ShowingMeaning,
		Progress:       d.progressLocked(),
		Loaded:         d.loaded,
		AllLocked:      d.loaded && d.state.CurrentWordKey == "",
		LockCounts:     slices.Clone(d.lockCounts),
	}
	if d.loadErr != nil {
		view.LoadError = d.loadErr.Error()
	}
	if entry, err := d.currentLocked(); err == nil {
		view.Word = &entry
		view.Sentences = HighlightSentences(entry)
	}
	view.ProgressText = ProgressText(view.Progress)
	return view
}

// EligibleWords returns the words currently in the draw pool.
func (d *Drill) EligibleWords() []models.WordEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return EligiblePool(d.state.Words, d.ledger)
}

// Ledger returns a copy of the active language's lock ledger.
func (d *Drill) Ledger() models.LockLedger {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.ledger)
}

func (d *Drill) Language() models.Language {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Language
}

func (d *Drill) CurrentKey() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.CurrentWordKey
}

func (d *Drill) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *Drill) Touch() {
	d.mu.Lock()
	d.lastAccess = time.Now()
	d.mu.Unlock()
}

func (d *Drill) LastAccess() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastAccess
}

func ProgressText(p models.Progress) string {
	if p.Index == 0 {
		return constants.NoActiveWordMessage
	}
	return fmt.Sprintf("Word %d of %d | Learned: %d", p.Index, p.Total, p.Locked)
}

func (d *Drill) loadLocked(ctx context.Context, lang models.Language) error {
	d.loaded = false
	d.loadErr = nil
	d.state = models.SessionState{Language: lang}
	d.ledger = models.LockLedger{}

	entries, err := d.source.Load(ctx, lang)
	if err != nil {
		d.loadErr = &LoadError{Language: lang.ID, Err: err}
		util.LogWarnCtx(ctx, "Failed to load word data for %s: %v", lang.ID, err)
		return d.loadErr
	}

	d.state.Words = entries
	d.ledger = ledger.Load(ctx, d.store, lang.ID)
	d.loaded = true
	util.LogInfoCtx(ctx, "Loaded %d %s words, %d locked", len(entries), lang.ID, d.ledger.LockedCount())

	if err := d.showNextLocked(ctx, ""); err != nil && !errors.Is(err, ErrEmptyPool) {
		return err
	}
	return nil
}

func (d *Drill) advanceLocked(ctx context.Context) error {
	for key, state := range d.ledger {
		if state.Locked() {
			state.SkipCount++
			d.ledger[key] = state
		}
	}
	saveErr := d.saveLocked(ctx)

	if err := d.showNextLocked(ctx, d.state.CurrentWordKey); err != nil {
		return err
	}
	return saveErr
}

func (d *Drill) showNextLocked(ctx context.Context, excludeKey string) error {
	entry, err := PickNext(d.state.Words, d.ledger, excludeKey, d.intn)
	d.state.ShowingMeaning = false
	if err != nil {
		d.state.CurrentWordKey = ""
		util.LogInfoCtx(ctx, "All %d %s words locked", len(d.state.Words), d.state.Language.ID)
		return err
	}
	d.state.CurrentWordKey = entry.Key
	d.speakLocked(ctx, entry.Key)
	return nil
}

func (d *Drill) currentLocked() (models.WordEntry, error) {
	if !d.loaded {
		return models.WordEntry{}, ErrNotLoaded
	}
	if d.state.CurrentWordKey == "" {
		return models.WordEntry{}, ErrNoCurrentWord
	}
	entry, ok := lo.Find(d.state.Words, func(w models.WordEntry) bool {
		return w.Key == d.state.CurrentWordKey
	})
	if !ok {
		return models.WordEntry{}, ErrNoCurrentWord
	}
	return entry, nil
}

func (d *Drill) progressLocked() models.Progress {
	_, index, _ := lo.FindIndexOf(d.state.Words, func(w models.WordEntry) bool {
		return d.state.CurrentWordKey != "" && w.Key == d.state.CurrentWordKey
	})
	return models.Progress{
		Index:  index + 1,
		Total:  len(d.state.Words),
		Locked: d.ledger.LockedCount(),
	}
}

func (d *Drill) saveLocked(ctx context.Context) error {
	if err := ledger.Save(ctx, d.store, d.state.Language.ID, d.ledger); err != nil {
		util.LogWarnCtx(ctx, "Failed to persist ledger: %v", err)
		return err
	}
	return nil
}

func (d *Drill) speakLocked(ctx context.Context, text string) {
	if d.speaker == nil || text == "" {
		return
	}
	u := speech.Utterance{Text: text, Lang: d.state.Language.SpeechTag, Rate: d.state.Language.SpeechRate}
	if err := d.speaker.Speak(ctx, u); err != nil {
		util.LogWarnCtx(ctx, "Failed to speak %q: %v", text, err)
	}
}

func (d *Drill) languageByID(id string) models.Language {
	for _, lang := range d.languages {
		if lang.ID == id {
			return lang
		}
	}
	return d.languages[0]
}
