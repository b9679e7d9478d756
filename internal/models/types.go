package models

import "encoding/json"

// WordEntry is one vocabulary card. Entries are loaded once per language and never mutated.
type WordEntry struct {
	Key                 string   `json:"key"`
	Meaning             string   `json:"meaning"`
	ExampleSentences    []string `json:"exampleSentences"`
	TranslatedSentences []string `json:"translatedSentences"`
}

// UnmarshalJSON also accepts the per-language field names used by older word files
// ("thai"/"japanese" for the headword, "thaiSentences"/"jpSentences" and "cnSentences").
func (w *WordEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key                 string   `json:"key"`
		Thai                string   `json:"thai"`
		Japanese            string   `json:"japanese"`
		Meaning             string   `json:"meaning"`
		ExampleSentences    []string `json:"exampleSentences"`
		ThaiSentences       []string `json:"thaiSentences"`
		JapaneseSentences   []string `json:"jpSentences"`
		TranslatedSentences []string `json:"translatedSentences"`
		CNSentences         []string `json:"cnSentences"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*w = WordEntry{
		Key:                 firstNonEmpty(raw.Key, raw.Thai, raw.Japanese),
		Meaning:             raw.Meaning,
		ExampleSentences:    firstNonNil(raw.ExampleSentences, raw.ThaiSentences, raw.JapaneseSentences),
		TranslatedSentences: firstNonNil(raw.TranslatedSentences, raw.CNSentences),
	}
	return nil
}

type WordList struct {
	Words []WordEntry `json:"words"`
}

// LockState tracks a word the user marked as learned. The word stays out of the draw
// pool while SkipCount < LockCount.
type LockState struct {
	Learned   bool `json:"learned"`
	SkipCount int  `json:"skipCount"`
	LockCount int  `json:"lockCount"`
}

func (s LockState) Locked() bool {
	return s.Learned && s.SkipCount < s.LockCount
}

// LockLedger maps a headword to its lock state for one language.
type LockLedger map[string]LockState

func (l LockLedger) IsLocked(key string) bool {
	state, ok := l[key]
	return ok && state.Locked()
}

func (l LockLedger) LockedCount() int {
	count := 0
	for _, state := range l {
		if state.Locked() {
			count++
		}
	}
	return count
}

type Language struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	SpeechTag  string  `json:"speechTag" yaml:"speech_tag"`
	SpeechRate float64 `json:"speechRate" yaml:"speech_rate"`
	Source     string  `json:"source" yaml:"source"`
}

// SessionState is the transient per-client drill state. It is reset on language switch.
type SessionState struct {
	Language       Language
	Words          []WordEntry
	CurrentWordKey string
	ShowingMeaning bool
}

type Progress struct {
	Index  int `json:"index"`
	Total  int `json:"total"`
	Locked int `json:"locked"`
}

type Segment struct {
	Text string `json:"text"`
	Mark bool   `json:"mark"`
}

type SentencePair struct {
	Index       int       `json:"index"`
	Sentence    string    `json:"sentence"`
	Segments    []Segment `json:"segments"`
	Translation string    `json:"translation"`
}

// CardView is a render snapshot of a drill.
type CardView struct {
	Language       Language       `json:"language"`
	Word           *WordEntry     `json:"word,omitempty"`
	ShowingMeaning bool           `json:"showingMeaning"`
	Sentences      []SentencePair `json:"sentences"`
	Progress       Progress       `json:"progress"`
	ProgressText   string         `json:"progressText"`
	AllLocked      bool           `json:"allLocked"`
	Loaded         bool           `json:"loaded"`
	LoadError      string         `json:"loadError,omitempty"`
	LockCounts     []int          `json:"lockCounts"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonNil(values ...[]string) []string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
