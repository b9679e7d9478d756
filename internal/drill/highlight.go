package drill

import (
	"regexp"

	models "github.com/CodeAndHammer/lockcards/internal/models"
)

// HighlightSentences pairs each example sentence with its translation and marks every
// literal, case-sensitive occurrence of the headword.
func HighlightSentences(entry models.WordEntry) []models.SentencePair {
	var pattern *regexp.Regexp
	if entry.Key != "" {
		pattern = regexp.MustCompile(regexp.QuoteMeta(entry.Key))
	}

	pairs := make([]models.SentencePair, 0, len(entry.ExampleSentences))
	for i, sentence := range entry.ExampleSentences {
		translation := ""
		if i < len(entry.TranslatedSentences) {
			translation = entry.TranslatedSentences[i]
		}
		pairs = append(pairs, models.SentencePair{
			Index:       i,
			Sentence:    sentence,
			Segments:    segment(sentence, pattern),
			Translation: translation,
		})
	}
	return pairs
}

// Highlight splits sentence around every occurrence of headword.
func Highlight(sentence, headword string) []models.Segment {
	if headword == "" {
		return segment(sentence, nil)
	}
	return segment(sentence, regexp.MustCompile(regexp.QuoteMeta(headword)))
}

func segment(sentence string, pattern *regexp.Regexp) []models.Segment {
	if sentence == "" {
		return nil
	}
	if pattern == nil {
		return []models.Segment{{Text: sentence}}
	}

	var segments []models.Segment
	last := 0
	for _, loc := range pattern.FindAllStringIndex(sentence, -1) {
		if loc[0] > last {
			segments = append(segments, models.Segment{Text: sentence[last:loc[0]]})
		}
		segments = append(segments, models.Segment{Text: sentence[loc[0]:loc[1]], Mark: true})
		last = loc[1]
	}
	if last < len(sentence) {
		segments = append(segments, models.Segment{Text: sentence[last:]})
	}
	return segments
}
