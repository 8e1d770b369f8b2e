package tools

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// WordsPerMinute is the reading speed used for ReadingTimeMinutes.
const WordsPerMinute = 200

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

// TextAnalysis is the result of AnalyzeText.
type TextAnalysis struct {
	WordCount              int     `json:"word_count"`
	CharacterCount         int     `json:"character_count"`
	CharacterCountNoSpaces int     `json:"character_count_no_spaces"`
	SentenceCount          int     `json:"sentence_count"`
	ParagraphCount         int     `json:"paragraph_count"`
	AverageWordLength      float64 `json:"average_word_length"`
	LongestWord            string  `json:"longest_word"`
	UniqueWordCount        int     `json:"unique_word_count"`
	ReadingTimeMinutes     float64 `json:"reading_time_minutes"`
	Summary                string  `json:"summary"`
}

// AnalyzeText computes word, character, sentence and paragraph statistics.
// Characters are counted as runes.
func AnalyzeText(text string) (*TextAnalysis, error) {
	if text == "" {
		return nil, fmt.Errorf("invalid input: text must be a non-empty string")
	}

	words := strings.Fields(text)
	a := &TextAnalysis{
		WordCount:              len(words),
		CharacterCount:         utf8.RuneCountInString(text),
		CharacterCountNoSpaces: utf8.RuneCountInString(strings.ReplaceAll(text, " ", "")),
		SentenceCount:          len(sentenceEnd.FindAllStringIndex(text, -1)),
	}

	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			a.ParagraphCount++
		}
	}
	a.ParagraphCount = max(a.ParagraphCount, 1)

	unique := make(map[string]struct{}, len(words))
	longest := 0
	total := 0
	for _, w := range words {
		n := utf8.RuneCountInString(w)
		total += n
		if n > longest {
			longest = n
			a.LongestWord = w
		}
		unique[strings.Trim(strings.ToLower(w), `.,!?;:"()[]{}`)] = struct{}{}
	}
	a.UniqueWordCount = len(unique)
	if len(words) > 0 {
		a.AverageWordLength = roundTo(float64(total)/float64(len(words)), 2)
	}

	a.ReadingTimeMinutes = roundTo(float64(a.WordCount)/WordsPerMinute, 1)
	a.Summary = fmt.Sprintf("Text contains %d words, %d sentences, and takes ~%.1f minutes to read.",
		a.WordCount, a.SentenceCount, a.ReadingTimeMinutes)
	return a, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
