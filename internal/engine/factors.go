package engine

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// Factor estimates used when a caller supplies no significance factors.
const (
	neutralRelevance    = 0.5
	noOverlapRelevance  = 0.3
	overlapSaturation   = 5.0
	minThemeWordLength  = 4
	minUniqueness       = 0.1
	baseInteraction     = 0.5
	questionBoost       = 0.2
	pronounBonus        = 0.05
	maxPronounBonus     = 0.2
	minInteraction      = 0.1
	creationTemporal    = 1.0
	neutralPatternScore = 0.5
)

var personalPronouns = map[string]bool{
	"i": true, "me": true, "my": true, "myself": true,
	"you": true, "your": true, "we": true, "us": true, "our": true,
}

// smallTalk matches greetings and logistics questions whose question mark
// lowers interaction value instead of raising it. Phrases only match on word
// boundaries, so "no" does not fire inside "know".
var smallTalk = regexp.MustCompile(`\b(?:what time|what day|what date|how are you|hello|hi there|good morning|good night|thanks|thank you|okay|ok|yes|no)\b`)

// EstimateFactors derives significance factors for text from the owner's
// recent memory contents. EmotionalIntensity is taken from the classifier.
func EstimateFactors(text string, intensity float64, history []string) types.SignificanceFactors {
	words := wordSet(text)
	return types.SignificanceFactors{
		EmotionalIntensity:  types.Clamp01(intensity),
		PersonalRelevance:   personalRelevance(words, history),
		Uniqueness:          uniqueness(words, history),
		TemporalImportance:  creationTemporal,
		InteractionValue:    interactionValue(text),
		PatternSignificance: neutralPatternScore,
	}
}

// personalRelevance counts, for every longer word of the message, how many
// recent memories share it. The busiest theme saturates at five memories.
func personalRelevance(words map[string]bool, history []string) float64 {
	if len(history) == 0 {
		return neutralRelevance
	}
	themes := make(map[string]int)
	for _, h := range history {
		for w := range wordSet(h) {
			if words[w] && len([]rune(w)) >= minThemeWordLength {
				themes[w]++
			}
		}
	}
	best := 0
	for _, n := range themes {
		if n > best {
			best = n
		}
	}
	if best == 0 {
		return noOverlapRelevance
	}
	return types.Clamp01(float64(best) / overlapSaturation)
}

// uniqueness is one minus the mean Jaccard similarity with recent memories.
func uniqueness(words map[string]bool, history []string) float64 {
	var sum float64
	var n int
	for _, h := range history {
		other := wordSet(h)
		if len(words) == 0 || len(other) == 0 {
			continue
		}
		inter := 0
		for w := range words {
			if other[w] {
				inter++
			}
		}
		union := len(words) + len(other) - inter
		sum += float64(inter) / float64(union)
		n++
	}
	if n == 0 {
		return 1
	}
	u := 1 - sum/float64(n)
	if u < minUniqueness {
		return minUniqueness
	}
	return u
}

func interactionValue(text string) float64 {
	lower := strings.ToLower(text)
	score := baseInteraction
	if strings.Contains(text, "?") {
		if smallTalk.MatchString(lower) {
			score -= questionBoost
		} else {
			score += questionBoost
		}
	}

	pronouns := 0
	for _, w := range strings.Fields(lower) {
		if personalPronouns[strings.TrimFunc(w, unicode.IsPunct)] {
			pronouns++
		}
	}
	bonus := float64(pronouns) * pronounBonus
	if bonus > maxPronounBonus {
		bonus = maxPronounBonus
	}
	score += bonus

	if score < minInteraction {
		return minInteraction
	}
	return types.Clamp01(score)
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}
