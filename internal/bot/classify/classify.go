// Package classify turns raw on-screen target text into a target classification.
package classify

import (
	"strings"

	"github.com/cory-johannsen/huntbot/internal/bot/target"
)

// Classification is the result of classifying one piece of detected text.
type Classification struct {
	Kind         target.Kind
	DetectedName string
	MatchedName  string
	Confidence   float64
}

// Classifier maps detected text to a Classification.
type Classifier interface {
	Classify(text string) Classification
}

// Matcher classifies text by similarity against configured mob and drop names.
//
// Invariant: Matcher is immutable after construction and safe for concurrent use.
type Matcher struct {
	threshold float64
	mobs      []string
	drops     []string
}

// NewMatcher returns a Matcher over copies of mobs and drops.
//
// Precondition: threshold should lie in [0, 1].
func NewMatcher(threshold float64, mobs, drops []string) *Matcher {
	return &Matcher{
		threshold: threshold,
		mobs:      append([]string(nil), mobs...),
		drops:     append([]string(nil), drops...),
	}
}

// Classify returns KindMob for the best mob at or above the threshold,
// otherwise KindDrop for the best drop at or above the threshold, otherwise
// KindNone. Only the first line of text is considered.
//
// Postcondition: Ties keep the earlier list entry.
func (m *Matcher) Classify(text string) Classification {
	name := firstLine(text)
	if name == "" {
		return Classification{Kind: target.KindNone}
	}
	if match, score, ok := m.best(name, m.mobs); ok {
		return Classification{Kind: target.KindMob, DetectedName: name, MatchedName: match, Confidence: score}
	}
	if match, score, ok := m.best(name, m.drops); ok {
		return Classification{Kind: target.KindDrop, DetectedName: name, MatchedName: match, Confidence: score}
	}
	return Classification{Kind: target.KindNone, DetectedName: name}
}

func (m *Matcher) best(name string, candidates []string) (string, float64, bool) {
	var match string
	var score float64
	for _, c := range candidates {
		if s := Ratio(name, c); s > score {
			match, score = c, s
		}
	}
	if match == "" || score < m.threshold {
		return "", score, false
	}
	return match, score, true
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// Ratio returns the Ratcliff/Obershelp similarity of a and b, ignoring case:
// twice the number of matching runes divided by the total rune count.
//
// Postcondition: Returns a value in [0, 1]; two empty strings score 1.
func Ratio(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matches(ra, rb)) / float64(total)
}

// matches counts the runes covered by the recursive longest-common-block
// decomposition of a and b.
func matches(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	i, j, n := longestBlock(a, b)
	if n == 0 {
		return 0
	}
	return n + matches(a[:i], b[:j]) + matches(a[i+n:], b[j+n:])
}

// longestBlock finds the longest common substring, preferring the earliest
// start in a and then in b.
func longestBlock(a, b []rune) (int, int, int) {
	bestI, bestJ, bestN := 0, 0, 0
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				n := cur[j]
				si, sj := i-n, j-n
				if n > bestN || (n == bestN && (si < bestI || (si == bestI && sj < bestJ))) {
					bestI, bestJ, bestN = si, sj, n
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return bestI, bestJ, bestN
}
