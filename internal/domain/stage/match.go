package stage

import (
	"sort"
	"strings"
)

// Confidence ranks how strongly two stage names match.
type Confidence int

const (
	None Confidence = iota
	KindMatch
	KeywordMatch
	SubstringMatch
	ExactMatch
)

func (c Confidence) String() string {
	switch c {
	case ExactMatch:
		return "exact"
	case SubstringMatch:
		return "substring"
	case KeywordMatch:
		return "keyword"
	case KindMatch:
		return "kind"
	}
	return "none"
}

const minKeywordLen = 4

// generic words carry no checkpoint identity on their own.
var stopwords = map[string]struct{}{
	"arrived": {}, "departed": {}, "arrival": {}, "departure": {}, "with": {},
	"from": {}, "into": {}, "package": {}, "shipment": {}, "at": {}, "the": {},
}

// Keywords returns the distinct words of s that are long enough to identify a stage.
func Keywords(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range strings.Fields(Normalize(s)) {
		if len(w) < minKeywordLen {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Match returns the confidence that a and b name the same checkpoint.
func Match(a, b string) Confidence {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return None
	}
	if na == nb {
		return ExactMatch
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return SubstringMatch
	}
	kindA, kindB := Classify(na), Classify(nb)
	if compatible(kindA, kindB) {
		kb := Keywords(nb)
		for _, ka := range Keywords(na) {
			for _, w := range kb {
				if ka == w {
					return KeywordMatch
				}
			}
		}
	}
	if kindA != Unknown && kindA == kindB {
		return KindMatch
	}
	return None
}

// compatible is false when both kinds are known and name different checkpoints.
// Customs arrival and clearance share one checkpoint.
func compatible(a, b Kind) bool {
	if a == Unknown || b == Unknown || a == b {
		return true
	}
	customs := func(k Kind) bool { return k == CustomsArrival || k == CustomsCleared }
	return customs(a) && customs(b)
}

// Candidate is one ranked match of a query against a list of names.
type Candidate struct {
	Index      int
	Name       string
	Confidence Confidence
}

// Rank matches query against names and returns the non-zero matches ordered by
// confidence, then by position.
func Rank(query string, names []string) []Candidate {
	var out []Candidate
	for i, n := range names {
		if c := Match(query, n); c > None {
			out = append(out, Candidate{Index: i, Name: n, Confidence: c})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Index < out[j].Index
	})
	return out
}
