package screener

import (
	"fmt"

	"github.com/glaslos/ssdeep"
	"github.com/root4loot/goutils/log"
)

type fingerprint struct {
	name string
	hash string
}

// Fingerprints remembers fuzzy hashes of earlier captures so that pages which
// render identically (error pages, blank loads) can be flagged.
type Fingerprints struct {
	threshold int
	seen      []fingerprint
}

// NewFingerprints returns an empty set that treats scores at or above
// threshold as similar.
func NewFingerprints(threshold int) (*Fingerprints, error) {
	if threshold < 1 || threshold > 100 {
		return nil, fmt.Errorf("invalid similarity threshold: %d. Must be between 1 and 100", threshold)
	}
	return &Fingerprints{threshold: threshold}, nil
}

// Match reports the name of the first earlier capture that data is similar to
// and records data under name. Inputs too small to hash never match.
func (f *Fingerprints) Match(name string, data []byte) (string, bool) {
	hash, err := ssdeep.FuzzyBytes(data)
	if err != nil {
		log.Debugf("Could not hash %s: %v", name, err)
		return "", false
	}

	defer func() {
		f.seen = append(f.seen, fingerprint{name: name, hash: hash})
	}()

	for _, prev := range f.seen {
		score, err := ssdeep.Distance(hash, prev.hash)
		if err != nil {
			continue
		}
		if score >= f.threshold {
			log.Debugf("%s is similar to %s with a score of %d", name, prev.name, score)
			return prev.name, true
		}
	}

	return "", false
}
