package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash computes the SHA-256 of the canonical JSON array of events, after
// each event has had its timestamp-valued fields stripped (spec.md §4.12).
func Hash(events []Event) (string, error) {
	canon := make([]interface{}, 0, len(events))
	for _, e := range events {
		c, err := Canonicalise(e)
		if err != nil {
			return "", err
		}
		canon = append(canon, c)
	}
	b, err := canonicalJSON(canon)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// FeatureHash is the SHA-256 truncated to 16 hex chars of the canonical JSON
// serialisation of a strategy's input feature mapping for one decision
// (spec.md §3 feature_hash).
func FeatureHash(features map[string]interface{}) (string, error) {
	b, err := canonicalJSON(features)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16], nil
}

// filterByKindPrefix keeps only events whose EventType starts with prefix.
func filterByKindPrefix(events []Event, prefix string) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if strings.HasPrefix(string(e.EventType), prefix) {
			out = append(out, e)
		}
	}
	return out
}

// ReplayResult is the outcome of comparing two event sequences.
type ReplayResult struct {
	OriginalHash string
	ReplayHash   string
	Match        bool
	// MismatchIndex is the first index (within the filtered, canonicalised
	// sequences) where the two runs diverge, or -1 if they match or one
	// sequence is a strict prefix of the other with no divergent index.
	MismatchIndex int
	// MismatchDetail describes what differed at MismatchIndex.
	MismatchDetail string
}

// Verify filters original and replay by the event_type prefix implied by
// kind (one of "decision", "guardian"), hashes both filtered sequences, and
// — on mismatch — localises the first index where the normalised (canonicalised)
// events differ (spec.md §4.12).
func Verify(original, replay []Event, kind string) (ReplayResult, error) {
	origFiltered := filterByKindPrefix(original, kind)
	replayFiltered := filterByKindPrefix(replay, kind)

	origHash, err := Hash(origFiltered)
	if err != nil {
		return ReplayResult{}, err
	}
	replayHash, err := Hash(replayFiltered)
	if err != nil {
		return ReplayResult{}, err
	}

	result := ReplayResult{
		OriginalHash:  origHash,
		ReplayHash:    replayHash,
		Match:         origHash == replayHash,
		MismatchIndex: -1,
	}
	if result.Match {
		return result, nil
	}

	max := len(origFiltered)
	if len(replayFiltered) > max {
		max = len(replayFiltered)
	}
	for i := 0; i < max; i++ {
		var origCanon, replayCanon interface{}
		haveOrig := i < len(origFiltered)
		haveReplay := i < len(replayFiltered)

		if haveOrig {
			origCanon, err = Canonicalise(origFiltered[i])
			if err != nil {
				return ReplayResult{}, err
			}
		}
		if haveReplay {
			replayCanon, err = Canonicalise(replayFiltered[i])
			if err != nil {
				return ReplayResult{}, err
			}
		}

		switch {
		case !haveOrig:
			result.MismatchIndex = i
			result.MismatchDetail = fmt.Sprintf("index %d: original=<none> replay present", i)
		case !haveReplay:
			result.MismatchIndex = i
			result.MismatchDetail = fmt.Sprintf("index %d: original present replay=<none>", i)
		default:
			ob, err := canonicalJSON(origCanon)
			if err != nil {
				return ReplayResult{}, err
			}
			rb, err := canonicalJSON(replayCanon)
			if err != nil {
				return ReplayResult{}, err
			}
			if string(ob) != string(rb) {
				result.MismatchIndex = i
				result.MismatchDetail = fmt.Sprintf("index %d: events differ", i)
			}
		}
		if result.MismatchIndex >= 0 {
			break
		}
	}
	return result, nil
}
