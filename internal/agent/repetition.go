package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DefaultRepetitionCap is how many times an identical tool call may
// execute within one run before subsequent occurrences are refused.
const DefaultRepetitionCap = 3

// repetitionGuard tracks a multiset of (tool name, canonicalized params)
// fingerprints so the loop can short-circuit models stuck re-issuing the
// same call. Guards are per-run and not safe for concurrent use; the
// loop consults it only between dispatch phases.
type repetitionGuard struct {
	cap    int
	counts map[string]int
}

func newRepetitionGuard(cap int) *repetitionGuard {
	if cap == 0 {
		cap = DefaultRepetitionCap
	}
	return &repetitionGuard{cap: cap, counts: map[string]int{}}
}

// allow records one occurrence of the call and reports whether it may
// execute. The first cap occurrences pass; later ones are refused. A
// negative cap disables the guard entirely.
func (g *repetitionGuard) allow(name string, arguments json.RawMessage) bool {
	if g.cap < 0 {
		return true
	}
	fp := fingerprint(name, arguments)
	g.counts[fp]++
	return g.counts[fp] <= g.cap
}

// refusalResultError is the synthetic error payload for a refused call.
func (g *repetitionGuard) refusalError(name string) string {
	return fmt.Sprintf(
		"repetition limit reached: %s was already called %d times with identical arguments; try a different tool or different arguments",
		name, g.cap)
}

// fingerprint canonicalizes the call so that argument-order and
// whitespace differences collapse to one key.
func fingerprint(name string, arguments json.RawMessage) string {
	var decoded any
	if err := json.Unmarshal(arguments, &decoded); err != nil {
		return name + "|" + string(arguments)
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('|')
	writeCanonical(&b, decoded)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		fmt.Fprintf(b, "%v", val)
	}
}
