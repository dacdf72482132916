package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prompt-factory/api/internal/domain"
)

// SegmentKind distinguishes literal template text from placeholder slots.
type SegmentKind string

const (
	// SegmentLiteral is a run of template text rendered verbatim.
	SegmentLiteral SegmentKind = "literal"
	// SegmentPlaceholder references a placeholder by key.
	SegmentPlaceholder SegmentKind = "placeholder"
)

// Segment is one piece of a template split around placeholder keys.
// Concatenating all segments (placeholder segments as their key text)
// reproduces the original template exactly.
type Segment struct {
	Kind SegmentKind `json:"kind"`
	// Text holds the literal run for literal segments and the placeholder
	// key for placeholder segments.
	Text string `json:"text"`
	// Key is set for placeholder segments only.
	Key string `json:"key,omitempty"`
}

// Selections maps placeholder keys to the currently chosen option value.
type Selections map[string]string

// SeedSelections builds the initial selection map for a recipe: each
// placeholder starts on its first option, or the empty string when it has
// no options.
func SeedSelections(placeholders []domain.Placeholder) Selections {
	selections := make(Selections, len(placeholders))
	for _, p := range placeholders {
		if len(p.Options) > 0 {
			selections[p.Key] = p.Options[0]
		} else {
			selections[p.Key] = ""
		}
	}
	return selections
}

// Render substitutes the current selections into the template and returns
// the final prompt. For every placeholder with a non-empty selection the
// first textual occurrence of its key is replaced; placeholders with an
// empty selection stay as their literal key text. Replacement positions are
// located against the original template, so a selected value that happens to
// contain another placeholder's key is never substituted again.
func Render(template string, placeholders []domain.Placeholder, selections Selections) string {
	type splice struct {
		start int
		end   int
		value string
	}

	splices := make([]splice, 0, len(placeholders))
	for _, p := range placeholders {
		value := selections[p.Key]
		if value == "" || p.Key == "" {
			continue
		}
		idx := strings.Index(template, p.Key)
		if idx < 0 {
			continue
		}
		splices = append(splices, splice{start: idx, end: idx + len(p.Key), value: value})
	}

	sort.Slice(splices, func(i, j int) bool { return splices[i].start < splices[j].start })

	var b strings.Builder
	b.Grow(len(template))
	cursor := 0
	for _, s := range splices {
		if s.start < cursor {
			// Overlapping keys; the earlier replacement wins.
			continue
		}
		b.WriteString(template[cursor:s.start])
		b.WriteString(s.value)
		cursor = s.end
	}
	b.WriteString(template[cursor:])
	return b.String()
}

// Segments splits the template into an ordered sequence of literal runs and
// placeholder references, preserving all literal text exactly. Placeholder
// keys are matched as indivisible literal tokens; when two keys match at the
// same position the longest wins.
func Segments(template string, placeholders []domain.Placeholder) []Segment {
	keys := make([]string, 0, len(placeholders))
	for _, p := range placeholders {
		if p.Key != "" {
			keys = append(keys, p.Key)
		}
	}

	var segments []Segment
	rest := template
	for rest != "" {
		idx, key := nextKey(rest, keys)
		if idx < 0 {
			segments = append(segments, Segment{Kind: SegmentLiteral, Text: rest})
			break
		}
		if idx > 0 {
			segments = append(segments, Segment{Kind: SegmentLiteral, Text: rest[:idx]})
		}
		segments = append(segments, Segment{Kind: SegmentPlaceholder, Text: key, Key: key})
		rest = rest[idx+len(key):]
	}
	return segments
}

func nextKey(s string, keys []string) (int, string) {
	best := -1
	var bestKey string
	for _, key := range keys {
		idx := strings.Index(s, key)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best || (idx == best && len(key) > len(bestKey)) {
			best = idx
			bestKey = key
		}
	}
	return best, bestKey
}

// AllFieldsFilled reports whether every placeholder has a non-empty entry in
// the selection map. Rendering is independent of completion: an incomplete
// prompt may still be displayed and edited, but generation and copy actions
// gate on this predicate.
func AllFieldsFilled(placeholders []domain.Placeholder, selections Selections) bool {
	for _, p := range placeholders {
		if selections[p.Key] == "" {
			return false
		}
	}
	return true
}

// Validate checks recipe template integrity at load time. Duplicate
// placeholder keys are a hard error; a key that never occurs in the template
// makes the placeholder unrenderable and is returned as a warning rather
// than failing the load.
func Validate(recipe domain.Recipe) ([]string, error) {
	seen := make(map[string]struct{}, len(recipe.Placeholders))
	var warnings []string
	for _, p := range recipe.Placeholders {
		if p.Key == "" {
			return warnings, fmt.Errorf("recipe %s: placeholder %q has an empty key", recipe.ID, p.Label)
		}
		if _, dup := seen[p.Key]; dup {
			return warnings, fmt.Errorf("recipe %s: duplicate placeholder key %s", recipe.ID, p.Key)
		}
		seen[p.Key] = struct{}{}
		if !strings.Contains(recipe.Template, p.Key) {
			warnings = append(warnings, fmt.Sprintf("recipe %s: placeholder key %s does not occur in the template", recipe.ID, p.Key))
		}
	}
	return warnings, nil
}
