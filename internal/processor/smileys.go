package processor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/memohai/forum/internal/smiley"
)

func (p *Processor) snapshot() *smiley.Snapshot {
	if p.smileys == nil {
		return nil
	}
	return p.smileys.Snapshot()
}

// replaceSmileys substitutes delimited smiley codes in plain text nodes.
// Links, embeds and code blocks are left alone.
func replaceSmileys(nodes []node, snap *smiley.Snapshot) []node {
	if snap.Len() == 0 {
		return nodes
	}
	out := make([]node, 0, len(nodes))
	for _, n := range nodes {
		if n.kind != textNode || n.literal {
			out = append(out, n)
			continue
		}
		out = splitSmileys(out, n.text, snap, startsDelimited(out))
	}
	return out
}

// startsDelimited reports whether text following out begins at a word
// boundary. Text glued to a link, embed or smiley does not.
func startsDelimited(out []node) bool {
	if len(out) == 0 {
		return true
	}
	switch out[len(out)-1].kind {
	case linkNode, embedNode, smileyNode:
		return false
	}
	return true
}

func splitSmileys(out []node, text string, snap *smiley.Snapshot, delimitedStart bool) []node {
	delimitedEnd := func(end int) bool {
		if end == len(text) {
			return true
		}
		r, _ := utf8.DecodeRuneInString(text[end:])
		return unicode.IsSpace(r) || strings.ContainsRune(".,!?", r)
	}

	start := 0
	for i := 0; i < len(text); {
		if delimitedBefore(text, i, delimitedStart) {
			if s, ok := snap.MatchAt(text, i, delimitedEnd); ok {
				if i > start {
					out = append(out, node{kind: textNode, text: text[start:i]})
				}
				out = append(out, node{kind: smileyNode, text: s.Code, smiley: s})
				i += len(s.Code)
				start = i
				continue
			}
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	if start < len(text) {
		out = append(out, node{kind: textNode, text: text[start:]})
	}
	return out
}

func delimitedBefore(text string, i int, delimitedStart bool) bool {
	if i == 0 {
		return delimitedStart
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return unicode.IsSpace(r)
}
