package processor

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
	"golang.org/x/net/html"
)

func render(nodes []node) string {
	var b strings.Builder
	for _, n := range nodes {
		writeNode(&b, n)
	}
	return b.String()
}

func writeNode(b *strings.Builder, n node) {
	switch n.kind {
	case textNode:
		b.WriteString(html.EscapeString(n.text))
	case openNode:
		b.WriteString("<" + n.text + ">")
	case closeNode:
		b.WriteString("</" + n.text + ">")
	case breakNode:
		b.WriteString("<br>")
	case linkNode:
		fmt.Fprintf(b, `<a href="%s" rel="nofollow noopener" target="_blank">%s</a>`,
			html.EscapeString(n.href), html.EscapeString(n.text))
	case embedNode:
		fmt.Fprintf(b, `<div class="card" data-card="%s" data-kind="%s"><a href="%s" rel="nofollow noopener" target="_blank">%s</a></div>`,
			html.EscapeString(n.card.ID), html.EscapeString(string(n.card.Kind)),
			html.EscapeString(n.href), html.EscapeString(n.card.Label()))
	case smileyNode:
		title := n.smiley.Thought
		if title == "" {
			title = n.smiley.Code
		}
		fmt.Fprintf(b, `<img class="smiley" src="%s" alt="%s" title="%s">`,
			html.EscapeString(n.smiley.Path), html.EscapeString(n.smiley.Code), html.EscapeString(title))
	}
}

// shortPreview is the whitespace-collapsed plain text cut to budget runes,
// ellipsis included. Links, embeds and smileys are dropped whole when they
// do not fit.
func shortPreview(nodes []node, budget int) string {
	var (
		b       strings.Builder
		atoms   [][2]int
		pending bool
	)
	space := func() {
		if pending && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pending = false
	}
	for _, n := range nodes {
		switch n.kind {
		case textNode:
			for _, r := range n.text {
				if unicode.IsSpace(r) {
					pending = true
					continue
				}
				space()
				b.WriteRune(r)
			}
		case linkNode, embedNode, smileyNode:
			label := n.text
			if n.kind == embedNode {
				label = n.card.Label()
			}
			label = strings.Join(strings.Fields(label), " ")
			if label == "" {
				continue
			}
			space()
			start := b.Len()
			b.WriteString(label)
			atoms = append(atoms, [2]int{start, b.Len()})
		case breakNode:
			pending = true
		case openNode, closeNode:
			if blockTags[n.text] {
				pending = true
			}
		}
	}
	text := b.String()
	if utf8.RuneCountInString(text) <= budget {
		return text
	}
	cut, _ := cutClusters(text, budget-1)
	for _, a := range atoms {
		if a[0] < len(cut) && len(cut) < a[1] {
			cut = text[:a[0]]
			break
		}
	}
	return strings.TrimRightFunc(cut, unicode.IsSpace) + ellipsis
}

// longPreview renders nodes as HTML until budget visible runes are used.
// Links, embeds and smileys are never split; open tags are closed.
func longPreview(nodes []node, budget int) string {
	total := 0
	for _, n := range nodes {
		total += weight(n)
	}
	if total <= budget {
		return render(nodes)
	}
	limit := budget - 1

	var (
		b    strings.Builder
		open []string
		used int
	)
loop:
	for _, n := range nodes {
		switch n.kind {
		case openNode:
			writeNode(&b, n)
			open = append(open, n.text)
		case closeNode:
			writeNode(&b, n)
			open = open[:len(open)-1]
		case textNode:
			w := weight(n)
			if used+w <= limit {
				writeNode(&b, n)
				used += w
				continue
			}
			cut, _ := cutClusters(n.text, limit-used)
			b.WriteString(html.EscapeString(cut))
			break loop
		default:
			w := weight(n)
			if used+w > limit {
				break loop
			}
			writeNode(&b, n)
			used += w
		}
	}
	b.WriteString(ellipsis)
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteString("</" + open[i] + ">")
	}
	return b.String()
}

// weight is the number of visible runes a node contributes.
func weight(n node) int {
	switch n.kind {
	case textNode, linkNode:
		return utf8.RuneCountInString(n.text)
	case embedNode:
		return utf8.RuneCountInString(n.card.Label())
	case breakNode, smileyNode:
		return 1
	default:
		return 0
	}
}

// cutClusters returns the longest prefix of s holding at most maxRunes runes
// that ends on a grapheme cluster boundary.
func cutClusters(s string, maxRunes int) (string, bool) {
	if maxRunes <= 0 {
		return "", s == ""
	}
	runes, end := 0, 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		n := len(gr.Runes())
		if runes+n > maxRunes {
			return s[:end], false
		}
		runes += n
		_, end = gr.Positions()
	}
	return s, true
}
