package processor

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/memohai/forum/internal/card"
	"github.com/memohai/forum/internal/smiley"
)

// allowedTags are re-emitted without attributes. Everything else is escaped.
var allowedTags = map[string]bool{
	"b": true, "i": true, "u": true, "s": true, "em": true, "strong": true,
	"blockquote": true, "code": true, "pre": true, "br": true, "p": true,
	"ul": true, "ol": true, "li": true,
}

// literalTags suppress URL and smiley replacement in their content.
var literalTags = map[string]bool{"code": true, "pre": true}

// blockTags separate words in plain-text renderings.
var blockTags = map[string]bool{"blockquote": true, "pre": true, "p": true, "ul": true, "ol": true, "li": true}

type nodeKind uint8

const (
	textNode nodeKind = iota
	openNode
	closeNode
	breakNode
	linkNode
	embedNode
	smileyNode
)

// node is one piece of a tokenized body. text holds literal text, a tag
// name, the raw URL of a link or embed, or a smiley code.
type node struct {
	kind    nodeKind
	text    string
	href    string
	literal bool
	card    card.Card
	smiley  smiley.Smiley
}

func (p *Processor) sanitize(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", invalid("encoding", "body is not valid UTF-8")
	}
	body := strings.ReplaceAll(raw, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	body = strings.TrimSpace(norm.NFC.String(body))
	if strings.IndexFunc(body, forbiddenControl) >= 0 {
		return "", invalid("control_characters", "body contains control characters")
	}
	tag := fmt.Sprintf("required,max=%d", p.limits.MaxBodyRunes)
	if err := p.validate.Var(body, tag); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return "", err
		}
		out := &ValidationError{}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, fieldError(fe, p.limits.MaxBodyRunes))
		}
		return "", out
	}
	return body, nil
}

func fieldError(fe validator.FieldError, maxRunes int) FieldError {
	switch fe.Tag() {
	case "required":
		return FieldError{Field: "body", Code: "required", Message: "body is required"}
	case "max":
		return FieldError{Field: "body", Code: "too_long", Message: fmt.Sprintf("body exceeds %d characters", maxRunes)}
	default:
		return FieldError{Field: "body", Code: fe.Tag(), Message: "body is invalid"}
	}
}

// hasVisibleText reports whether any text survives once markup is removed.
func hasVisibleText(nodes []node) bool {
	for _, n := range nodes {
		if n.kind == textNode && strings.TrimFunc(n.text, unicode.IsSpace) != "" {
			return true
		}
	}
	return false
}

func forbiddenControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}

// tokenize splits body into nodes. Allowed tags lose their attributes and
// are balanced; any other markup is kept as literal text.
func tokenize(body string) []node {
	var (
		nodes   []node
		stack   []string
		literal int
	)
	closeTop := func() {
		tag := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if literalTags[tag] {
			literal--
		}
		nodes = append(nodes, node{kind: closeNode, text: tag})
	}

	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := string(z.Raw())
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case !allowedTags[tag]:
				nodes = appendText(nodes, raw, literal > 0)
			case tag == "br":
				nodes = append(nodes, node{kind: breakNode})
			case tt == html.SelfClosingTagToken:
				// <b/> has no content.
			default:
				nodes = append(nodes, node{kind: openNode, text: tag})
				stack = append(stack, tag)
				if literalTags[tag] {
					literal++
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			idx := lastIndex(stack, tag)
			if !allowedTags[tag] || idx < 0 {
				nodes = appendText(nodes, raw, literal > 0)
				continue
			}
			for len(stack) > idx {
				closeTop()
			}
		default:
			nodes = appendText(nodes, raw, literal > 0)
		}
	}
	for len(stack) > 0 {
		closeTop()
	}
	return nodes
}

// appendText adds text, turning newlines into breaks and merging with a
// preceding text node of the same kind.
func appendText(nodes []node, text string, literal bool) []node {
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			nodes = append(nodes, node{kind: breakNode})
		}
		if line == "" {
			continue
		}
		if n := len(nodes); n > 0 && nodes[n-1].kind == textNode && nodes[n-1].literal == literal {
			nodes[n-1].text += line
			continue
		}
		nodes = append(nodes, node{kind: textNode, text: line, literal: literal})
	}
	return nodes
}

func lastIndex(stack []string, tag string) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == tag {
			return i
		}
	}
	return -1
}
