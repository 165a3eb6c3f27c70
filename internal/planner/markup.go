// Package planner implements the spec §4.9 Planner (C9): a single LLM
// stream producing a tagged planning-markup document, parsed by an
// incrementally-tolerant parser that balances truncated tags and quotes
// before a strict parse, so mid-stream renders never choke on a partial
// document.
//
// No teacher file implements this 1:1 (the teacher has no markup-planning
// component); grounded on other_examples/easyagent-dev's streaming XML
// tool-call parser idiom (tolerant incremental parsing of a tagged wire
// format read off an LLM stream) and internal/agent/event_emitter.go's
// progressive-callback sequencing, adapted to a whole planning document
// instead of a single tool call.
package planner

import (
	"regexp"
	"strings"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

// normalize applies spec §9's "normalization pass that balances tags and
// quotes before a strict parse": it closes any unterminated quoted
// attribute, then appends closing tags for any element left open, in
// last-opened-first-closed order (a last-closing-fixup), so a truncated
// mid-stream document becomes well-formed enough to parse.
func normalize(raw string) string {
	s := balanceQuotes(raw)
	return balanceTags(s)
}

var tagRE = regexp.MustCompile(`<(/?)([a-zA-Z][a-zA-Z0-9_]*)[^>]*?(/?)>`)

func balanceTags(s string) string {
	var stack []string
	matches := tagRE.FindAllStringSubmatchIndex(s, -1)
	for _, m := range matches {
		closing := s[m[2]:m[3]] == "/"
		name := s[m[4]:m[5]]
		selfClose := m[6] >= 0 && s[m[6]:m[7]] == "/"
		if selfClose {
			continue
		}
		if closing {
			// Pop the nearest matching open tag, tolerating mismatches
			// from a truncated stream by searching from the top.
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] == name {
					stack = stack[:i]
					break
				}
			}
		} else {
			stack = append(stack, name)
		}
	}

	// Also handle a trailing unterminated "<tag" or "<tag attr=" fragment
	// (no closing '>' at all): drop it, it carries no content.
	if idx := strings.LastIndex(s, "<"); idx >= 0 {
		if !strings.Contains(s[idx:], ">") {
			s = s[:idx]
		}
	}

	var b strings.Builder
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteString("</")
		b.WriteString(stack[i])
		b.WriteString(">")
	}
	return b.String()
}

// balanceQuotes closes a trailing odd-count unterminated quote inside the
// last open tag, so an attribute value truncated mid-stream (`<node text="a`)
// doesn't swallow the rest of the document when tagRE scans for '>'.
func balanceQuotes(s string) string {
	lastOpen := strings.LastIndex(s, "<")
	lastClose := strings.LastIndex(s, ">")
	if lastOpen <= lastClose {
		return s
	}
	tail := s[lastOpen:]
	if strings.Count(tail, `"`)%2 == 1 {
		return s + `">`
	}
	if strings.Count(tail, "'")%2 == 1 {
		return s + `'>`
	}
	return s
}

// extractElement returns the content of the first element named name in
// doc, or the rest of doc after its opening tag when no closing tag follows.
// It looks the element up anywhere in doc and does not check which root
// element (e.g. <plan>, <task>) encloses it.
func extractElement(doc, name string) (string, bool) {
	open := "<" + name
	start := strings.Index(doc, open)
	if start < 0 {
		return "", false
	}
	tagEnd := strings.Index(doc[start:], ">")
	if tagEnd < 0 {
		return "", false
	}
	contentStart := start + tagEnd + 1
	closeTag := "</" + name + ">"
	end := strings.Index(doc[contentStart:], closeTag)
	if end < 0 {
		return strings.TrimSpace(doc[contentStart:]), true
	}
	return strings.TrimSpace(doc[contentStart : contentStart+end]), true
}

func extractAllElements(doc, name string) []string {
	var out []string
	rest := doc
	for {
		chunk, ok := extractElement(rest, name)
		if !ok {
			break
		}
		out = append(out, chunk)
		open := "<" + name
		idx := strings.Index(rest, open)
		if idx < 0 {
			break
		}
		closeTag := "</" + name + ">"
		endIdx := strings.Index(rest[idx:], closeTag)
		if endIdx < 0 {
			break
		}
		rest = rest[idx+endIdx+len(closeTag):]
	}
	return out
}

// ParseMarkup parses a (possibly mid-stream, possibly truncated) planning
// markup document into a Task's markup-derived fields: Name, Thought,
// Description and Nodes, plus any nested <subtasks> task elements (spec §6's
// planning markup shape, depth <= 2).
func ParseMarkup(raw string) (name, thought, description string, nodes []models.TaskNode, subtasks []string) {
	doc := normalize(raw)

	name, _ = extractElement(doc, "name")
	thought, _ = extractElement(doc, "thought")
	description, _ = extractElement(doc, "task")

	if nodesBlock, ok := extractElement(doc, "nodes"); ok {
		nodes = parseNodes(nodesBlock)
	}

	if subBlock, ok := extractElement(doc, "subtasks"); ok {
		subtasks = extractAllElements(subBlock, "task")
	}

	return name, thought, description, nodes, subtasks
}

func parseNodes(block string) []models.TaskNode {
	var nodes []models.TaskNode
	rest := block
	for {
		idx, kind, tagLen := nextNodeTag(rest)
		if idx < 0 {
			break
		}
		var body string
		closeTag := "</" + kind + ">"
		closeIdx := strings.Index(rest[idx+tagLen:], closeTag)
		if closeIdx < 0 {
			body = rest[idx+tagLen:]
			rest = ""
		} else {
			body = rest[idx+tagLen : idx+tagLen+closeIdx]
			rest = rest[idx+tagLen+closeIdx+len(closeTag):]
		}

		switch kind {
		case "node":
			nodes = append(nodes, models.TaskNode{Kind: models.NodeKindText, Text: strings.TrimSpace(body)})
		case "forEach":
			items, inner := parseForEach(body)
			nodes = append(nodes, models.TaskNode{Kind: models.NodeKindForEach, Items: items, InnerNodes: inner})
		case "watch":
			eventKind, loop, desc, triggers := parseWatch(body)
			nodes = append(nodes, models.TaskNode{Kind: models.NodeKindWatch, EventKind: eventKind, Loop: loop, Description: desc, TriggerNodes: triggers})
		}
		if rest == "" {
			break
		}
	}
	return nodes
}

func nextNodeTag(s string) (idx int, kind string, tagLen int) {
	best := -1
	bestKind := ""
	bestLen := 0
	for _, kind := range []string{"node", "forEach", "watch"} {
		open := "<" + kind
		i := strings.Index(s, open)
		if i < 0 {
			continue
		}
		tagEnd := strings.Index(s[i:], ">")
		if tagEnd < 0 {
			continue
		}
		if best == -1 || i < best {
			best = i
			bestKind = kind
			bestLen = tagEnd + 1
		}
	}
	return best, bestKind, bestLen
}

func parseForEach(body string) ([]string, []models.TaskNode) {
	var items []string
	if itemsBlock, ok := extractElement(body, "items"); ok {
		for _, item := range strings.Split(itemsBlock, "\n") {
			item = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(item), "-"))
			if item != "" {
				items = append(items, strings.TrimSpace(item))
			}
		}
	}
	inner := parseNodes(body)
	return items, inner
}

func parseWatch(body string) (eventKind string, loop bool, description string, triggers []models.TaskNode) {
	eventKind, _ = extractElement(body, "event")
	loopStr, _ := extractElement(body, "loop")
	loop = strings.EqualFold(strings.TrimSpace(loopStr), "true")
	description, _ = extractElement(body, "description")
	triggers = parseNodes(body)
	return eventKind, loop, description, triggers
}
