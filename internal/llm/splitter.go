package llm

import "strings"

// Split is the result of demultiplexing raw streamed text into thinking and
// visible segments (spec §4.4).
type Split struct {
	Thinking       string
	Visible        string
	HasOpenThinking bool
}

const openTag = "<thinking"
const closeTag = "</thinking>"

// SplitThinking extracts every closed <thinking>...</thinking> block from
// raw (case-insensitive tag matching), concatenating their bodies with
// newlines into Thinking, and removing them from Visible. Nested <thinking>
// is undefined; the first closing tag wins for any open block.
func SplitThinking(raw string) Split {
	lower := strings.ToLower(raw)

	var thinkingParts []string
	var visible strings.Builder

	pos := 0
	for pos < len(raw) {
		openIdx := indexFrom(lower, openTag, pos)
		if openIdx < 0 {
			visible.WriteString(raw[pos:])
			break
		}
		visible.WriteString(raw[pos:openIdx])

		tagEnd := indexFrom(lower, ">", openIdx)
		if tagEnd < 0 {
			// Truncated opening tag: everything from here is an open block.
			return Split{
				Thinking:        strings.Join(thinkingParts, "\n"),
				Visible:         visible.String(),
				HasOpenThinking: true,
			}
		}

		closeIdx := indexFrom(lower, closeTag, tagEnd+1)
		if closeIdx < 0 {
			// Complete opening tag but no close yet: body (if any) from
			// after the opening tag onward is an in-progress thinking block.
			body := raw[tagEnd+1:]
			if body != "" {
				thinkingParts = append(thinkingParts, body)
			}
			return Split{
				Thinking:        strings.Join(thinkingParts, "\n"),
				Visible:         visible.String(),
				HasOpenThinking: true,
			}
		}

		body := raw[tagEnd+1 : closeIdx]
		thinkingParts = append(thinkingParts, body)
		pos = closeIdx + len(closeTag)
	}

	return Split{
		Thinking: strings.Join(thinkingParts, "\n"),
		Visible:  visible.String(),
	}
}

func indexFrom(s, substr string, from int) int {
	if from > len(s) {
		return -1
	}
	idx := strings.Index(s[from:], substr)
	if idx < 0 {
		return -1
	}
	return idx + from
}
