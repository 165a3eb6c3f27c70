package planner

import (
	"strings"
	"testing"
)

func TestParseMarkupWellFormed(t *testing.T) {
	doc := `<plan><name>Deploy</name><thought>ship it</thought><task>Deploy the service</task>` +
		`<nodes><node>build</node><node>push</node></nodes></plan>`

	name, thought, description, nodes, subtasks := ParseMarkup(doc)
	if name != "Deploy" {
		t.Fatalf("name = %q", name)
	}
	if thought != "ship it" {
		t.Fatalf("thought = %q", thought)
	}
	if description != "Deploy the service" {
		t.Fatalf("description = %q", description)
	}
	if len(nodes) != 2 || nodes[0].Text != "build" || nodes[1].Text != "push" {
		t.Fatalf("nodes = %+v", nodes)
	}
	if len(subtasks) != 0 {
		t.Fatalf("subtasks = %v", subtasks)
	}
}

func TestParseMarkupForEachAndWatch(t *testing.T) {
	doc := `<plan><task>iterate</task><nodes>` +
		`<forEach><items>- a
- b</items><node>process item</node></forEach>` +
		`<watch><event>file_change</event><loop>true</loop><description>watch dir</description><node>react</node></watch>` +
		`</nodes></plan>`

	_, _, _, nodes, _ := ParseMarkup(doc)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	fe := nodes[0]
	if fe.Kind != "for_each" || len(fe.Items) != 2 || fe.Items[0] != "a" || fe.Items[1] != "b" {
		t.Fatalf("forEach = %+v", fe)
	}
	if len(fe.InnerNodes) != 1 || fe.InnerNodes[0].Text != "process item" {
		t.Fatalf("forEach inner = %+v", fe.InnerNodes)
	}
	w := nodes[1]
	if w.Kind != "watch" || w.EventKind != "file_change" || !w.Loop || w.Description != "watch dir" {
		t.Fatalf("watch = %+v", w)
	}
	if len(w.TriggerNodes) != 1 || w.TriggerNodes[0].Text != "react" {
		t.Fatalf("watch triggers = %+v", w.TriggerNodes)
	}
}

func TestParseMarkupSubtasks(t *testing.T) {
	doc := `<plan><task>root</task><nodes></nodes><subtasks>` +
		`<task><name>A</name><task>leaf A</task><nodes><node>x</node></nodes></task>` +
		`<task><name>B</name><task>leaf B</task><nodes></nodes></task>` +
		`</subtasks></plan>`

	_, _, _, _, subtasks := ParseMarkup(doc)
	if len(subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d: %v", len(subtasks), subtasks)
	}
}

func TestParseMarkupTruncatedMidStream(t *testing.T) {
	// Truncated mid-tag (no closing '>' yet), as a streaming renderer would
	// see partway through a chunk.
	doc := `<plan><name kind="x`
	name, _, _, _, _ := ParseMarkup(doc)
	if name != "" {
		t.Fatalf("expected empty name for an unterminated opening tag, got %q", name)
	}

	doc2 := `<plan><name>Deploy</name><thought>shi`
	name2, thought2, _, _, _ := ParseMarkup(doc2)
	if name2 != "Deploy" {
		t.Fatalf("name2 = %q", name2)
	}
	// The open <thought> element has no closing tag yet; normalize appends
	// the missing closing tags before parsing, so the partial text is
	// returned as the thought, which is acceptable for a mid-stream
	// progressive render.
	if thought2 != "shi" {
		t.Fatalf("thought2 = %q", thought2)
	}
}

func TestNormalizeBalancesOpenTags(t *testing.T) {
	raw := `<plan><nodes><node>a</node><node>b`
	out := normalize(raw)
	if got := strings.Count(out, "</nodes>"); got != 1 {
		t.Fatalf("expected balanced </nodes>, got %d in %q", got, out)
	}
	if got := strings.Count(out, "</plan>"); got != 1 {
		t.Fatalf("expected balanced </plan>, got %d in %q", got, out)
	}
}
