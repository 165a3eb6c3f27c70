package models

import "time"

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusInit    TaskStatus = "init"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusError   TaskStatus = "error"
	TaskStatusAborted TaskStatus = "aborted"
	TaskStatusPaused  TaskStatus = "paused"
)

// NodeKind discriminates the tagged variants of a TaskNode.
type NodeKind string

const (
	NodeKindText    NodeKind = "text"
	NodeKindForEach NodeKind = "for_each"
	NodeKindWatch   NodeKind = "watch"
)

// TaskNode is a single step in a Task's planned node sequence. Exactly the
// fields relevant to Kind are populated; created by the planner and never
// mutated afterward except by replan/tree-edit operations.
type TaskNode struct {
	Kind NodeKind `json:"kind"`

	// NodeKindText
	Text string `json:"text,omitempty"`

	// NodeKindForEach
	Items      []string   `json:"items,omitempty"`
	InnerNodes []TaskNode `json:"inner_nodes,omitempty"`

	// NodeKindWatch
	EventKind    string     `json:"event_kind,omitempty"`
	Loop         bool       `json:"loop,omitempty"`
	Description  string     `json:"description,omitempty"`
	TriggerNodes []TaskNode `json:"trigger_nodes,omitempty"`
}

// Clone returns a deep copy of the node, including nested node sequences.
func (n TaskNode) Clone() TaskNode {
	out := n
	if n.Items != nil {
		out.Items = append([]string(nil), n.Items...)
	}
	if n.InnerNodes != nil {
		out.InnerNodes = cloneNodes(n.InnerNodes)
	}
	if n.TriggerNodes != nil {
		out.TriggerNodes = cloneNodes(n.TriggerNodes)
	}
	return out
}

func cloneNodes(nodes []TaskNode) []TaskNode {
	out := make([]TaskNode, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// HasForEach reports whether the node tree contains a ForEach node, the
// trigger condition for the iteration-counter auto-tool (spec §4.6/§6).
func HasForEach(nodes []TaskNode) bool {
	for _, n := range nodes {
		if n.Kind == NodeKindForEach {
			return true
		}
		if HasForEach(n.InnerNodes) {
			return true
		}
	}
	return false
}

// HasWatch reports whether the node tree contains a Watch node, the trigger
// condition for the DOM-change-watcher auto-tool.
func HasWatch(nodes []TaskNode) bool {
	for _, n := range nodes {
		if n.Kind == NodeKindWatch {
			return true
		}
		if HasWatch(n.InnerNodes) {
			return true
		}
	}
	return false
}

// Task is a unit of planned work: a markup document, its parsed node
// sequence, and its position in the orchestrator's task tree.
//
// Invariant: RootID equals ID for a root task, or the RootID of its parent
// otherwise. Invariant: within any parent's Children, ids are in the order
// the children were inserted.
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Thought     string     `json:"thought"`
	Description string     `json:"description"`
	Prompt      string     `json:"prompt"`
	Status      TaskStatus `json:"status"`
	Markup      string     `json:"markup"`
	Nodes       []TaskNode `json:"nodes"`

	ParentID string   `json:"parent_id,omitempty"`
	RootID   string   `json:"root_id"`
	Children []string `json:"children,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask constructs a root task (RootID == ID) in TaskStatusInit.
func NewTask(id, prompt string) *Task {
	now := time.Now()
	return &Task{
		ID:        id,
		Prompt:    prompt,
		Status:    TaskStatusInit,
		RootID:    id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so the orchestrator can hand out snapshots
// without leaking a reference the agent loop could mutate concurrently.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.Nodes = cloneNodes(t.Nodes)
	if t.Children != nil {
		out.Children = append([]string(nil), t.Children...)
	}
	return &out
}

// AddChild appends a child id, preserving insertion order.
func (t *Task) AddChild(id string) {
	t.Children = append(t.Children, id)
	t.UpdatedAt = time.Now()
}

// RemoveChild removes a child id if present, preserving order of the rest.
func (t *Task) RemoveChild(id string) bool {
	for i, c := range t.Children {
		if c == id {
			t.Children = append(t.Children[:i], t.Children[i+1:]...)
			t.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}
