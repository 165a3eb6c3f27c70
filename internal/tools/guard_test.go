package tools

import (
	"testing"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

func TestGuardTruncatesLongResults(t *testing.T) {
	g := ToolResultGuard{Enabled: true, MaxChars: 5}
	result := models.TextResult("0123456789", false)
	out := g.Apply("anytool", result)
	if out.JoinedText() != "01234...[truncated]" {
		t.Fatalf("got %q", out.JoinedText())
	}
}

func TestGuardRedactsSecrets(t *testing.T) {
	g := ToolResultGuard{Enabled: true, SanitizeSecrets: true}
	result := models.TextResult("api_key=abcdefghijklmnopqrstuvwxyz", false)
	out := g.Apply("anytool", result)
	if out.JoinedText() == result.JoinedText() {
		t.Fatal("expected secret to be redacted")
	}
}

func TestGuardDenylistRedactsWholeResult(t *testing.T) {
	g := ToolResultGuard{Enabled: true, Denylist: []string{"danger_tool"}}
	result := models.TextResult("sensitive output", false)
	out := g.Apply("danger_tool", result)
	if out.JoinedText() != "[REDACTED]" {
		t.Fatalf("got %q", out.JoinedText())
	}
}

func TestGuardInactiveNoopsResult(t *testing.T) {
	g := ToolResultGuard{}
	result := models.TextResult("unchanged", false)
	out := g.Apply("anytool", result)
	if out.JoinedText() != "unchanged" {
		t.Fatal("inactive guard must not mutate the result")
	}
}

func TestDetectSecretsReportsMatches(t *testing.T) {
	matches := DetectSecrets("password=supersecretvalue")
	if len(matches) == 0 {
		t.Fatal("expected at least one secret match")
	}
}
