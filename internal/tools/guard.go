package tools

import (
	"regexp"
	"strings"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

// DefaultMaxToolResultSize bounds a single tool result before it re-enters
// the message list (64KB), keeping C5's "history >= 5 messages" sizing
// heuristics meaningful even when a single tool call returns an oversized
// payload.
const DefaultMaxToolResultSize = 64 * 1024

// builtinSecretPatterns are always applied when SanitizeSecrets is set.
// Grounded on internal/agent/tool_result_guard.go's pattern list.
var builtinSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[\w-\.]+`),
	regexp.MustCompile(`(?i)(aws|amazon).*?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`),
	regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

// ToolResultGuard redacts and truncates tool results before they are
// appended to the message history.
type ToolResultGuard struct {
	Enabled         bool
	MaxChars        int
	Denylist        []string
	RedactPatterns  []string
	RedactionText   string
	SanitizeSecrets bool
}

// DefaultGuard returns the guard applied when none is configured: a 64KB cap
// plus builtin secret sanitization.
func DefaultGuard() ToolResultGuard {
	return ToolResultGuard{Enabled: true, MaxChars: DefaultMaxToolResultSize, SanitizeSecrets: true}
}

func (g ToolResultGuard) active() bool {
	return g.Enabled || g.MaxChars > 0 || len(g.Denylist) > 0 || len(g.RedactPatterns) > 0 || g.SanitizeSecrets
}

// Apply redacts and truncates result's text content in place, returning a
// new *models.ToolResult. A nil result is returned unchanged.
func (g ToolResultGuard) Apply(toolName string, result *models.ToolResult) *models.ToolResult {
	if result == nil || !g.active() {
		return result
	}

	if len(g.Denylist) > 0 && matchesAny(g.Denylist, toolName) {
		redacted := strings.TrimSpace(g.RedactionText)
		if redacted == "" {
			redacted = "[REDACTED]"
		}
		return models.TextResult(redacted, result.IsError)
	}

	out := *result
	out.Content = make([]models.ResultContent, len(result.Content))
	copy(out.Content, result.Content)

	for i, c := range out.Content {
		if c.Type != models.ResultContentText {
			continue
		}
		c.Text = g.redactText(c.Text)
		c.Text = g.truncateText(c.Text)
		out.Content[i] = c
	}
	return &out
}

func (g ToolResultGuard) redactText(text string) string {
	if text == "" {
		return text
	}
	redaction := strings.TrimSpace(g.RedactionText)
	if redaction == "" {
		redaction = "[REDACTED]"
	}
	if g.SanitizeSecrets {
		for _, re := range builtinSecretPatterns {
			text = re.ReplaceAllString(text, redaction)
		}
	}
	for _, pattern := range g.RedactPatterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, redaction)
	}
	return text
}

func (g ToolResultGuard) truncateText(text string) string {
	if g.MaxChars <= 0 || len(text) <= g.MaxChars {
		return text
	}
	return text[:g.MaxChars] + "...[truncated]"
}

// DetectSecrets scans content and reports which builtin secret patterns
// matched, for logging/alerting use.
func DetectSecrets(content string) []string {
	if content == "" {
		return nil
	}
	names := []string{"api_key", "bearer_token", "aws_key", "generic_secret", "private_key"}
	var matches []string
	for i, re := range builtinSecretPatterns {
		if re.MatchString(content) {
			matches = append(matches, names[i])
		}
	}
	return matches
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		if strings.HasSuffix(p, "*") && strings.HasPrefix(name, strings.TrimSuffix(p, "*")) {
			return true
		}
	}
	return false
}
