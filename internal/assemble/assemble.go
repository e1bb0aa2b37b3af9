// Package assemble renders prompt templates and builds the final message
// list sent to a provider. Templates use single-brace {placeholder}
// tokens; {user_input} is reserved for the latest user message.
package assemble

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// UserInputToken is the reserved placeholder for the latest user message.
const UserInputToken = "user_input"

var placeholderRegex = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Render substitutes {placeholder} tokens in template with values from
// vars, and {user_input} with userInput. A token is replaced whenever
// its key exists in vars, even when the value is empty. Tokens with no
// matching key stay literal. Render is pure: same inputs, same output.
func Render(template string, vars map[string]string, userInput string) string {
	return placeholderRegex.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if name == UserInputToken {
			return userInput
		}
		if val, ok := vars[name]; ok {
			return val
		}
		log.Warn().Str("placeholder", name).Msg("Template placeholder has no tool output, left literal")
		return tok
	})
}

// ExtractPlaceholders returns the distinct placeholder names in template,
// in first-appearance order, excluding {user_input}.
func ExtractPlaceholders(template string) []string {
	matches := placeholderRegex.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool)
	var names []string
	for _, m := range matches {
		if m[1] == UserInputToken || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// Messages builds the provider-bound message list: system prompt first
// (when present), conversation history in order, and the latest user
// message replaced by the rendered template. When the assistant has no
// template the history passes through untouched.
func Messages(assistant *models.AssistantConfig, history []models.Message, vars map[string]string) []models.Message {
	out := make([]models.Message, 0, len(history)+1)
	if sp := strings.TrimSpace(assistant.SystemPrompt); sp != "" {
		out = append(out, models.Message{Role: "system", Content: sp})
	}

	if assistant.PromptTemplate == "" {
		return append(out, history...)
	}

	last := lastUserIndex(history)
	for i, msg := range history {
		if i != last {
			out = append(out, msg)
			continue
		}
		rendered := Render(assistant.PromptTemplate, vars, msg.TextContent())
		final := models.Message{Role: msg.Role, Content: rendered}
		// Image parts survive template rendering so vision requests keep
		// their attachments.
		if msg.HasImages() {
			final.Content = ""
			final.Parts = rewriteTextParts(msg.Parts, rendered)
		}
		out = append(out, final)
	}
	return out
}

// rewriteTextParts replaces the text parts of a multimodal message with
// a single rendered text part, keeping image parts in place.
func rewriteTextParts(parts []models.ContentPart, rendered string) []models.ContentPart {
	out := []models.ContentPart{{Type: "text", Text: rendered}}
	for _, p := range parts {
		if p.Type == "image" {
			out = append(out, p)
		}
	}
	return out
}

func lastUserIndex(history []models.Message) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return i
		}
	}
	return -1
}

// LastUserText returns the text content of the most recent user message.
func LastUserText(history []models.Message) string {
	if i := lastUserIndex(history); i >= 0 {
		return history[i].TextContent()
	}
	return ""
}
