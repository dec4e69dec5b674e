package bot

import (
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"

	"edumate/internal/assistant"
	"edumate/internal/domain"
	"edumate/internal/markdown"
	"edumate/internal/preset"
)

const (
	// Escaping at most doubles the length of a part.
	resultPartRunes = markdown.MaxMessageLength/2 - 100

	historyTimeLayout = "2006-01-02 15:04"

	presetsKeyboardRowSize = 2
	presetCallbackPrefix   = "preset_"
)

// parseCommand splits "/cmd@bot args" into a lowercase command without the
// bot mention and trimmed arguments. ok is false for plain text.
func parseCommand(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	command, args, _ := strings.Cut(text, " ")
	command, _, _ = strings.Cut(command, "@")

	return strings.ToLower(command), strings.TrimSpace(args), true
}

func progressText(completed, total int) string {
	return fmt.Sprintf("⏳ Analyzing part %d/%d\\.\\.\\.", completed, total)
}

// resultMessages renders an outcome as one or more MarkdownV2 messages.
func resultMessages(outcome *assistant.Outcome) []string {
	var header strings.Builder

	header.WriteString("📘 ")
	header.WriteString(markdown.Bold(outcome.Source))
	header.WriteString(" · ")
	header.WriteString(markdown.Italic(outcome.Preset))

	if outcome.Cached {
		header.WriteString(" \\(cached\\)")
	}

	if failed := len(outcome.FailedChunks); failed > 0 {
		header.WriteString(fmt.Sprintf("\n⚠️ %d of %d parts could not be analyzed\\.", failed, outcome.TotalChunks))
	}

	parts := markdown.Split(outcome.Rendered, resultPartRunes)
	messages := make([]string, 0, len(parts))

	for i, part := range parts {
		text := markdown.EscapeV2(part)
		if i == 0 {
			text = header.String() + "\n\n" + text
		}
		messages = append(messages, text)
	}

	return messages
}

// chatMessages renders a tutor reply as one or more MarkdownV2 messages.
func chatMessages(reply string) []string {
	parts := markdown.Split(reply, resultPartRunes)
	messages := make([]string, 0, len(parts))

	for _, part := range parts {
		messages = append(messages, markdown.EscapeV2(part))
	}

	return messages
}

func presetsText(presets []*preset.Preset, current string) string {
	var b strings.Builder

	b.WriteString("*📚 Presets*\n\n")

	for _, p := range presets {
		marker := "▫️"
		if p.Name == current {
			marker = "✅"
		}

		b.WriteString(fmt.Sprintf("%s %s %s\n%s\n\n",
			marker,
			markdown.Code(p.Name),
			markdown.Bold(p.Title),
			markdown.EscapeV2(p.Description)))
	}

	b.WriteString("Choose one below or send /preset \\<name\\>\\.")

	return b.String()
}

func presetsKeyboard(presets []*preset.Preset) [][]models.InlineKeyboardButton {
	var keyboard [][]models.InlineKeyboardButton

	for i := 0; i < len(presets); i += presetsKeyboardRowSize {
		var row []models.InlineKeyboardButton

		for _, p := range presets[i:min(i+presetsKeyboardRowSize, len(presets))] {
			row = append(row, models.InlineKeyboardButton{
				Text:         p.Title,
				CallbackData: presetCallbackPrefix + p.Name,
			})
		}

		keyboard = append(keyboard, row)
	}

	return keyboard
}

func historyText(records []domain.SummaryRecord) string {
	if len(records) == 0 {
		return "✖️ History is empty\\."
	}

	var b strings.Builder

	b.WriteString(fmt.Sprintf("🕘 *Last %d summaries:*\n\n", len(records)))

	for _, r := range records {
		status := "✅"
		if r.Status == domain.SummaryStatusFailed {
			status = "❌"
		}

		b.WriteString(fmt.Sprintf("%s %s %s · %s · %s\n",
			status,
			markdown.Code(fmt.Sprintf("#%d", r.ID)),
			markdown.EscapeV2(r.Source),
			markdown.Italic(r.Preset),
			markdown.EscapeV2(r.CreatedAt.UTC().Format(historyTimeLayout))))
	}

	b.WriteString("\nSend /forget \\<id\\> to delete a record\\.")

	return b.String()
}

// errorText explains a failed request to the user.
func errorText(err error) string {
	switch assistant.Classify(err) {
	case assistant.KindBusy:
		return "⏳ Still working on your previous request\\. Please wait for it to finish\\."
	case assistant.KindInvalid:
		return "❌ " + markdown.EscapeV2(err.Error())
	case assistant.KindNotFound:
		return "✖️ " + markdown.EscapeV2(err.Error())
	case assistant.KindUpstream:
		return "❌ " + markdown.EscapeV2(err.Error()) +
			"\n\nCheck the language model settings with /settings and try again\\."
	default:
		return "❌ Failed\\."
	}
}
