package teams

import "strings"

// RemoveRecipientMention returns the activity text without the mentions of
// the bot itself.
func RemoveRecipientMention(a Activity) string {
	text := a.Text
	for _, e := range a.Entities {
		if e.Type != "mention" || e.Mentioned == nil || e.Mentioned.ID != a.Recipient.ID || e.Text == "" {
			continue
		}
		text = strings.ReplaceAll(text, e.Text, "")
	}
	return text
}

// Command normalizes a message into the bot command it carries.
func Command(a Activity) string {
	text := RemoveRecipientMention(a)
	text = strings.NewReplacer("\r", "", "\n", "").Replace(text)
	return strings.TrimSpace(strings.ToLower(text))
}
