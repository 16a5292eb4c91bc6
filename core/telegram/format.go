package telegram

import "strings"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// EscapeHTML escapes user-provided text for Telegram HTML parse mode.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
