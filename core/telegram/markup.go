package telegram

import tele "gopkg.in/telebot.v4"

// InlineRows builds an inline keyboard from rows of buttons.
func InlineRows(rows ...[]Button) *Keyboard {
	return &Keyboard{Inline: rows}
}

// ReplyRows builds a one-time reply keyboard from rows of labels.
func ReplyRows(rows ...[]string) *Keyboard {
	return &Keyboard{Reply: rows}
}

// RemoveKeyboard returns a markup that hides the custom reply keyboard.
func RemoveKeyboard() *Keyboard {
	return &Keyboard{Remove: true}
}

// ChunkButtons splits a flat list of buttons into rows with up to n buttons per row.
func ChunkButtons(buttons []Button, n int) [][]Button {
	if n <= 1 {
		out := make([][]Button, 0, len(buttons))
		for _, b := range buttons {
			out = append(out, []Button{b})
		}
		return out
	}
	var rows [][]Button
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

// Markup converts the abstract keyboard model into a Telebot reply markup.
func Markup(kb *Keyboard) *tele.ReplyMarkup {
	if kb == nil {
		return nil
	}
	if kb.Remove {
		return &tele.ReplyMarkup{RemoveKeyboard: true}
	}
	if len(kb.Inline) > 0 {
		inline := make([][]tele.InlineButton, len(kb.Inline))
		for i, row := range kb.Inline {
			r := make([]tele.InlineButton, len(row))
			for j, btn := range row {
				r[j] = tele.InlineButton{Text: btn.Text, Data: btn.Data}
			}
			inline[i] = r
		}
		return &tele.ReplyMarkup{InlineKeyboard: inline}
	}
	if len(kb.Reply) > 0 {
		markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
		var keyboard []tele.Row
		for _, row := range kb.Reply {
			var buttons []tele.Btn
			for _, label := range row {
				buttons = append(buttons, markup.Text(label))
			}
			keyboard = append(keyboard, markup.Row(buttons...))
		}
		markup.Reply(keyboard...)
		return markup
	}
	return nil
}
