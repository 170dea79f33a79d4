package tui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tradewell/twchat/internal/timeline"
)

// ThreadView displays one conversation: the projected timeline, a typing
// indicator line and the draft input.
type ThreadView struct {
	*tview.Flex
	theme    *Theme
	messages *tview.TextView
	typing   *tview.TextView
	input    *tview.InputField

	onSend  func(text string)
	onDraft func(text string)
}

// NewThreadView creates the conversation view.
func NewThreadView(theme *Theme) *ThreadView {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	typing := tview.NewTextView().SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)

	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	input.SetBorder(true)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetTitle(" Compose (i to focus) ")
	input.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(typing, 1, 0, false).
		AddItem(input, 3, 0, false)

	tv := &ThreadView{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		typing:   typing,
		input:    input,
	}

	input.SetChangedFunc(func(text string) {
		if tv.onDraft != nil {
			tv.onDraft(text)
		}
	})
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && tv.onSend != nil {
			tv.onSend(input.GetText())
		}
	})

	return tv
}

// Input exposes the draft field for focus handling.
func (tv *ThreadView) Input() *tview.InputField { return tv.input }

// SetOnSend sets the callback for a finished draft.
func (tv *ThreadView) SetOnSend(fn func(text string)) { tv.onSend = fn }

// SetOnDraftChange sets the callback for every draft edit.
func (tv *ThreadView) SetOnDraftChange(fn func(text string)) { tv.onDraft = fn }

// SetTitleName updates the border title with the counterparty name.
func (tv *ThreadView) SetTitleName(name string) {
	tv.messages.SetTitle(fmt.Sprintf(" %s ", sanitizeForTerminal(name)))
}

// SetDraftText replaces the input text without firing the changed callback.
func (tv *ThreadView) SetDraftText(text string) {
	changed := tv.onDraft
	tv.onDraft = nil
	tv.input.SetText(text)
	tv.onDraft = changed
}

// SetTypingUser shows or clears the typing indicator line.
func (tv *ThreadView) SetTypingUser(name string) {
	tv.typing.Clear()
	if name != "" {
		fmt.Fprintf(tv.typing, " [gray::d]%s is typing...[-:-:-]", sanitizeForTerminal(name))
	}
}

// Update re-renders the projected timeline.
func (tv *ThreadView) Update(items []timeline.DisplayItem) {
	tv.messages.Clear()

	for _, it := range items {
		switch it.Kind {
		case timeline.ItemDateDivider:
			fmt.Fprintf(tv.messages, "\n[gray]── %s ──[-]\n\n", it.DateLabel)
		case timeline.ItemMessage:
			tv.renderMessage(it)
		}
	}

	tv.messages.ScrollToEnd()
}

func (tv *ThreadView) renderMessage(it timeline.DisplayItem) {
	m := it.Message

	name := m.Sender.Name
	if name == "" {
		name = m.Sender.ID
	}
	color := "skyblue"
	if it.IsCurrentUser {
		name = "You"
		color = "palegreen"
	}

	ts := ""
	if !m.CreatedAt.IsZero() {
		ts = m.CreatedAt.Format("15:04")
	}

	fmt.Fprintf(tv.messages, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n", color, sanitizeForTerminal(name), ts)
	if m.Body != "" {
		fmt.Fprintf(tv.messages, "%s\n", sanitizeForTerminal(m.Body))
	}
	for _, a := range m.Attachments {
		label := a.FileName
		if label == "" {
			label = a.ID
		}
		fmt.Fprintf(tv.messages, "[::d][attachment] %s[-:-:-]\n", sanitizeForTerminal(label))
	}
	if it.ShowAvatar {
		fmt.Fprintf(tv.messages, "[::d](%s)[-:-:-]\n", avatarInitial(name))
	}
	if it.IsLastInGroup {
		fmt.Fprint(tv.messages, "\n")
	}
}

func avatarInitial(name string) string {
	for _, r := range name {
		return string(r)
	}
	return "?"
}
