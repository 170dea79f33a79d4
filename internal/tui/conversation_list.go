package tui

import (
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tradewell/twchat/internal/cache"
)

// ConversationList is the conversation overview table.
type ConversationList struct {
	*tview.Table
	theme *Theme
	convs []cache.Conversation
}

// NewConversationList creates the conversation table.
func NewConversationList(theme *Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Conversations ")
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitleColor(theme.TitleColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	return &ConversationList{Table: table, theme: theme}
}

// Update refreshes the table with cached conversation rows.
func (cl *ConversationList) Update(convs []cache.Conversation) {
	cl.convs = convs
	cl.Clear()

	headers := []string{" Counterparty", " Last Message", " Time"}
	for i, h := range headers {
		cl.SetCell(0, i, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg))
	}

	for i, c := range convs {
		row := i + 1
		name := c.CounterpartyName
		if name == "" {
			name = c.CounterpartyID
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+sanitizeForTerminal(name)).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+sanitizeForTerminal(c.LastMessagePreview)).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatListTime(c.LastMessageAt)).SetMaxWidth(12))
	}
}

// Selected returns the conversation ID under the cursor, or "".
func (cl *ConversationList) Selected() string {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.convs) {
		return cl.convs[idx].ID
	}
	return ""
}

func formatListTime(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
