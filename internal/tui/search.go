package tui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tradewell/twchat/internal/cache"
)

// SearchView provides full-text message search over the local cache.
type SearchView struct {
	*tview.Flex
	theme   *Theme
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	data    []cache.SearchResult
}

// NewSearchView creates the search view.
func NewSearchView(theme *Theme) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
	}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil {
			sv.onQuery(input.GetText())
		}
	})

	return sv
}

// SetOnQuery sets the callback when a search query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
}

// Update refreshes the results table.
func (sv *SearchView) Update(results []cache.SearchResult) {
	sv.data = results
	sv.results.Clear()

	headers := []string{" SENDER", " SNIPPET", " TIME"}
	for col, h := range headers {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold))
	}

	for i, r := range results {
		row := i + 1
		sender := r.Message.SenderName
		if sender == "" {
			sender = r.Message.SenderID
		}
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(sender))).SetMaxWidth(25).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(r.Snippet))).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+formatListTime(r.Message.CreatedAt)).SetMaxWidth(12).SetTextColor(sv.theme.FgColor))
	}
}

// SelectedResult returns the conversation and message ID of the selected
// row, or empty strings.
func (sv *SearchView) SelectedResult() (conversationID, msgID string) {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(sv.data) {
		return sv.data[idx].Message.ConversationID, sv.data[idx].Message.MsgID
	}
	return "", ""
}

// Input returns the search input field.
func (sv *SearchView) Input() *tview.InputField { return sv.input }

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table { return sv.results }
