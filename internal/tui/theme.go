package tui

import "github.com/gdamore/tcell/v2"

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TableHeaderFg    tcell.Color
	TableCursorFg    tcell.Color
	TableCursorBg    tcell.Color
	TitleColor       tcell.Color
	DividerColor     tcell.Color
	SelfColor        tcell.Color
	PeerColor        tcell.Color
	MutedColor       tcell.Color
}

// DefaultTheme returns the default dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorCadetBlue,
		BorderColor:      tcell.ColorDodgerBlue,
		BorderFocusColor: tcell.ColorLightSkyBlue,
		TableHeaderFg:    tcell.ColorWhite,
		TableCursorFg:    tcell.ColorBlack,
		TableCursorBg:    tcell.ColorAqua,
		TitleColor:       tcell.ColorFuchsia,
		DividerColor:     tcell.ColorGray,
		SelfColor:        tcell.ColorPaleGreen,
		PeerColor:        tcell.ColorLightSkyBlue,
		MutedColor:       tcell.ColorGray,
	}
}
