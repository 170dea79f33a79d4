package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"

	"github.com/tradewell/twchat/internal/model"
	"github.com/tradewell/twchat/internal/status"
)

// StatusBar displays session name, connection state, counterparty presence
// and a transient notice line. Notices come from background goroutines
// (send results, fetch failures), so their state is guarded and expired
// here rather than in the callers.
type StatusBar struct {
	*tview.TextView
	session  string
	state    status.State
	presence string

	mu          sync.Mutex
	notice      string
	noticeUntil time.Time
}

// NewStatusBar creates the status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv, state: status.Booting}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(s status.State) {
	sb.state = s
	sb.render()
}

// SetPresence shows the active counterparty's presence, or clears it when
// p is nil.
func (sb *StatusBar) SetPresence(p *model.Presence) {
	if p == nil {
		sb.presence = ""
	} else if p.IsOnline {
		sb.presence = "[green]online[-]"
	} else if p.LastSeen != nil {
		sb.presence = "last seen " + p.LastSeen.Local().Format("15:04")
	} else {
		sb.presence = "offline"
	}
	sb.render()
}

// Notice stores a transient message shown until d elapses. Safe to call
// from any goroutine; the bar repaints on the next Refresh.
func (sb *StatusBar) Notice(msg string, d time.Duration) {
	sb.mu.Lock()
	sb.notice = msg
	sb.noticeUntil = time.Now().Add(d)
	sb.mu.Unlock()
}

// Refresh repaints the bar, dropping an expired notice. Must run on the
// tview event loop.
func (sb *StatusBar) Refresh() {
	sb.render()
}

func (sb *StatusBar) currentNotice() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if time.Now().After(sb.noticeUntil) {
		return ""
	}
	return sb.notice
}

func (sb *StatusBar) render() {
	sb.Clear()

	stateColor := "yellow"
	switch sb.state {
	case status.Ready:
		stateColor = "green"
	case status.Error:
		stateColor = "red"
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-]", sb.session, stateColor, sb.state)
	if sb.presence != "" {
		line += " | " + sb.presence
	}
	line += " | " + time.Now().Format("15:04")
	if notice := sb.currentNotice(); notice != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", notice)
	}

	fmt.Fprint(sb, line)
}
