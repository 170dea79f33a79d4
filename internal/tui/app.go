package tui

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/tradewell/twchat/internal/bus"
	"github.com/tradewell/twchat/internal/cache"
	"github.com/tradewell/twchat/internal/composer"
	"github.com/tradewell/twchat/internal/gateway"
	"github.com/tradewell/twchat/internal/ingest"
	"github.com/tradewell/twchat/internal/live"
	"github.com/tradewell/twchat/internal/model"
	"github.com/tradewell/twchat/internal/outbox"
	"github.com/tradewell/twchat/internal/presence"
	"github.com/tradewell/twchat/internal/status"
	"github.com/tradewell/twchat/internal/timeline"
)

const flashDuration = 5 * time.Second

// Deps carries everything the TUI needs, wired by the app module.
type Deps struct {
	Bus      *bus.Bus
	DB       *cache.DB
	Gateway  *gateway.Client
	Outbox   *outbox.Sender
	Ingest   *ingest.Engine
	Tracker  *presence.Tracker
	Machine  *status.Machine
	Self     model.User
	Session  string
	Location *time.Location
	Logger   *zap.Logger
}

// active bundles the per-conversation engine state. Exactly one
// conversation is open at a time.
type active struct {
	conv  *model.Conversation
	store *timeline.Store
	ctrl  *live.Controller
	comp  *composer.Composer
}

// App is the main TUI application shell.
type App struct {
	deps  Deps
	app   *tview.Application
	pages *tview.Pages
	theme *Theme

	convList  *ConversationList
	thread    *ThreadView
	searchV   *SearchView
	statusBar *StatusBar

	mu     sync.Mutex
	act    *active
	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(deps Deps) *App {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	theme := DefaultTheme()

	a := &App{
		deps:      deps,
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		theme:     theme,
		convList:  NewConversationList(theme),
		thread:    NewThreadView(theme),
		searchV:   NewSearchView(theme),
		statusBar: NewStatusBar(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(deps.Session)
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if id := a.convList.Selected(); id != "" {
			a.open(id)
		}
	})

	a.thread.SetOnDraftChange(func(text string) {
		if comp := a.activeComposer(); comp != nil {
			go comp.SetDraft(a.ctx, text)
		}
	})

	a.thread.SetOnSend(func(string) {
		a.sendDraft()
	})

	a.searchV.SetOnQuery(func(query string) {
		go func() {
			results, err := a.deps.DB.SearchMessages(query, "", 50)
			if err != nil {
				a.notice("Search failed: " + err.Error())
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.searchV.Update(results)
				a.app.SetFocus(a.searchV.Results())
			})
		}()
	})

	a.searchV.Results().SetSelectedFunc(func(row, col int) {
		if convID, _ := a.searchV.SelectedResult(); convID != "" {
			a.open(convID)
		}
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage("conversations", a.convList, true, true)
	a.pages.AddPage("thread", a.thread, true, false)
	a.pages.AddPage("search", a.searchV, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		page, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch page {
			case "thread":
				a.closeActive()
				a.pages.SwitchToPage("conversations")
				a.app.SetFocus(a.convList)
				return nil
			case "search":
				a.pages.SwitchToPage("conversations")
				a.app.SetFocus(a.convList)
				return nil
			}
		}

		// Queue the current draft for background retry after a failed send.
		if page == "thread" && event.Key() == tcell.KeyCtrlQ {
			a.queueDraft()
			return nil
		}

		// Let text input widgets handle all other keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 'q':
				a.Stop()
				return nil
			case 's':
				a.pages.SwitchToPage("search")
				a.app.SetFocus(a.searchV.Input())
				return nil
			case 'i':
				if page == "thread" {
					a.app.SetFocus(a.thread.Input())
					return nil
				}
			}
		}

		return event
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.eventLoop()
	go func() {
		a.refreshConversations()
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetState(a.deps.Machine.Current())
		})
	}()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.closeActive()
	a.cancel()
	a.app.Stop()
}

func (a *App) activeComposer() *composer.Composer {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.act == nil {
		return nil
	}
	return a.act.comp
}

// open loads a conversation snapshot, starts its live controller and
// switches to the thread page. When the gateway is unreachable the cached
// history opens instead; realtime events still apply if the stream comes
// back.
func (a *App) open(conversationID string) {
	go func() {
		conv, err := a.deps.Gateway.Conversation(a.ctx, conversationID)
		if err != nil {
			cached, cerr := a.cachedConversation(conversationID)
			if cerr != nil {
				a.deps.Logger.Warn("no cached history",
					zap.String("conversation_id", conversationID), zap.Error(cerr))
				a.notice("Load failed: " + err.Error())
				return
			}
			a.deps.Logger.Warn("gateway fetch failed, using cached history",
				zap.String("conversation_id", conversationID), zap.Error(err))
			a.notice("Gateway unreachable, showing cached history")
			conv = cached
		} else if err := a.deps.Ingest.IngestConversation(conv, a.deps.Self.ID); err != nil {
			a.deps.Logger.Warn("snapshot ingest failed", zap.Error(err))
		}

		store := timeline.NewStore(a.deps.Logger)
		store.Load(conv.Messages)

		ctrl := live.NewController(conversationID, a.deps.Self.ID, store,
			a.deps.Tracker, a.deps.Bus, a.deps.Gateway, a.deps.Logger)
		if err := ctrl.Start(a.ctx); err != nil {
			a.notice("Subscribe failed: " + err.Error())
			return
		}

		comp := composer.New(conversationID, a.deps.Gateway, a.deps.Gateway, a.deps.Logger)

		a.mu.Lock()
		if a.act != nil {
			a.act.ctrl.Close()
			a.act.comp.Close(a.ctx)
		}
		a.act = &active{conv: conv, store: store, ctrl: ctrl, comp: comp}
		a.mu.Unlock()

		counterparty := conv.Counterparty(a.deps.Self.ID)
		go a.loadPresence(counterparty.ID)

		a.app.QueueUpdateDraw(func() {
			name := counterparty.Name
			if name == "" {
				name = counterparty.ID
			}
			a.thread.SetTitleName(name)
			a.thread.SetDraftText("")
			a.renderThread()
			a.pages.SwitchToPage("thread")
			a.app.SetFocus(a.thread.Input())
		})
	}()
}

// cachedConversation rebuilds a conversation from the local cache.
func (a *App) cachedConversation(conversationID string) (*model.Conversation, error) {
	row, err := a.deps.DB.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.New("conversation not cached")
	}
	rows, err := a.deps.DB.ListMessages(conversationID, 0, historyLimit)
	if err != nil {
		return nil, err
	}
	return conversationFromCache(a.deps.Self, row, rows), nil
}

func (a *App) closeActive() {
	a.mu.Lock()
	act := a.act
	a.act = nil
	a.mu.Unlock()
	if act == nil {
		return
	}
	act.ctrl.Close()
	go act.comp.Close(a.ctx)
	a.statusBar.SetPresence(nil)
}

func (a *App) loadPresence(userID string) {
	p, err := a.deps.Gateway.Presence(a.ctx, userID)
	if err != nil {
		a.deps.Logger.Warn("presence fetch failed", zap.String("user", userID), zap.Error(err))
		return
	}
	a.deps.Tracker.SetPresence(p)
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetPresence(&p)
	})
}

func (a *App) sendDraft() {
	comp := a.activeComposer()
	if comp == nil {
		return
	}
	go func() {
		msg, err := comp.Send(a.ctx, nil)
		if err != nil {
			if !errors.Is(err, composer.ErrEmptyDraft) {
				a.notice("Send failed: " + err.Error() + " (Ctrl-Q to retry in background)")
			}
			return
		}

		a.mu.Lock()
		act := a.act
		a.mu.Unlock()
		if act != nil && act.comp == comp {
			if err := act.store.Upsert(*msg); err != nil {
				a.deps.Logger.Warn("upsert sent message", zap.Error(err))
			}
		}
		if err := a.deps.Ingest.IngestMessage(msg); err != nil {
			a.deps.Logger.Warn("cache sent message", zap.Error(err))
		}

		a.app.QueueUpdateDraw(func() {
			a.thread.SetDraftText(comp.Draft())
			a.renderThread()
		})
	}()
}

// queueDraft hands the current draft to the outbox and clears it. Used
// when a direct send failed and the user wants background delivery.
func (a *App) queueDraft() {
	a.mu.Lock()
	act := a.act
	a.mu.Unlock()
	if act == nil {
		return
	}
	text := act.comp.Draft()
	if text == "" {
		return
	}
	if _, err := a.deps.Outbox.Queue(act.conv.ID, text); err != nil {
		a.notice("Queue failed: " + err.Error())
		return
	}
	go act.comp.SetDraft(a.ctx, "")
	a.notice("Queued for delivery")
	a.thread.SetDraftText("")
}

// eventLoop applies bus events to the views.
func (a *App) eventLoop() {
	events, cancel := a.deps.Bus.Subscribe("", 256)
	defer cancel()

	for {
		select {
		case <-a.ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.handleEvent(evt)
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindConnStatus:
		change, ok := evt.Payload.(status.Change)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetState(change.To)
		})

	case bus.KindTimelineUpdated, bus.KindTypingChanged:
		convID, _ := evt.Payload.(string)
		a.mu.Lock()
		matches := a.act != nil && a.act.conv.ID == convID
		a.mu.Unlock()
		if matches {
			a.app.QueueUpdateDraw(a.renderThread)
		}

	case bus.KindPresenceChanged:
		userID, _ := evt.Payload.(string)
		a.mu.Lock()
		var counterparty model.User
		if a.act != nil {
			counterparty = a.act.conv.Counterparty(a.deps.Self.ID)
		}
		a.mu.Unlock()
		if counterparty.ID != "" && counterparty.ID == userID {
			if p, ok := a.deps.Tracker.Presence(userID); ok {
				a.app.QueueUpdateDraw(func() {
					a.statusBar.SetPresence(&p)
				})
			}
		}

	case bus.KindCacheMessage:
		a.refreshConversations()

	case bus.KindSendAck:
		a.notice("Message delivered")

	case bus.KindSendFailed:
		res, _ := evt.Payload.(bus.SendResult)
		a.notice("Background send failed: " + res.Err)
	}
}

// renderThread projects the active store and repaints the thread page.
// Must run on the tview event loop.
func (a *App) renderThread() {
	a.mu.Lock()
	act := a.act
	a.mu.Unlock()
	if act == nil {
		return
	}

	items := timeline.Project(act.store.Messages(), a.deps.Self.ID, timeline.Options{
		Location: a.deps.Location,
		Logger:   a.deps.Logger,
	})
	a.thread.Update(items)

	typingName := ""
	if userID, ok := a.deps.Tracker.Typing(act.conv.ID); ok && userID != a.deps.Self.ID {
		counterparty := act.conv.Counterparty(a.deps.Self.ID)
		typingName = counterparty.Name
		if typingName == "" {
			typingName = userID
		}
	}
	a.thread.SetTypingUser(typingName)
}

func (a *App) refreshConversations() {
	convs, err := a.deps.DB.ListConversations(100, 0)
	if err != nil {
		a.deps.Logger.Warn("list conversations", zap.Error(err))
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.convList.Update(convs)
	})
}

// notice posts a transient status-bar message from any goroutine.
func (a *App) notice(msg string) {
	a.statusBar.Notice(msg, flashDuration)
	a.app.QueueUpdateDraw(a.statusBar.Refresh)
}
