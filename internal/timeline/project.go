package timeline

import (
	"sort"
	"time"

	"github.com/tradewell/twchat/internal/model"
	"go.uber.org/zap"
)

// GroupingWindow is the maximum gap between two messages from the same
// sender for them to render as one visual group.
const GroupingWindow = 60 * time.Second

// DateLabelFormat is the day-granularity label rendered on date dividers.
const DateLabelFormat = "January 2, 2006"

// ItemKind discriminates the two projection entry types.
type ItemKind int

const (
	ItemDateDivider ItemKind = iota
	ItemMessage
)

// DisplayItem is one entry of the display-ready timeline: either a date
// divider or a message with its derived grouping flags. Items are ephemeral;
// the projection is recomputed whenever the store changes.
type DisplayItem struct {
	Kind      ItemKind
	DateLabel string

	Message       model.Message
	IsCurrentUser bool
	IsLastInGroup bool
	ShowAvatar    bool
}

// Options tunes the projection. The zero value uses GroupingWindow, the
// local time zone and no logging.
type Options struct {
	GroupingWindow time.Duration
	Location       *time.Location
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.GroupingWindow <= 0 {
		o.GroupingWindow = GroupingWindow
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Project transforms a flat message list into the ordered divider/message
// sequence the thread view renders. It never fails: unsorted input is
// sorted, and messages with an unknown timestamp sort last and are logged
// instead of dropped.
//
// A divider is emitted before the first message of every calendar day.
// IsLastInGroup is computed against the *next* message: true when there is
// none, the sender changes, or the gap exceeds the grouping window.
// ShowAvatar marks the last message of an incoming group, which is where
// chat UIs render the counterparty's avatar.
func Project(messages []model.Message, currentUserID string, opts Options) []DisplayItem {
	opts = opts.withDefaults()

	msgs := make([]model.Message, len(messages))
	copy(msgs, messages)
	sort.SliceStable(msgs, func(i, j int) bool { return before(&msgs[i], &msgs[j]) })

	items := make([]DisplayItem, 0, len(msgs)+1)
	lastDateLabel := ""

	for i := range msgs {
		m := &msgs[i]

		if m.CreatedAt.IsZero() {
			opts.Logger.Warn("message has no timestamp, rendering at end of timeline",
				zap.String("message_id", m.ID))
		} else {
			label := m.CreatedAt.In(opts.Location).Format(DateLabelFormat)
			if label != lastDateLabel {
				items = append(items, DisplayItem{Kind: ItemDateDivider, DateLabel: label})
				lastDateLabel = label
			}
		}

		isCurrent := m.Sender.ID == currentUserID
		last := true
		if i+1 < len(msgs) {
			next := &msgs[i+1]
			sameSender := next.Sender.ID == m.Sender.ID
			withinWindow := !m.CreatedAt.IsZero() && !next.CreatedAt.IsZero() &&
				next.CreatedAt.Sub(m.CreatedAt) <= opts.GroupingWindow
			last = !sameSender || !withinWindow
		}

		items = append(items, DisplayItem{
			Kind:          ItemMessage,
			Message:       *m,
			IsCurrentUser: isCurrent,
			IsLastInGroup: last,
			ShowAvatar:    !isCurrent && last,
		})
	}

	return items
}
