package timeline

import (
	"sort"
	"sync"

	"github.com/tradewell/twchat/internal/model"
	"go.uber.org/zap"
)

// Store holds the authoritative, deduplicated, chronologically ordered
// message list for one conversation. It is fed once by Load (fetch or
// refetch) and patched by Upsert as realtime events arrive.
type Store struct {
	mu   sync.RWMutex
	msgs []model.Message

	logger *zap.Logger
}

// NewStore creates an empty store. logger may be nil.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger}
}

// before reports whether a sorts before b. Order is ascending by creation
// time with ties broken by ID so iteration is deterministic. Messages with
// an unknown (zero) timestamp sort after everything else; they are kept
// rather than dropped because dropping would lose user content.
func before(a, b *model.Message) bool {
	az, bz := a.CreatedAt.IsZero(), b.CreatedAt.IsZero()
	switch {
	case az != bz:
		return bz
	case !az && !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.Before(b.CreatedAt)
	default:
		return a.ID < b.ID
	}
}

// Load replaces the store content with a fetched snapshot. The snapshot wins
// for any message ID it contains; messages already in the store but absent
// from the snapshot are retained, so a realtime message that raced the fetch
// is never dropped. Duplicate IDs inside the snapshot collapse, last wins.
func (s *Store) Load(snapshot []model.Message) {
	byID := make(map[string]model.Message, len(snapshot))
	for _, m := range snapshot {
		if err := m.Validate(); err != nil {
			s.logger.Warn("dropping invalid message from snapshot", zap.Error(err))
			continue
		}
		byID[m.ID] = m
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]model.Message, 0, len(byID)+len(s.msgs))
	for _, m := range byID {
		merged = append(merged, m)
	}
	for _, m := range s.msgs {
		if _, ok := byID[m.ID]; !ok {
			merged = append(merged, m)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return before(&merged[i], &merged[j]) })
	s.msgs = merged
}

// Upsert inserts the message, or replaces the stored copy with the same ID.
// Sort order is maintained by repositioning only the affected message.
func (s *Store) Upsert(m model.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.msgs {
		if s.msgs[i].ID == m.ID {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			break
		}
	}
	at := sort.Search(len(s.msgs), func(i int) bool { return before(&m, &s.msgs[i]) })
	s.msgs = append(s.msgs, model.Message{})
	copy(s.msgs[at+1:], s.msgs[at:])
	s.msgs[at] = m
	return nil
}

// MarkRead sets the read flag on the message with the given ID. Returns
// true if the flag changed; unknown IDs and already-read messages are a
// no-op.
func (s *Store) MarkRead(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].ID == messageID {
			if s.msgs[i].Read {
				return false
			}
			s.msgs[i].Read = true
			return true
		}
	}
	return false
}

// Messages returns a copy of the current ordered message list.
func (s *Store) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
