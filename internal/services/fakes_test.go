package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/visibility"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// tick returns the current time and moves the clock forward by a second so
// that consecutive rows get distinct timestamps.
func (c *clock) tick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Second)
	return t
}

type memStore struct {
	mu        sync.Mutex
	clock     *clock
	chats     map[string]models.Chat
	transfers map[string]models.ChatTransfer
	replies   map[string]models.Reply
	users     map[string]models.User
}

func newMemStore(c *clock) *memStore {
	return &memStore{
		clock:     c,
		chats:     map[string]models.Chat{},
		transfers: map[string]models.ChatTransfer{},
		replies:   map[string]models.Reply{},
		users:     map[string]models.User{},
	}
}

func (m *memStore) addUsers(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.users[id] = models.User{ID: id, Name: "user " + id, Email: id + "@example.com"}
	}
}

func appendOnce(set []string, id string) []string {
	if visibility.Contains(set, id) {
		return set
	}
	out := append([]string{}, set...)
	return append(out, id)
}

func newestFirst(chats []models.Chat) []models.Chat {
	sort.SliceStable(chats, func(i, j int) bool { return chats[i].CreatedAt.After(chats[j].CreatedAt) })
	return chats
}

type memChats struct{ *memStore }

func (m memChats) CreateChat(_ context.Context, chat models.Chat) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.tick()
	chat.Reader = []string{}
	chat.HiddenFor = []string{}
	chat.Status = models.ChatStatusAlive
	chat.CreatedAt, chat.UpdatedAt = now, now
	m.chats[chat.ID] = chat
	return chat, nil
}

func (m memChats) GetChat(_ context.Context, chatID string) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return chat, nil
}

func (m memChats) list(keep func(models.Chat) bool) []models.Chat {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Chat
	for _, chat := range m.chats {
		if keep(chat) {
			out = append(out, chat)
		}
	}
	return newestFirst(out)
}

func (m memChats) ListAll(context.Context) ([]models.Chat, error) {
	return m.list(func(models.Chat) bool { return true }), nil
}

func (m memChats) ListByUser(_ context.Context, userID string) ([]models.Chat, error) {
	return m.list(func(c models.Chat) bool {
		return c.Status == models.ChatStatusAlive && !visibility.Contains(c.HiddenFor, userID) &&
			visibility.IsParticipant(c.SenderID, c.Receivers, userID)
	}), nil
}

func (m memChats) ListSentByUser(_ context.Context, userID string) ([]models.Chat, error) {
	return m.list(func(c models.Chat) bool {
		return c.Status == models.ChatStatusAlive && !visibility.Contains(c.HiddenFor, userID) && c.SenderID == userID
	}), nil
}

func (m memChats) ListReceivedByUser(_ context.Context, userID string) ([]models.Chat, error) {
	return m.list(func(c models.Chat) bool {
		return c.Status == models.ChatStatusAlive && !visibility.Contains(c.HiddenFor, userID) &&
			visibility.Contains(c.Receivers, userID)
	}), nil
}

func (m memChats) ListDeletedByUser(_ context.Context, userID string) ([]models.Chat, error) {
	return m.list(func(c models.Chat) bool {
		return c.Status == models.ChatStatusDeleted && c.SenderID == userID
	}), nil
}

func (m memChats) AppendReader(_ context.Context, chatID string, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return nil
	}
	chat.Reader = appendOnce(chat.Reader, userID)
	m.chats[chatID] = chat
	return nil
}

func (m memChats) AppendHiddenFor(_ context.Context, chatID string, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return nil
	}
	chat.HiddenFor = appendOnce(chat.HiddenFor, userID)
	m.chats[chatID] = chat
	return nil
}

func (m memChats) UpdateContent(_ context.Context, chatID string, patch models.ChatPatch) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok || chat.Status != models.ChatStatusAlive {
		return models.Chat{}, repositories.ErrStatusConflict
	}
	if patch.Subject != nil {
		chat.Subject = *patch.Subject
	}
	if patch.Content != nil {
		chat.Content = *patch.Content
	}
	if patch.Attachments != nil {
		chat.Attachments = patch.Attachments
	}
	chat.UpdatedAt = m.clock.tick()
	m.chats[chatID] = chat
	return chat, nil
}

func (m memChats) TransitionStatus(_ context.Context, chatID string, from, to models.ChatStatus) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok || chat.Status != from {
		return models.Chat{}, repositories.ErrStatusConflict
	}
	chat.Status = to
	chat.UpdatedAt = m.clock.tick()
	m.chats[chatID] = chat
	return chat, nil
}

func (m memChats) PurgeDeleted(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, chat := range m.chats {
		if purged >= int64(limit) {
			break
		}
		if chat.Status != models.ChatStatusDeleted || !chat.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(m.chats, id)
		purged++
		for tid, t := range m.transfers {
			if t.ChatID == id {
				delete(m.transfers, tid)
				for rid, r := range m.replies {
					if r.TransferID != nil && *r.TransferID == tid {
						delete(m.replies, rid)
					}
				}
			}
		}
		for rid, r := range m.replies {
			if r.ChatID != nil && *r.ChatID == id {
				delete(m.replies, rid)
			}
		}
	}
	return purged, nil
}

type memTransfers struct{ *memStore }

func (m memTransfers) CreateTransfer(_ context.Context, t models.ChatTransfer) (models.ChatTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.tick()
	t.Reader = []string{}
	t.HiddenFor = []string{}
	t.CreatedAt, t.UpdatedAt = now, now
	m.transfers[t.ID] = t
	return t, nil
}

func (m memTransfers) GetTransfer(_ context.Context, transferID string) (models.ChatTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[transferID]
	if !ok {
		return models.ChatTransfer{}, repositories.ErrTransferNotFound
	}
	return t, nil
}

func (m memTransfers) list(keep func(models.ChatTransfer) bool) []models.ChatTransfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChatTransfer
	for _, t := range m.transfers {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m memTransfers) ListSentByUser(_ context.Context, userID string) ([]models.ChatTransfer, error) {
	return m.list(func(t models.ChatTransfer) bool {
		return t.SenderID == userID && !visibility.Contains(t.HiddenFor, userID)
	}), nil
}

func (m memTransfers) ListReceivedByUser(_ context.Context, userID string) ([]models.ChatTransfer, error) {
	return m.list(func(t models.ChatTransfer) bool {
		return visibility.Contains(t.Receivers, userID) && !visibility.Contains(t.HiddenFor, userID)
	}), nil
}

func (m memTransfers) AppendReader(_ context.Context, transferID string, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[transferID]
	if !ok {
		return nil
	}
	t.Reader = appendOnce(t.Reader, userID)
	m.transfers[transferID] = t
	return nil
}

func (m memTransfers) AppendHiddenFor(_ context.Context, transferID string, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[transferID]
	if !ok {
		return nil
	}
	t.HiddenFor = appendOnce(t.HiddenFor, userID)
	m.transfers[transferID] = t
	return nil
}

func (m memTransfers) ReplaceReceivers(_ context.Context, transferID string, receivers []string) (models.ChatTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[transferID]
	if !ok {
		return models.ChatTransfer{}, repositories.ErrTransferNotFound
	}
	t.Receivers = receivers
	t.UpdatedAt = m.clock.tick()
	m.transfers[transferID] = t
	return t, nil
}

func (m memTransfers) DeleteTransfer(_ context.Context, transferID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transfers[transferID]; !ok {
		return repositories.ErrTransferNotFound
	}
	delete(m.transfers, transferID)
	for rid, r := range m.replies {
		if r.TransferID != nil && *r.TransferID == transferID {
			delete(m.replies, rid)
		}
	}
	return nil
}

type memReplies struct{ *memStore }

func (m memReplies) CreateReply(_ context.Context, reply models.Reply) (models.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.tick()
	reply.CreatedAt, reply.UpdatedAt = now, now
	m.replies[reply.ID] = reply
	return reply, nil
}

func (m memReplies) GetReply(_ context.Context, replyID string) (models.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.replies[replyID]
	if !ok {
		return models.Reply{}, repositories.ErrReplyNotFound
	}
	return r, nil
}

func (m memReplies) list(keep func(models.Reply) bool) []models.Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reply
	for _, r := range m.replies {
		if r.Status == models.ReplyStatusAlive && keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m memReplies) ListByChat(_ context.Context, chatID string) ([]models.Reply, error) {
	return m.list(func(r models.Reply) bool { return r.ChatID != nil && *r.ChatID == chatID }), nil
}

func (m memReplies) ListByTransfer(_ context.Context, transferID string) ([]models.Reply, error) {
	return m.list(func(r models.Reply) bool { return r.TransferID != nil && *r.TransferID == transferID }), nil
}

func (m memReplies) UpdateReply(_ context.Context, replyID string, patch models.ReplyPatch) (models.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.replies[replyID]
	if !ok || r.Status != models.ReplyStatusAlive {
		return models.Reply{}, repositories.ErrReplyNotFound
	}
	if patch.Content != nil {
		r.Content = *patch.Content
	}
	if patch.IsPublic != nil {
		r.IsPublic = *patch.IsPublic
	}
	r.UpdatedAt = m.clock.tick()
	m.replies[replyID] = r
	return r, nil
}

func (m memReplies) SoftDeleteReply(_ context.Context, replyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.replies[replyID]
	if !ok || r.Status != models.ReplyStatusAlive {
		return repositories.ErrReplyNotFound
	}
	r.Status = models.ReplyStatusDeleted
	m.replies[replyID] = r
	return nil
}

type memUsers struct{ *memStore }

func (m memUsers) GetUser(_ context.Context, userID string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return u, nil
}

func (m memUsers) GetUsers(_ context.Context, userIDs []string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, id := range userIDs {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu          sync.Mutex
	created     []string
	transferred []string
}

func (n *recordingNotifier) ChatCreated(_ context.Context, chat models.Chat, _ models.User, receivers []models.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range receivers {
		n.created = append(n.created, chat.ID+":"+r.ID)
	}
}

func (n *recordingNotifier) ChatTransferred(_ context.Context, transfer models.ChatTransfer, _ models.Chat, _ models.User, receivers []models.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range receivers {
		n.transferred = append(n.transferred, transfer.ID+":"+r.ID)
	}
}

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) Emit(_ context.Context, _, action, _, _, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

type fixture struct {
	clock     *clock
	store     *memStore
	notifier  *recordingNotifier
	audit     *recordingAuditor
	chats     *ChatService
	transfers *TransferService
	replies   *ReplyService
}

func newFixture(users ...string) *fixture {
	c := newClock()
	store := newMemStore(c)
	store.addUsers(users...)
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	notifier := &recordingNotifier{}
	audit := &recordingAuditor{}
	chats := NewChatService(memChats{store}, memTransfers{store}, memUsers{store}, notifier, audit, log,
		RetentionPolicy{Window: 30 * 24 * time.Hour, BatchSize: 2})
	chats.now = c.Now

	return &fixture{
		clock:     c,
		store:     store,
		notifier:  notifier,
		audit:     audit,
		chats:     chats,
		transfers: NewTransferService(memTransfers{store}, memChats{store}, memReplies{store}, memUsers{store}, notifier, audit, log),
		replies:   NewReplyService(memReplies{store}, memChats{store}, memTransfers{store}, memUsers{store}, log),
	}
}
