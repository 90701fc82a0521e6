// Package storetest provides an in-memory store.Repository for tests. It holds a
// single lock for the whole of a unit of work, so transactions serialize, and it
// applies a unit of work's writes only when the callback succeeds.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
	"github.com/kontent/connection-service/internal/store"
)

// User is a directory entry in the memory store.
type User struct {
	ID          uuid.UUID
	ClerkUserID string
	Username    string
}

type state struct {
	users        map[uuid.UUID]User
	connections  map[uuid.UUID]domain.Connection
	configs      map[uuid.UUID]domain.MonetizationConfig
	transactions map[uuid.UUID]domain.Transaction
	earnings     map[uuid.UUID]domain.Earning
	messages     map[uuid.UUID]domain.Message
}

func newState() *state {
	return &state{
		users:        map[uuid.UUID]User{},
		connections:  map[uuid.UUID]domain.Connection{},
		configs:      map[uuid.UUID]domain.MonetizationConfig{},
		transactions: map[uuid.UUID]domain.Transaction{},
		earnings:     map[uuid.UUID]domain.Earning{},
		messages:     map[uuid.UUID]domain.Message{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.connections {
		c.connections[k] = v
	}
	for k, v := range s.configs {
		c.configs[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.earnings {
		c.earnings[k] = v
	}
	for k, v := range s.messages {
		c.messages[k] = v
	}
	return c
}

// MemoryStore is an in-memory store.Repository. Repository methods must not be
// called from inside a WithinTx callback.
type MemoryStore struct {
	mu      sync.Mutex
	state   *state
	commits int

	// FailCommit, when set, makes the next unit of work roll back with this error
	// after its callback succeeds.
	FailCommit error
}

var _ store.Repository = (*MemoryStore)(nil)

// New returns an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{state: newState()}
}

// AddUser registers a user and returns its id.
func (m *MemoryStore) AddUser(clerkUserID, username string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.state.users[id] = User{ID: id, ClerkUserID: clerkUserID, Username: username}
	return id
}

// Commits returns how many units of work have committed.
func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Transactions returns every ledger transaction.
func (m *MemoryStore) Transactions() []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Transaction, 0, len(m.state.transactions))
	for _, t := range m.state.transactions {
		out = append(out, t)
	}
	return out
}

// Earnings returns every earning.
func (m *MemoryStore) Earnings() []domain.Earning {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Earning, 0, len(m.state.earnings))
	for _, e := range m.state.earnings {
		out = append(out, e)
	}
	return out
}

// PutConnection stores c directly, bypassing lifecycle checks.
func (m *MemoryStore) PutConnection(c domain.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.connections[c.ID] = c
}

// PutTransaction stores t directly, bypassing ledger checks.
func (m *MemoryStore) PutTransaction(t domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.transactions[t.ID] = t
}

// WithinTx runs fn against a private copy of the state and publishes it on success.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.state.clone()
	if err := fn(&memoryTx{s: working}); err != nil {
		return err
	}
	if m.FailCommit != nil {
		err := m.FailCommit
		m.FailCommit = nil
		return err
	}
	m.state = working
	m.commits++
	return nil
}

func (m *MemoryStore) read() *memoryTx {
	return &memoryTx{s: m.state}
}

// FindUserIDByClerkUserID resolves a Clerk id.
func (m *MemoryStore) FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.state.users {
		if u.ClerkUserID == clerkUserID {
			return u.ID, nil
		}
	}
	return uuid.Nil, domain.ErrUserNotFound
}

// UserExists reports whether the user is registered.
func (m *MemoryStore) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.state.users[userID]
	return ok, nil
}

// FindUsername returns the user's username.
func (m *MemoryStore) FindUsername(ctx context.Context, userID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.state.users[userID]
	if !ok {
		return "", domain.ErrUserNotFound
	}
	return u.Username, nil
}

// GetConnection retrieves a connection.
func (m *MemoryStore) GetConnection(ctx context.Context, connectionID uuid.UUID) (*domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetConnectionForUpdate(ctx, connectionID)
}

// ListConnectionsByUser lists a user's connections newest first.
func (m *MemoryStore) ListConnectionsByUser(ctx context.Context, userID uuid.UUID, opts domain.ConnectionListOptions) ([]domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Connection
	for _, c := range m.state.connections {
		switch opts.Role {
		case domain.ConnectionRoleRequester:
			if c.RequesterID != userID {
				continue
			}
		case domain.ConnectionRoleRecipient:
			if c.RecipientID != userID {
				continue
			}
		default:
			if !c.IsParty(userID) {
				continue
			}
		}
		if opts.Status != "" && c.Status != opts.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	limit, offset := store.ClampPage(opts.Limit, opts.Offset)
	return page(out, limit, offset), nil
}

// ListStalePendingConnectionIDs lists unpaid connections created before the cutoff.
func (m *MemoryStore) ListStalePendingConnectionIDs(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Connection
	for _, c := range m.state.connections {
		if c.Status == domain.ConnectionPendingPayment && c.CreatedAt.Before(createdBefore) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	out = page(out, limit, 0)
	ids := make([]uuid.UUID, 0, len(out))
	for _, c := range out {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// CreateMonetizationConfig stores a config, enforcing name uniqueness.
func (m *MemoryStore) CreateMonetizationConfig(ctx context.Context, cfg *domain.MonetizationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.state.configs {
		if existing.Name == cfg.Name {
			return domain.ErrConfigNameTaken
		}
	}
	m.state.configs[cfg.ID] = *cfg
	return nil
}

// GetMonetizationConfig retrieves a config by id.
func (m *MemoryStore) GetMonetizationConfig(ctx context.Context, configID uuid.UUID) (*domain.MonetizationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.state.configs[configID]
	if !ok {
		return nil, domain.ErrConfigNotFound
	}
	return &cfg, nil
}

// ListMonetizationConfigs lists configs by name.
func (m *MemoryStore) ListMonetizationConfigs(ctx context.Context, activeOnly bool) ([]domain.MonetizationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MonetizationConfig
	for _, cfg := range m.state.configs {
		if activeOnly && !cfg.IsActive {
			continue
		}
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateMonetizationConfig overwrites a config, enforcing name uniqueness.
func (m *MemoryStore) UpdateMonetizationConfig(ctx context.Context, cfg *domain.MonetizationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.configs[cfg.ID]; !ok {
		return domain.ErrConfigNotFound
	}
	for id, existing := range m.state.configs {
		if id != cfg.ID && existing.Name == cfg.Name {
			return domain.ErrConfigNameTaken
		}
	}
	m.state.configs[cfg.ID] = *cfg
	return nil
}

// GetTransaction retrieves a transaction.
func (m *MemoryStore) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetTransactionForUpdate(ctx, transactionID)
}

// ListTransactionsByPayer lists a payer's transactions newest first.
func (m *MemoryStore) ListTransactionsByPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, t := range m.state.transactions {
		if t.PayerID == payerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionDate.After(out[j].TransactionDate) })
	limit, offset = store.ClampPage(limit, offset)
	return page(out, limit, offset), nil
}

// ListRefundPendingTransactions lists refunds requested before the cutoff.
func (m *MemoryStore) ListRefundPendingTransactions(ctx context.Context, requestedBefore time.Time, limit int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, t := range m.state.transactions {
		if t.Status == domain.TransactionRefundPending && t.RefundRequestedAt != nil && t.RefundRequestedAt.Before(requestedBefore) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RefundRequestedAt.Before(*out[j].RefundRequestedAt) })
	return page(out, limit, 0), nil
}

// GetEarning retrieves an earning.
func (m *MemoryStore) GetEarning(ctx context.Context, earningID uuid.UUID) (*domain.Earning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetEarningForUpdate(ctx, earningID)
}

// ListEarningsByRecipient lists a recipient's earnings newest first.
func (m *MemoryStore) ListEarningsByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]domain.Earning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Earning
	for _, e := range m.state.earnings {
		if e.RecipientID == recipientID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	limit, offset = store.ClampPage(limit, offset)
	return page(out, limit, offset), nil
}

// InsertMessage stores a message.
func (m *MemoryStore) InsertMessage(ctx context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.messages[msg.ID] = *msg
	return nil
}

// GetMessage retrieves a message.
func (m *MemoryStore) GetMessage(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.state.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return &msg, nil
}

// ListMessagesByConnection lists a conversation oldest first.
func (m *MemoryStore) ListMessagesByConnection(ctx context.Context, connectionID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, msg := range m.state.messages {
		if msg.ConnectionID == connectionID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	limit, offset = store.ClampPage(limit, offset)
	return page(out, limit, offset), nil
}

// MarkMessageRead flags a message read, reporting whether it changed.
func (m *MemoryStore) MarkMessageRead(ctx context.Context, messageID uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.state.messages[messageID]
	if !ok || msg.IsRead {
		return false, nil
	}
	msg.IsRead = true
	msg.ReadAt = &at
	m.state.messages[messageID] = msg
	return true, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
