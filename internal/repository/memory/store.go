// Package memory keeps every repository in process memory. It backs the
// "memory" storage mode and the HTTP-level tests.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/NordCoder/Classly/internal/domain/auth"
	"github.com/NordCoder/Classly/internal/domain/outbox"
	"github.com/NordCoder/Classly/internal/domain/user"
	"github.com/NordCoder/Classly/internal/repository/postgres"
)

type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	nextUserID int64
	users      map[int64]user.User
	byEmail    map[string]int64
	refresh    map[string]auth.RefreshToken
	resets     map[string]auth.PasswordResetToken
	outbox     map[string]outbox.Message
}

func NewStore() *Store {
	return &Store{
		users:   map[int64]user.User{},
		byEmail: map[string]int64{},
		refresh: map[string]auth.RefreshToken{},
		resets:  map[string]auth.PasswordResetToken{},
		outbox:  map[string]outbox.Message{},
	}
}

func (s *Store) Users() *UserRepo                 { return &UserRepo{s: s} }
func (s *Store) RefreshTokens() *RefreshTokenRepo { return &RefreshTokenRepo{s: s} }
func (s *Store) ResetTokens() *ResetTokenRepo     { return &ResetTokenRepo{s: s} }
func (s *Store) Outbox() *OutboxRepo              { return &OutboxRepo{s: s} }
func (s *Store) Transactor() postgres.Transactor  { return &transactor{s: s} }
func (s *Store) Ping(context.Context) error       { return nil }

type snapshot struct {
	nextUserID int64
	users      map[int64]user.User
	byEmail    map[string]int64
	refresh    map[string]auth.RefreshToken
	resets     map[string]auth.PasswordResetToken
	outbox     map[string]outbox.Message
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		nextUserID: s.nextUserID,
		users:      maps.Clone(s.users),
		byEmail:    maps.Clone(s.byEmail),
		refresh:    maps.Clone(s.refresh),
		resets:     maps.Clone(s.resets),
		outbox:     maps.Clone(s.outbox),
	}
}

func (s *Store) restore(sn snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID = sn.nextUserID
	s.users = sn.users
	s.byEmail = sn.byEmail
	s.refresh = sn.refresh
	s.resets = sn.resets
	s.outbox = sn.outbox
}

type txKey struct{}

// lock guards one repository call. Outside a transaction it also waits for
// the open transaction, if any, so a rollback never discards a write that
// did not belong to it.
func (s *Store) lock(ctx context.Context) (unlock func()) {
	if ctx.Value(txKey{}) == nil {
		s.txMu.Lock()
		s.mu.Lock()
		return func() {
			s.mu.Unlock()
			s.txMu.Unlock()
		}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// transactor serializes transactions and restores the pre-transaction
// snapshot when the function fails. Repository calls made outside the
// transaction block until it settles.
type transactor struct{ s *Store }

func (t *transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	sn := t.s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		t.s.restore(sn)
		return err
	}
	return nil
}

type UserRepo struct{ s *Store }

var _ user.Repo = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.byEmail[u.Email]; ok {
		return postgres.ErrConflict
	}
	r.s.nextUserID++
	now := time.Now().UTC()
	u.ID = r.s.nextUserID
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.users[u.ID] = *u
	r.s.byEmail[u.Email] = u.ID
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	defer r.s.lock(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	defer r.s.lock(ctx)()

	id, ok := r.s.byEmail[email]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	u := r.s.users[id]
	return &u, nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	defer r.s.lock(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return postgres.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	r.s.users[id] = u
	return nil
}

// LockForUpdate only checks the user exists: transactions are already
// serialized.
func (r *UserRepo) LockForUpdate(ctx context.Context, id int64) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.users[id]; !ok {
		return postgres.ErrNotFound
	}
	return nil
}

// Update replaces mutable profile fields. Used to simulate role or plan changes.
func (r *UserRepo) Update(ctx context.Context, u *user.User) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.users[u.ID]; !ok {
		return postgres.ErrNotFound
	}
	r.s.users[u.ID] = *u
	return nil
}

// Delete drops a user and its tokens.
func (r *UserRepo) Delete(ctx context.Context, id int64) {
	defer r.s.lock(ctx)()

	if u, ok := r.s.users[id]; ok {
		delete(r.s.byEmail, u.Email)
	}
	delete(r.s.users, id)
	maps.DeleteFunc(r.s.refresh, func(_ string, t auth.RefreshToken) bool { return t.UserID == id })
	maps.DeleteFunc(r.s.resets, func(_ string, t auth.PasswordResetToken) bool { return t.UserID == id })
}

type RefreshTokenRepo struct{ s *Store }

var _ auth.RefreshTokenRepo = (*RefreshTokenRepo)(nil)

func (r *RefreshTokenRepo) Create(ctx context.Context, t *auth.RefreshToken) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.refresh[t.TokenHash]; ok {
		return postgres.ErrConflict
	}
	if _, ok := r.s.users[t.UserID]; !ok {
		return postgres.ErrNotFound
	}
	r.s.refresh[t.TokenHash] = *t
	return nil
}

func (r *RefreshTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	defer r.s.lock(ctx)()

	t, ok := r.s.refresh[tokenHash]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return &t, nil
}

func (r *RefreshTokenRepo) DeleteOwned(ctx context.Context, tokenHash string, userID int64) (bool, error) {
	defer r.s.lock(ctx)()

	t, ok := r.s.refresh[tokenHash]
	if !ok || t.UserID != userID {
		return false, nil
	}
	delete(r.s.refresh, tokenHash)
	return true, nil
}

func (r *RefreshTokenRepo) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	return r.deleteWhere(ctx, -1, func(t auth.RefreshToken) bool { return t.UserID == userID }), nil
}

func (r *RefreshTokenRepo) DeleteExpiredByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	return r.deleteWhere(ctx, -1, func(t auth.RefreshToken) bool { return t.UserID == userID && t.Expired(now) }), nil
}

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	return r.deleteWhere(ctx, limit, func(t auth.RefreshToken) bool { return t.Expired(now) }), nil
}

// Count returns the number of live rows owned by userID.
func (r *RefreshTokenRepo) Count(userID int64) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, t := range r.s.refresh {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

func (r *RefreshTokenRepo) deleteWhere(ctx context.Context, limit int, match func(auth.RefreshToken) bool) int64 {
	defer r.s.lock(ctx)()

	var n int64
	for k, t := range r.s.refresh {
		if limit >= 0 && n >= int64(limit) {
			break
		}
		if match(t) {
			delete(r.s.refresh, k)
			n++
		}
	}
	return n
}

type ResetTokenRepo struct{ s *Store }

var _ auth.PasswordResetRepo = (*ResetTokenRepo)(nil)

func (r *ResetTokenRepo) Create(ctx context.Context, t *auth.PasswordResetToken) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.resets[t.TokenHash]; ok {
		return postgres.ErrConflict
	}
	r.s.resets[t.TokenHash] = *t
	return nil
}

func (r *ResetTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*auth.PasswordResetToken, error) {
	defer r.s.lock(ctx)()

	t, ok := r.s.resets[tokenHash]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return &t, nil
}

func (r *ResetTokenRepo) InvalidateUnused(ctx context.Context, userID int64) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for k, t := range r.s.resets {
		if t.UserID == userID && !t.Used {
			t.Used = true
			r.s.resets[k] = t
			n++
		}
	}
	return n, nil
}

func (r *ResetTokenRepo) MarkUsed(ctx context.Context, tokenHash string) (bool, error) {
	defer r.s.lock(ctx)()

	t, ok := r.s.resets[tokenHash]
	if !ok || t.Used {
		return false, nil
	}
	t.Used = true
	r.s.resets[tokenHash] = t
	return true, nil
}

// Unused returns the number of unused reset rows owned by userID.
func (r *ResetTokenRepo) Unused(userID int64) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, t := range r.s.resets {
		if t.UserID == userID && !t.Used {
			n++
		}
	}
	return n
}

func (r *ResetTokenRepo) DeleteStale(ctx context.Context, before time.Time, limit int) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for k, t := range r.s.resets {
		if limit >= 0 && n >= int64(limit) {
			break
		}
		if !before.Before(t.ExpiresAt) {
			delete(r.s.resets, k)
			n++
		}
	}
	return n, nil
}

type OutboxRepo struct{ s *Store }

var _ outbox.Repository = (*OutboxRepo)(nil)

func (r *OutboxRepo) Enqueue(ctx context.Context, m outbox.Message) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.outbox[m.IdempotencyKey]; ok {
		return nil
	}
	now := time.Now().UTC()
	m.Status = outbox.StatusCreated
	m.CreatedAt, m.UpdatedAt = now, now
	r.s.outbox[m.IdempotencyKey] = m
	return nil
}

func (r *OutboxRepo) PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	defer r.s.lock(ctx)()

	now := time.Now().UTC()
	var cand []outbox.Message
	for _, m := range r.s.outbox {
		stale := m.Status == outbox.StatusInProgress && m.UpdatedAt.Before(now.Add(-inProgressTTL))
		if m.Status == outbox.StatusCreated || stale {
			cand = append(cand, m)
		}
	}
	sort.Slice(cand, func(i, j int) bool { return cand[i].CreatedAt.Before(cand[j].CreatedAt) })
	if len(cand) > batch {
		cand = cand[:batch]
	}
	for i := range cand {
		cand[i].Status = outbox.StatusInProgress
		cand[i].UpdatedAt = now
		r.s.outbox[cand[i].IdempotencyKey] = cand[i]
	}
	return cand, nil
}

func (r *OutboxRepo) MarkSuccess(ctx context.Context, keys []string) error {
	defer r.s.lock(ctx)()

	for _, k := range keys {
		if m, ok := r.s.outbox[k]; ok {
			m.Status = outbox.StatusSuccess
			m.UpdatedAt = time.Now().UTC()
			r.s.outbox[k] = m
		}
	}
	return nil
}

// Pending returns messages not yet marked successful, oldest first.
func (r *OutboxRepo) Pending() []outbox.Message {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []outbox.Message
	for _, m := range r.s.outbox {
		if m.Status != outbox.StatusSuccess {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
