// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package authtest provides in-memory stores and fakes for exercising the
// auth services without a database.
package authtest

import (
	"context"
	"crypto/subtle"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wardenauth/warden/internal/auth"
)

// Accounts is an AccountRepository backed by a map.
type Accounts struct {
	mu   sync.Mutex
	byID map[ulid.ULID]auth.Account
}

// NewAccounts creates an empty Accounts.
func NewAccounts() *Accounts {
	return &Accounts{byID: make(map[ulid.ULID]auth.Account)}
}

// FindByID implements auth.AccountReader.
func (r *Accounts) FindByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &a, nil
}

// FindByEmail implements auth.AccountRepository.
func (r *Accounts) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, auth.ErrNotFound
}

// Create implements auth.AccountRepository.
func (r *Accounts) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(account)
}

// CreateFirstSuperAdmin implements auth.AccountRepository.
func (r *Accounts) CreateFirstSuperAdmin(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.Role == auth.RoleSuperAdmin {
			return auth.ErrSuperAdminExists
		}
	}
	return r.insert(account)
}

func (r *Accounts) insert(account *auth.Account) error {
	for _, a := range r.byID {
		if a.Email == account.Email {
			return auth.ErrDuplicateEmail
		}
	}
	r.byID[account.ID] = *account
	return nil
}

// UpdateRole implements auth.AccountRepository.
func (r *Accounts) UpdateRole(_ context.Context, id ulid.ULID, role auth.Role, at time.Time) error {
	return r.update(id, func(a *auth.Account) {
		a.Role = role
		a.UpdatedAt = at
	})
}

// UpdateActiveStatus implements auth.AccountRepository.
func (r *Accounts) UpdateActiveStatus(_ context.Context, id ulid.ULID, isActive bool, at time.Time) error {
	return r.update(id, func(a *auth.Account) {
		a.IsActive = isActive
		a.UpdatedAt = at
	})
}

// UpdatePassword implements auth.AccountRepository.
func (r *Accounts) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string, at time.Time) error {
	return r.update(id, func(a *auth.Account) {
		a.PasswordHash = passwordHash
		a.UpdatedAt = at
	})
}

func (r *Accounts) update(id ulid.ULID, fn func(*auth.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	fn(&a)
	r.byID[id] = a
	return nil
}

// ListFiltered implements auth.AccountRepository, newest first.
func (r *Accounts) ListFiltered(_ context.Context, f auth.AccountFilter) ([]*auth.Account, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*auth.Account
	for _, a := range r.byID {
		if f.Role != nil && a.Role != *f.Role {
			continue
		}
		if f.IsActive != nil && a.IsActive != *f.IsActive {
			continue
		}
		if f.EmailPrefix != "" && !strings.HasPrefix(a.Email, f.EmailPrefix) {
			continue
		}
		matched = append(matched, &a)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID.Compare(matched[j].ID) > 0
	})

	total := len(matched)
	if f.Offset >= total {
		return []*auth.Account{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

type refreshState int

const (
	refreshActive refreshState = iota
	refreshSuperseded
	refreshRevoked
)

type refreshRecord struct {
	token auth.RefreshToken
	state refreshState
}

// RefreshTokens is a RefreshTokenStore backed by a map.
type RefreshTokens struct {
	mu         sync.Mutex
	records    map[ulid.ULID]*refreshRecord
	revokeFail error
}

// NewRefreshTokens creates an empty RefreshTokens.
func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{records: make(map[ulid.ULID]*refreshRecord)}
}

// Create implements auth.RefreshTokenStore.
func (s *RefreshTokens) Create(_ context.Context, token *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[token.ID] = &refreshRecord{token: *token}
	return nil
}

// Rotate implements auth.RefreshTokenStore.
func (s *RefreshTokens) Rotate(_ context.Context, presentedID ulid.ULID, next *auth.RefreshToken, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[presentedID]
	if !ok {
		return auth.ErrNotFound
	}
	if rec.state != refreshActive {
		return auth.ErrRefreshReused
	}
	if !now.Before(rec.token.ExpiresAt) {
		return auth.ErrRefreshExpired
	}
	rec.state = refreshSuperseded
	s.records[next.ID] = &refreshRecord{token: *next}
	return nil
}

// RevokeFamily implements auth.RefreshTokenStore.
func (s *RefreshTokens) RevokeFamily(_ context.Context, _, familyID ulid.ULID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.token.FamilyID == familyID {
			rec.state = refreshRevoked
		}
	}
	return nil
}

// RevokeAccount implements auth.RefreshTokenStore.
func (s *RefreshTokens) RevokeAccount(_ context.Context, accountID ulid.ULID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revokeFail != nil {
		return s.revokeFail
	}
	for _, rec := range s.records {
		if rec.token.AccountID == accountID {
			rec.state = refreshRevoked
		}
	}
	return nil
}

// FailRevokeAccount makes RevokeAccount return err until it is called again
// with nil.
func (s *RefreshTokens) FailRevokeAccount(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeFail = err
}

// Active returns the number of records that can still be rotated.
func (s *RefreshTokens) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.state == refreshActive {
			n++
		}
	}
	return n
}

// ResetCodes is a ResetCodeStore backed by a map.
type ResetCodes struct {
	mu    sync.Mutex
	codes map[string]*auth.ResetCode
}

// NewResetCodes creates an empty ResetCodes.
func NewResetCodes() *ResetCodes {
	return &ResetCodes{codes: make(map[string]*auth.ResetCode)}
}

// Put implements auth.ResetCodeStore.
func (s *ResetCodes) Put(_ context.Context, code *auth.ResetCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *code
	s.codes[code.Email] = &c
	return nil
}

// Match implements auth.ResetCodeStore.
func (s *ResetCodes) Match(_ context.Context, req auth.MatchRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[req.Email]
	if !ok || c.Consumed || !req.Now.Before(c.ExpiresAt) {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(c.CodeHash), []byte(req.CodeHash)) != 1 {
		c.Attempts++
		if c.Attempts >= req.MaxAttempts {
			delete(s.codes, req.Email)
		}
		return false, nil
	}
	if req.Consume {
		c.Consumed = true
	}
	return true, nil
}

// Notifier records reset notifications instead of delivering them.
type Notifier struct {
	mu   sync.Mutex
	sent []auth.ResetNotification
	Err  error
}

// SendResetCode implements auth.ResetNotifier.
func (n *Notifier) SendResetCode(_ context.Context, msg auth.ResetNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.sent = append(n.sent, msg)
	return nil
}

// Sent returns the notifications delivered so far.
func (n *Notifier) Sent() []auth.ResetNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]auth.ResetNotification(nil), n.sent...)
}

// Last returns the most recent notification for email.
func (n *Notifier) Last(email string) (auth.ResetNotification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Email == email {
			return n.sent[i], true
		}
	}
	return auth.ResetNotification{}, false
}

// Events records security events.
type Events struct {
	mu     sync.Mutex
	events []auth.SecurityEvent
}

// RecordSecurityEvent implements auth.SecurityEventSink.
func (e *Events) RecordSecurityEvent(_ context.Context, event auth.SecurityEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

// Kinds returns the recorded event kinds in order.
func (e *Events) Kinds() []auth.SecurityEventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	kinds := make([]auth.SecurityEventKind, 0, len(e.events))
	for _, ev := range e.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// Verify interfaces are satisfied.
var (
	_ auth.AccountRepository = (*Accounts)(nil)
	_ auth.RefreshTokenStore = (*RefreshTokens)(nil)
	_ auth.ResetCodeStore    = (*ResetCodes)(nil)
	_ auth.ResetNotifier     = (*Notifier)(nil)
	_ auth.SecurityEventSink = (*Events)(nil)
)
