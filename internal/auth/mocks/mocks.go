// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package mocks provides testify mocks of the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/wardenauth/warden/internal/auth"
)

// T is the subset of testing.TB the constructors need.
type T interface {
	mock.TestingT
	Cleanup(func())
}

func register(m *mock.Mock, t T) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// MockAccountRepository mocks auth.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

// NewMockAccountRepository creates a mock that asserts its expectations on cleanup.
func NewMockAccountRepository(t T) *MockAccountRepository {
	m := &MockAccountRepository{}
	register(&m.Mock, t)
	return m
}

func (m *MockAccountRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	args := m.Called(ctx, id)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockAccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockAccountRepository) CreateFirstSuperAdmin(ctx context.Context, account *auth.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockAccountRepository) UpdateRole(ctx context.Context, id ulid.ULID, role auth.Role, at time.Time) error {
	return m.Called(ctx, id, role, at).Error(0)
}

func (m *MockAccountRepository) UpdateActiveStatus(ctx context.Context, id ulid.ULID, isActive bool, at time.Time) error {
	return m.Called(ctx, id, isActive, at).Error(0)
}

func (m *MockAccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, at time.Time) error {
	return m.Called(ctx, id, passwordHash, at).Error(0)
}

func (m *MockAccountRepository) ListFiltered(ctx context.Context, filter auth.AccountFilter) ([]*auth.Account, int, error) {
	args := m.Called(ctx, filter)
	accounts, _ := args.Get(0).([]*auth.Account)
	return accounts, args.Int(1), args.Error(2)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t T) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	register(&m.Mock, t)
	return m
}

func (m *MockPasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	args := m.Called(ctx, password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	args := m.Called(ctx, password, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockTokens mocks auth.Tokens.
type MockTokens struct {
	mock.Mock
}

// NewMockTokens creates a mock that asserts its expectations on cleanup.
func NewMockTokens(t T) *MockTokens {
	m := &MockTokens{}
	register(&m.Mock, t)
	return m
}

func (m *MockTokens) Issue(ctx context.Context, account *auth.Account) (*auth.TokenPair, error) {
	args := m.Called(ctx, account)
	pair, _ := args.Get(0).(*auth.TokenPair)
	return pair, args.Error(1)
}

func (m *MockTokens) Rotate(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	pair, _ := args.Get(0).(*auth.TokenPair)
	return pair, args.Error(1)
}

func (m *MockTokens) Revoke(ctx context.Context, refreshToken string) error {
	return m.Called(ctx, refreshToken).Error(0)
}

func (m *MockTokens) RevokeAll(ctx context.Context, accountID ulid.ULID) error {
	return m.Called(ctx, accountID).Error(0)
}

// MockResetCodes mocks auth.ResetCodes.
type MockResetCodes struct {
	mock.Mock
}

// NewMockResetCodes creates a mock that asserts its expectations on cleanup.
func NewMockResetCodes(t T) *MockResetCodes {
	m := &MockResetCodes{}
	register(&m.Mock, t)
	return m
}

func (m *MockResetCodes) Issue(ctx context.Context, email string) (string, time.Time, error) {
	args := m.Called(ctx, email)
	expiresAt, _ := args.Get(1).(time.Time)
	return args.String(0), expiresAt, args.Error(2)
}

func (m *MockResetCodes) Verify(ctx context.Context, email, code string) (bool, error) {
	args := m.Called(ctx, email, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockResetCodes) Consume(ctx context.Context, email, code string) (bool, error) {
	args := m.Called(ctx, email, code)
	return args.Bool(0), args.Error(1)
}

// MockResetNotifier mocks auth.ResetNotifier.
type MockResetNotifier struct {
	mock.Mock
}

// NewMockResetNotifier creates a mock that asserts its expectations on cleanup.
func NewMockResetNotifier(t T) *MockResetNotifier {
	m := &MockResetNotifier{}
	register(&m.Mock, t)
	return m
}

func (m *MockResetNotifier) SendResetCode(ctx context.Context, n auth.ResetNotification) error {
	return m.Called(ctx, n).Error(0)
}

// MockSecurityEventSink mocks auth.SecurityEventSink.
type MockSecurityEventSink struct {
	mock.Mock
}

// NewMockSecurityEventSink creates a mock that asserts its expectations on cleanup.
func NewMockSecurityEventSink(t T) *MockSecurityEventSink {
	m := &MockSecurityEventSink{}
	register(&m.Mock, t)
	return m
}

func (m *MockSecurityEventSink) RecordSecurityEvent(ctx context.Context, event auth.SecurityEvent) error {
	return m.Called(ctx, event).Error(0)
}

// MockRefreshTokenStore mocks auth.RefreshTokenStore.
type MockRefreshTokenStore struct {
	mock.Mock
}

// NewMockRefreshTokenStore creates a mock that asserts its expectations on cleanup.
func NewMockRefreshTokenStore(t T) *MockRefreshTokenStore {
	m := &MockRefreshTokenStore{}
	register(&m.Mock, t)
	return m
}

func (m *MockRefreshTokenStore) Create(ctx context.Context, token *auth.RefreshToken) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockRefreshTokenStore) Rotate(ctx context.Context, presentedID ulid.ULID, next *auth.RefreshToken, now time.Time) error {
	return m.Called(ctx, presentedID, next, now).Error(0)
}

func (m *MockRefreshTokenStore) RevokeFamily(ctx context.Context, accountID, familyID ulid.ULID, now time.Time) error {
	return m.Called(ctx, accountID, familyID, now).Error(0)
}

func (m *MockRefreshTokenStore) RevokeAccount(ctx context.Context, accountID ulid.ULID, now time.Time) error {
	return m.Called(ctx, accountID, now).Error(0)
}
