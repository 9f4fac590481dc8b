// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package redisstore implements the refresh token and reset code stores on
// Redis. State transitions run as Lua scripts so each one is atomic.
package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "warden"

// Superseded and revoked records are kept until this long after they expire,
// so a replayed token is still recognised as reuse.
const retainAfterExpiry = time.Hour

const (
	stateActive     = "active"
	stateSuperseded = "superseded"
	stateRevoked    = "revoked"
)

// Rotate script status codes.
const (
	rotateNotFound int64 = iota
	rotateReused
	rotateExpired
	rotateOK
)

// KEYS: token, family set, account set
// ARGV: account id, family id, expires ms, expire-at ms, token id
const createScript = `
redis.call("HSET", KEYS[1], "acct", ARGV[1], "fam", ARGV[2], "exp", ARGV[3], "state", "active")
redis.call("PEXPIREAT", KEYS[1], ARGV[4])
redis.call("SADD", KEYS[2], ARGV[5])
redis.call("PEXPIREAT", KEYS[2], ARGV[4])
redis.call("SADD", KEYS[3], ARGV[2])
redis.call("PEXPIREAT", KEYS[3], ARGV[4])
return 1
`

// KEYS: presented token, next token, family set, account set
// ARGV: now ms, next id, account id, family id, next expires ms, next expire-at ms
const rotateScript = `
local state = redis.call("HGET", KEYS[1], "state")
if not state then
  return 0
end
if state ~= "active" then
  return 1
end
local exp = tonumber(redis.call("HGET", KEYS[1], "exp"))
if not exp or exp <= tonumber(ARGV[1]) then
  return 2
end
redis.call("HSET", KEYS[1], "state", "superseded", "next", ARGV[2])
redis.call("HSET", KEYS[2], "acct", ARGV[3], "fam", ARGV[4], "exp", ARGV[5], "state", "active")
redis.call("PEXPIREAT", KEYS[2], ARGV[6])
redis.call("SADD", KEYS[3], ARGV[2])
redis.call("PEXPIREAT", KEYS[3], ARGV[6])
redis.call("SADD", KEYS[4], ARGV[4])
redis.call("PEXPIREAT", KEYS[4], ARGV[6])
return 3
`

// KEYS: family set, then every token key listed in it
// Returns -1 when the family grew since it was read.
const revokeFamilyScript = `
if redis.call("SCARD", KEYS[1]) ~= #KEYS - 1 then
  return -1
end
local n = 0
for i = 2, #KEYS do
  if redis.call("EXISTS", KEYS[i]) == 1 then
    redis.call("HSET", KEYS[i], "state", "revoked")
    n = n + 1
  end
end
return n
`

// KEYS: account set, the family sets it lists, then their token keys
// ARGV: token count of each family set, in KEYS order
// Returns -1 when any set grew since it was read.
const revokeAccountScript = `
local families = #ARGV
if redis.call("SCARD", KEYS[1]) ~= families then
  return -1
end
for i = 1, families do
  if redis.call("SCARD", KEYS[1 + i]) ~= tonumber(ARGV[i]) then
    return -1
  end
end
local n = 0
for i = families + 2, #KEYS do
  if redis.call("EXISTS", KEYS[i]) == 1 then
    redis.call("HSET", KEYS[i], "state", "revoked")
    n = n + 1
  end
end
return n
`

var (
	createLua        = redis.NewScript(createScript)
	rotateLua        = redis.NewScript(rotateScript)
	revokeFamilyLua  = redis.NewScript(revokeFamilyScript)
	revokeAccountLua = redis.NewScript(revokeAccountScript)
)

// revokeAttempts bounds how often a revocation is retried when a concurrent
// rotation adds a token between reading a set and revoking its members.
const revokeAttempts = 5

// RefreshStore implements auth.RefreshTokenStore.
//
// Each token is a hash at <prefix>:rt:{<aid>}:<id>. Family sets at
// <prefix>:rtf:{<aid>}:<fid> list token ids and the account set at
// <prefix>:rta:{<aid>} lists family ids. The account id hash tag keeps all
// keys of an account in one cluster slot, and every script declares the
// keys it touches.
type RefreshStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRefreshStore creates a RefreshStore. An empty prefix uses DefaultPrefix.
func NewRefreshStore(client redis.UniversalClient, prefix string) *RefreshStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RefreshStore{client: client, prefix: prefix}
}

func (s *RefreshStore) tokenKey(accountID, id ulid.ULID) string {
	return s.tokenKeyString(accountID, id.String())
}

func (s *RefreshStore) tokenKeyString(accountID ulid.ULID, id string) string {
	return s.prefix + ":rt:{" + accountID.String() + "}:" + id
}

func (s *RefreshStore) familyKey(accountID, id ulid.ULID) string {
	return s.familyKeyString(accountID, id.String())
}

func (s *RefreshStore) familyKeyString(accountID ulid.ULID, id string) string {
	return s.prefix + ":rtf:{" + accountID.String() + "}:" + id
}

func (s *RefreshStore) accountKey(accountID ulid.ULID) string {
	return s.prefix + ":rta:{" + accountID.String() + "}"
}

// tokenKeys maps the members of a family set to token keys.
func (s *RefreshStore) tokenKeys(accountID ulid.ULID, ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.tokenKeyString(accountID, id)
	}
	return keys
}

// Create implements auth.RefreshTokenStore.
func (s *RefreshStore) Create(ctx context.Context, token *auth.RefreshToken) error {
	err := createLua.Run(ctx, s.client,
		[]string{
			s.tokenKey(token.AccountID, token.ID),
			s.familyKey(token.AccountID, token.FamilyID),
			s.accountKey(token.AccountID),
		},
		token.AccountID.String(),
		token.FamilyID.String(),
		millis(token.ExpiresAt),
		millis(token.ExpiresAt.Add(retainAfterExpiry)),
		token.ID.String(),
	).Err()
	if err != nil {
		return oops.Code("REFRESH_STORE_FAILED").
			With("operation", "create").
			With("token_id", token.ID.String()).
			Wrap(err)
	}
	return nil
}

// Rotate implements auth.RefreshTokenStore. The presented token must belong to
// next.AccountID.
func (s *RefreshStore) Rotate(ctx context.Context, presentedID ulid.ULID, next *auth.RefreshToken, now time.Time) error {
	status, err := rotateLua.Run(ctx, s.client,
		[]string{
			s.tokenKey(next.AccountID, presentedID),
			s.tokenKey(next.AccountID, next.ID),
			s.familyKey(next.AccountID, next.FamilyID),
			s.accountKey(next.AccountID),
		},
		millis(now),
		next.ID.String(),
		next.AccountID.String(),
		next.FamilyID.String(),
		millis(next.ExpiresAt),
		millis(next.ExpiresAt.Add(retainAfterExpiry)),
	).Int64()
	if err != nil {
		return oops.Code("REFRESH_STORE_FAILED").
			With("operation", "rotate").
			With("token_id", presentedID.String()).
			Wrap(err)
	}

	switch status {
	case rotateOK:
		return nil
	case rotateNotFound:
		return auth.ErrNotFound
	case rotateReused:
		return auth.ErrRefreshReused
	case rotateExpired:
		return auth.ErrRefreshExpired
	default:
		return oops.Code("REFRESH_STORE_FAILED").
			With("operation", "rotate").
			With("status", status).
			Errorf("unknown rotate script status")
	}
}

// RevokeFamily implements auth.RefreshTokenStore.
func (s *RefreshStore) RevokeFamily(ctx context.Context, accountID, familyID ulid.ULID, _ time.Time) error {
	familyKey := s.familyKey(accountID, familyID)
	err := s.retryRevoke(ctx, func() (int64, error) {
		ids, err := s.client.SMembers(ctx, familyKey).Result()
		if err != nil {
			return 0, err //nolint:wrapcheck // wrapped below
		}
		keys := append([]string{familyKey}, s.tokenKeys(accountID, ids)...)
		return revokeFamilyLua.Run(ctx, s.client, keys).Int64() //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		return oops.Code("REFRESH_STORE_FAILED").
			With("operation", "revoke family").
			With("family_id", familyID.String()).
			Wrap(err)
	}
	return nil
}

// RevokeAccount implements auth.RefreshTokenStore.
func (s *RefreshStore) RevokeAccount(ctx context.Context, accountID ulid.ULID, _ time.Time) error {
	accountKey := s.accountKey(accountID)
	err := s.retryRevoke(ctx, func() (int64, error) {
		families, err := s.client.SMembers(ctx, accountKey).Result()
		if err != nil {
			return 0, err //nolint:wrapcheck // wrapped below
		}

		familyKeys := make([]string, len(families))
		for i, fam := range families {
			familyKeys[i] = s.familyKeyString(accountID, fam)
		}
		cmds := make([]*redis.StringSliceCmd, len(familyKeys))
		if len(familyKeys) > 0 {
			_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
				for i, key := range familyKeys {
					cmds[i] = pipe.SMembers(ctx, key)
				}
				return nil
			})
			if err != nil {
				return 0, err //nolint:wrapcheck // wrapped below
			}
		}

		keys := append([]string{accountKey}, familyKeys...)
		counts := make([]any, len(familyKeys))
		for i, cmd := range cmds {
			ids := cmd.Val()
			counts[i] = len(ids)
			keys = append(keys, s.tokenKeys(accountID, ids)...)
		}
		return revokeAccountLua.Run(ctx, s.client, keys, counts...).Int64() //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		return oops.Code("REFRESH_STORE_FAILED").
			With("operation", "revoke account").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

// retryRevoke runs fn until its script reports that the sets it read were
// still current.
func (s *RefreshStore) retryRevoke(ctx context.Context, fn func() (int64, error)) error {
	for range revokeAttempts {
		n, err := fn()
		if err != nil {
			return err
		}
		if n >= 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck // wrapped by the caller
		}
	}
	return oops.Errorf("token sets kept changing during revocation")
}

// state returns the stored state of a token, or "" when it doesn't exist.
func (s *RefreshStore) state(ctx context.Context, accountID, id ulid.ULID) (string, error) {
	v, err := s.client.HGet(ctx, s.tokenKey(accountID, id), "state").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", oops.Code("REFRESH_STORE_FAILED").With("operation", "state").Wrap(err)
	}
	return v, nil
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

var _ auth.RefreshTokenStore = (*RefreshStore)(nil)
