// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package redisstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// KEYS: reset record
// ARGV: presented digest, now ms, max attempts, consume flag
const matchScript = `
local digest = redis.call("HGET", KEYS[1], "code")
if not digest then
  return 0
end
local exp = tonumber(redis.call("HGET", KEYS[1], "exp"))
if not exp or exp <= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  return 0
end
if digest ~= ARGV[1] then
  local attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
  if attempts >= tonumber(ARGV[3]) then
    redis.call("DEL", KEYS[1])
  end
  return 0
end
if ARGV[4] == "1" then
  redis.call("DEL", KEYS[1])
end
return 1
`

var matchLua = redis.NewScript(matchScript)

// ResetStore implements auth.ResetCodeStore. Records live at
// <prefix>:reset:<sha256(email)> and expire with the code. A consumed code
// is deleted.
type ResetStore struct {
	client redis.UniversalClient
	prefix string
}

// NewResetStore creates a ResetStore. An empty prefix uses DefaultPrefix.
func NewResetStore(client redis.UniversalClient, prefix string) *ResetStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &ResetStore{client: client, prefix: prefix}
}

func (s *ResetStore) key(email string) string {
	sum := sha256.Sum256([]byte(email))
	return s.prefix + ":reset:" + hex.EncodeToString(sum[:])
}

// Put implements auth.ResetCodeStore.
func (s *ResetStore) Put(ctx context.Context, code *auth.ResetCode) error {
	key := s.key(code.Email)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"code", code.CodeHash,
			"exp", strconv.FormatInt(code.ExpiresAt.UnixMilli(), 10),
			"attempts", 0,
			"created", strconv.FormatInt(code.CreatedAt.UnixMilli(), 10),
		)
		pipe.PExpireAt(ctx, key, code.ExpiresAt)
		return nil
	})
	if err != nil {
		return oops.Code("RESET_STORE_FAILED").With("operation", "put").Wrap(err)
	}
	return nil
}

// Match implements auth.ResetCodeStore.
func (s *ResetStore) Match(ctx context.Context, req auth.MatchRequest) (bool, error) {
	consume := "0"
	if req.Consume {
		consume = "1"
	}
	matched, err := matchLua.Run(ctx, s.client,
		[]string{s.key(req.Email)},
		req.CodeHash,
		strconv.FormatInt(req.Now.UnixMilli(), 10),
		req.MaxAttempts,
		consume,
	).Int()
	if err != nil {
		return false, oops.Code("RESET_STORE_FAILED").With("operation", "match").Wrap(err)
	}
	return matched == 1, nil
}

var _ auth.ResetCodeStore = (*ResetStore)(nil)
