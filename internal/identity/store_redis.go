// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/parley/internal/platform/apperr"
	"github.com/taibuivan/parley/internal/platform/constants"
	"github.com/taibuivan/parley/internal/platform/sec"
)

// RedisOneTimeTokenRepository implements OneTimeTokenRepository using Redis.
//
// Keys are derived from the token purpose and the identity id, so writing a
// fresh token silently supersedes the previous one. Values hold only the
// salted hash of the secret, never the secret itself.
type RedisOneTimeTokenRepository struct {
	client *redis.Client
}

// NewOneTimeTokenRepository creates a new Redis-backed OneTimeTokenRepository.
func NewOneTimeTokenRepository(client *redis.Client) *RedisOneTimeTokenRepository {
	return &RedisOneTimeTokenRepository{client: client}
}

func oneTimeKey(purpose Purpose, identityID string) string {
	switch purpose {
	case PurposePasswordReset:
		return constants.RedisPrefixResetToken + identityID
	default:
		return constants.RedisPrefixVerifyToken + identityID
	}
}

/*
Put stores the hash of a one-time secret under the purpose-scoped key.

Description: An unconditional SET, so at most one token per purpose is ever
live for an identity.

Parameters:
  - context: context.Context
  - purpose: Purpose
  - identityID: string
  - secretHash: string
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (repository *RedisOneTimeTokenRepository) Put(context context.Context, purpose Purpose, identityID, secretHash string, ttl time.Duration) error {
	key := oneTimeKey(purpose, identityID)

	if err := repository.client.Set(context, key, secretHash, ttl).Err(); err != nil {
		return fmt.Errorf("redis_one_time_token_put_failed: %w", err)
	}

	return nil
}

/*
Get retrieves the stored hash of the identity's live token.

Description: Returns apperr.NotFound if the token is absent or expired.

Parameters:
  - context: context.Context
  - purpose: Purpose
  - identityID: string

Returns:
  - string: Stored secret hash
  - error: apperr.NotFound or connectivity errors
*/
func (repository *RedisOneTimeTokenRepository) Get(context context.Context, purpose Purpose, identityID string) (string, error) {
	key := oneTimeKey(purpose, identityID)

	secretHash, err := repository.client.Get(context, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.NotFound("Token")
		}
		return "", fmt.Errorf("redis_one_time_token_get_failed: %w", err)
	}

	return secretHash, nil
}

/*
Delete consumes the identity's live token for a purpose.

Description: Deleting an absent key succeeds, keeping consumption idempotent.

Parameters:
  - context: context.Context
  - purpose: Purpose
  - identityID: string

Returns:
  - error: Deletion failures
*/
func (repository *RedisOneTimeTokenRepository) Delete(context context.Context, purpose Purpose, identityID string) error {
	key := oneTimeKey(purpose, identityID)

	if err := repository.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_one_time_token_delete_failed: %w", err)
	}

	return nil
}

/*
PutPendingLogin stores a half-finished second-factor login.

Description: The entry is keyed by the digest of the temp token, so the raw
token never reaches Redis.

Parameters:
  - context: context.Context
  - tempToken: string
  - pending: PendingLogin
  - ttl: time.Duration

Returns:
  - error: Serialization or execution errors
*/
func (repository *RedisOneTimeTokenRepository) PutPendingLogin(context context.Context, tempToken string, pending PendingLogin, ttl time.Duration) error {
	key := constants.RedisPrefixTwoFactor + sec.HashToken(tempToken)

	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("redis_pending_login_marshal_failed: %w", err)
	}

	if err := repository.client.Set(context, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis_pending_login_put_failed: %w", err)
	}

	return nil
}

/*
GetPendingLogin resolves a temp token into its pending login.

Parameters:
  - context: context.Context
  - tempToken: string

Returns:
  - *PendingLogin: The stored pending login
  - error: apperr.NotFound or connectivity errors
*/
func (repository *RedisOneTimeTokenRepository) GetPendingLogin(context context.Context, tempToken string) (*PendingLogin, error) {
	key := constants.RedisPrefixTwoFactor + sec.HashToken(tempToken)

	payload, err := repository.client.Get(context, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperr.NotFound("Login challenge")
		}
		return nil, fmt.Errorf("redis_pending_login_get_failed: %w", err)
	}

	pending := &PendingLogin{}
	if err := json.Unmarshal(payload, pending); err != nil {
		return nil, fmt.Errorf("redis_pending_login_unmarshal_failed: %w", err)
	}

	return pending, nil
}

/*
DeletePendingLogin consumes a pending login challenge.

Parameters:
  - context: context.Context
  - tempToken: string

Returns:
  - error: Deletion failures
*/
func (repository *RedisOneTimeTokenRepository) DeletePendingLogin(context context.Context, tempToken string) error {
	key := constants.RedisPrefixTwoFactor + sec.HashToken(tempToken)

	if err := repository.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_pending_login_delete_failed: %w", err)
	}

	return nil
}
