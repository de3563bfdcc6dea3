package userdb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-redis/redis"

	"github.com/kinome/kinome-toolbox/logger"
)

type (
	// CachedOracle keeps resolved permissions in redis for a while. Redis
	// failures are logged and the wrapped Oracle is asked instead.
	CachedOracle struct {
		oracle Oracle
		client *redis.Client
		ttl    time.Duration
	}
)

func NewCachedOracle(oracle Oracle, client *redis.Client, ttl time.Duration) *CachedOracle {
	return &CachedOracle{
		oracle: oracle,
		client: client,
		ttl:    ttl,
	}
}

// cacheKey never contains the credential itself.
func cacheKey(credentials Credentials) string {
	var source string

	switch {
	case credentials.APIKey != "":
		source = "key:" + credentials.APIKey
	case credentials.Cookie != "":
		source = "session:" + credentials.Cookie
	default:
		return "permission:anonymous"
	}

	sum := sha256.Sum256([]byte(source))

	return "permission:" + hex.EncodeToString(sum[:])
}

func (o *CachedOracle) Permission(ctx context.Context, credentials Credentials) (*Permissions, error) {
	key := cacheKey(credentials)
	client := o.client.WithContext(ctx)

	data, err := client.Get(key).Bytes()
	switch err {
	case nil:
		var permissions Permissions
		err = json.Unmarshal(data, &permissions)
		if err == nil {
			return &permissions, nil
		}
		logger.Red("userdb", "Discarding cached permissions: %s", err.Error())
	case redis.Nil:
	default:
		logger.Red("userdb", "Redis error: %s", err.Error())
	}

	permissions, err := o.oracle.Permission(ctx, credentials)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(permissions)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = client.Set(key, data, o.ttl).Err()
	if err != nil {
		logger.Red("userdb", "Redis error: %s", err.Error())
	}

	return permissions, nil
}
