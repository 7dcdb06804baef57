package accounts

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/akashbiswas0/Avenger/pkg/redis"
)

// StateTTL bounds how long an OAuth handshake may stay half-open.
const StateTTL = 10 * time.Minute

var ErrStateNotFound = errors.New("oauth state not found or expired")

// OAuthStateStore keeps request-token secrets between the initiate and
// callback legs of the OAuth 1.0a handshake. Backed by Redis with a TTL so
// abandoned handshakes expire on their own and state survives restarts.
type OAuthStateStore struct {
	redis *redis.Client
}

// NewOAuthStateStore creates a state store.
func NewOAuthStateStore(rdb *redis.Client) *OAuthStateStore {
	return &OAuthStateStore{redis: rdb}
}

func stateKey(requestToken string) string {
	return "oauth:state:" + requestToken
}

// Save stores the request secret under its request token.
func (s *OAuthStateStore) Save(ctx context.Context, requestToken, requestSecret string) error {
	return s.redis.Set(ctx, stateKey(requestToken), requestSecret, StateTTL).Err()
}

// Take retrieves and deletes the request secret. Each state is single-use.
func (s *OAuthStateStore) Take(ctx context.Context, requestToken string) (string, error) {
	secret, err := s.redis.GetDel(ctx, stateKey(requestToken)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", err
	}
	return secret, nil
}
