package connector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zoff-tech/go-payouts/pkg/cache"
)

// tokenExpiryBuffer is subtracted from the issued lifetime so a cached token is
// never handed out right before it expires.
const tokenExpiryBuffer = 5 * time.Second

// AccessTokenProvider caches connector access tokens per merchant and connector.
type AccessTokenProvider struct {
	cache cache.Cache
}

func NewAccessTokenProvider(c cache.Cache) *AccessTokenProvider {
	return &AccessTokenProvider{cache: c}
}

func accessTokenKey(merchantID, connectorName string) string {
	return fmt.Sprintf("access_token_%s_%s", merchantID, connectorName)
}

// Token returns a valid token for the connector, calling the connector only on a
// cache miss. Connectors that do not use tokens get an empty string.
func (p *AccessTokenProvider) Token(ctx context.Context, conn Connector, req *RouterData) (string, error) {
	if !conn.RequiresAccessToken() {
		return "", nil
	}

	key := accessTokenKey(req.MerchantID, conn.Name())
	cached, err := p.cache.Get(ctx, key)
	switch {
	case err == nil:
		return string(cached), nil
	case !errors.Is(err, cache.ErrMiss):
		log.Printf("Access token cache read failed for %s: %v", key, err)
	}

	tokenReq := *req
	tokenReq.Flow = FlowAccessToken
	token, err := conn.AccessToken(ctx, &tokenReq)
	if err != nil {
		return "", err
	}

	ttl := time.Duration(token.ExpiresIn)*time.Second - tokenExpiryBuffer
	if ttl > 0 {
		if err := p.cache.Set(ctx, key, []byte(token.Token), ttl); err != nil {
			log.Printf("Access token cache write failed for %s: %v", key, err)
		}
	}
	return token.Token, nil
}

// Invalidate drops a cached token, e.g. after the connector rejected it.
func (p *AccessTokenProvider) Invalidate(ctx context.Context, merchantID, connectorName string) error {
	return p.cache.Delete(ctx, accessTokenKey(merchantID, connectorName))
}
