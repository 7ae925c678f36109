package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/rpcgate/internal/core/domain"
)

// DefaultStaleRetention keeps cache entries around long past their TTL so
// that other instances can still use them as a stale fallback.
const DefaultStaleRetention = time.Hour

// Client implements storage.CacheStore on a shared Redis instance.
type Client struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
}

// Config holds Redis connection configuration.
type Config struct {
	URL            string        `yaml:"url"`
	Password       string        `yaml:"password"`
	Prefix         string        `yaml:"prefix"`
	StaleRetention time.Duration `yaml:"stale_retention"`
}

// Enabled reports whether a shared cache is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	retention := cfg.StaleRetention
	if retention <= 0 {
		retention = DefaultStaleRetention
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "rpcgate:"
	}

	return &Client{rdb: rdb, prefix: prefix, retention: retention}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func (c *Client) selectionKey(network domain.Network) string {
	return fmt.Sprintf("%sselection:%s", c.prefix, network)
}

func (c *Client) blockhashKey(network domain.Network) string {
	return fmt.Sprintf("%sblockhash:%s", c.prefix, network)
}

// GetSelection returns the shared endpoint choice for a network.
func (c *Client) GetSelection(ctx context.Context, network domain.Network) (*domain.Selection, error) {
	var sel domain.Selection
	found, err := c.getJSON(ctx, c.selectionKey(network), &sel)
	if err != nil || !found {
		return nil, err
	}
	return &sel, nil
}

// SetSelection stores the endpoint choice for a network.
func (c *Client) SetSelection(ctx context.Context, network domain.Network, sel *domain.Selection) error {
	return c.setJSON(ctx, c.selectionKey(network), sel)
}

// GetBlockhash returns the shared blockhash for a network.
func (c *Client) GetBlockhash(ctx context.Context, network domain.Network) (*domain.Blockhash, error) {
	var bh domain.Blockhash
	found, err := c.getJSON(ctx, c.blockhashKey(network), &bh)
	if err != nil || !found {
		return nil, err
	}
	return &bh, nil
}

// SetBlockhash stores the blockhash for a network.
func (c *Client) SetBlockhash(ctx context.Context, network domain.Network, bh *domain.Blockhash) error {
	return c.setJSON(ctx, c.blockhashKey(network), bh)
}

// Flush removes both cache entries for a network.
func (c *Client) Flush(ctx context.Context, network domain.Network) error {
	if err := c.rdb.Del(ctx, c.selectionKey(network), c.blockhashKey(network)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s failed: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s failed: %w", key, err)
	}
	return true, nil
}

func (c *Client) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s failed: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, raw, c.retention).Err(); err != nil {
		return fmt.Errorf("set %s failed: %w", key, err)
	}
	return nil
}
