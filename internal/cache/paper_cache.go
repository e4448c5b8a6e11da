// Package cache keeps paper metadata in Redis so conversation opens and
// visibility checks skip the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/welldanyogia/webrana-confchat/internal/models"
)

// ErrMiss is returned when a paper is not cached
var ErrMiss = errors.New("cache miss")

const keyPrefix = "confchat:paper:"

// PaperCache stores paper metadata by ID
type PaperCache interface {
	Get(ctx context.Context, id string) (*models.Paper, error)
	Set(ctx context.Context, paper *models.Paper) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisPaperCache implements PaperCache on Redis
type RedisPaperCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPaperCache connects to Redis and verifies the connection
func NewRedisPaperCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisPaperCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPaperCache{client: client, ttl: ttl}, nil
}

func paperKey(id string) string {
	return keyPrefix + id
}

// Get returns the cached paper or ErrMiss
func (c *RedisPaperCache) Get(ctx context.Context, id string) (*models.Paper, error) {
	data, err := c.client.Get(ctx, paperKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to read cached paper: %w", err)
	}

	var paper models.Paper
	if err := json.Unmarshal(data, &paper); err != nil {
		// Undecodable entries count as absent; the next Set overwrites them
		return nil, ErrMiss
	}
	return &paper, nil
}

// Set stores a paper with the configured TTL
func (c *RedisPaperCache) Set(ctx context.Context, paper *models.Paper) error {
	data, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("failed to encode paper: %w", err)
	}
	if err := c.client.Set(ctx, paperKey(paper.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache paper: %w", err)
	}
	return nil
}

// Delete evicts a paper
func (c *RedisPaperCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, paperKey(id)).Err()
}

// Ping checks the Redis connection
func (c *RedisPaperCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisPaperCache) Close() error {
	return c.client.Close()
}

// NoopCache is used when no Redis address is configured. Every Get misses.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*models.Paper, error) { return nil, ErrMiss }

func (NoopCache) Set(context.Context, *models.Paper) error { return nil }

func (NoopCache) Delete(context.Context, string) error { return nil }

func (NoopCache) Ping(context.Context) error { return nil }

func (NoopCache) Close() error { return nil }
