package redis

import (
	"time"

	"github.com/go-redis/redis"
)

type IRedisClient interface {
	Ping() error
	// SetNXWithExp sets key only when it does not exist yet and reports whether it did.
	SetNXWithExp(key string, value interface{}, expiration time.Duration) (bool, error)
	Exists(key string) (bool, error)
	// Delete reports whether key existed.
	Delete(key string) (bool, error)
	Close() error
}

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(addr, pass string, maxRetries int) *RedisClient {
	opt := &redis.Options{
		Addr: addr,
	}
	if pass != "" {
		opt.Password = pass
	}
	if maxRetries > 0 && maxRetries < 5 {
		opt.MaxRetries = maxRetries
	}
	return &RedisClient{
		client: redis.NewClient(opt),
	}
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}

func (c *RedisClient) Ping() (err error) {
	_, err = c.client.Ping().Result()
	return
}

func (c *RedisClient) SetNXWithExp(key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.client.SetNX(key, value, expiration).Result()
}

func (c *RedisClient) Exists(key string) (bool, error) {
	n, err := c.client.Exists(key).Result()
	return n > 0, err
}

func (c *RedisClient) Delete(key string) (bool, error) {
	n, err := c.client.Del(key).Result()
	if err == redis.Nil {
		return false, nil
	}
	return n > 0, err
}
