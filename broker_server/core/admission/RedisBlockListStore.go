package admission

import (
	"time"

	"github.com/pkg/errors"

	"tbroker/common/redis"
)

const DefaultRedisKeyPrefix = "tbroker:blocklist:"

// RedisBlockListStore keeps the block list in redis so that brokers sharing one redis instance
// share their block list. Expiry is left to redis.
type RedisBlockListStore struct {
	client redis.IRedisClient
	prefix string
}

func NewRedisBlockListStore(client redis.IRedisClient, prefix string) *RedisBlockListStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisBlockListStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisBlockListStore) key(record string) string {
	return s.prefix + record
}

func (s *RedisBlockListStore) Add(record string, ttl time.Duration) (exist bool, err error) {
	set, err := s.client.SetNXWithExp(s.key(record), time.Now().Add(ttl).Unix(), ttl)
	if err != nil {
		return false, errors.Wrapf(err, "unable to add %s to redis block list", record)
	}
	return !set, nil
}

func (s *RedisBlockListStore) Has(record string) (bool, error) {
	exist, err := s.client.Exists(s.key(record))
	if err != nil {
		return false, errors.Wrapf(err, "unable to look up %s in redis block list", record)
	}
	return exist, nil
}

func (s *RedisBlockListStore) Delete(record string) (bool, error) {
	existed, err := s.client.Delete(s.key(record))
	if err != nil {
		return false, errors.Wrapf(err, "unable to delete %s from redis block list", record)
	}
	if !existed {
		return false, ErrRecordNotFound
	}
	return true, nil
}

func (s *RedisBlockListStore) Close() {
	s.client.Close()
}
