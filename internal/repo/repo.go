package repo

import "go.uber.org/zap"

type Repository struct {
	log    *zap.Logger
	client *RedisClient

	Streams *StreamRepository
}

func NewRepository(log *zap.Logger, redisAddr string) *Repository {
	log = log.Named("repo")
	client := newRedisClient(redisAddr, 0, log)

	return &Repository{
		log,
		client,
		newStreamRepository(log, client),
	}
}

// Close releases the underlying Redis connection pool.
func (r *Repository) Close() error {
	return r.client.Close()
}
