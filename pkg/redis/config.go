package redis

import "time"

type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	LockTTL  time.Duration `env:"REDIS_LOCK_TTL" envDefault:"30s"` // lease of a subscription lock
	LockWait time.Duration `env:"REDIS_LOCK_WAIT" envDefault:"5s"` // how long Lock keeps retrying
}
