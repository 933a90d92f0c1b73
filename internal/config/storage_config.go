package config

import "fmt"

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

type StorageConfig interface {
	GetStorageBackend() string
	GetStorageKey() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Storage struct {
	Backend       string `env:"SESSION_STORAGE" envDefault:"memory"`
	Key           string `env:"SESSION_STORAGE_KEY" envDefault:"auth-shell-session"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

var _ StorageConfig = Storage{}

func (s Storage) validate() error {
	switch s.Backend {
	case StorageMemory, StorageRedis:
		return nil
	}
	return fmt.Errorf("unknown SESSION_STORAGE %q", s.Backend)
}

func (s Storage) GetStorageBackend() string {
	return s.Backend
}

func (s Storage) GetStorageKey() string {
	return s.Key
}

func (s Storage) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Storage) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Storage) GetRedisDB() int {
	return s.RedisDB
}
