package config

import "time"

// DbSettings selects and configures a database backend.
type DbSettings struct {
	Type       string `mapstructure:"type" validate:"required,oneof=postgres spanner mongo memory"`
	DSN        string `mapstructure:"dsn" validate:"required_if=Type postgres"`
	URI        string `mapstructure:"uri" validate:"required_if=Type spanner,required_if=Type mongo"`
	DBName     string `mapstructure:"db_name"`
	Collection string `mapstructure:"collection"`
}

// CacheSettings configures the key/value cache backing access tokens, the payout
// method locker and the redis_kv storage scheme.
type CacheSettings struct {
	Type     string        `mapstructure:"type" validate:"required,oneof=redis memory"`
	Addr     string        `mapstructure:"addr" validate:"required_if=Type redis"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	KvTTL    time.Duration `mapstructure:"kv_ttl"`
}
