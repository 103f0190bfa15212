package internal

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Host       string `env:"HOST"`
	Port       int    `env:"PORT,default=8080" validate:"gt=0,lt=65536"`
	HealthPort int    `env:"HEALTH_PORT,default=8081" validate:"gt=0,lt=65536,nefield=Port"`
	DebugPort  int    `env:"DEBUG_PORT" validate:"gte=0,lt=65536"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true" validate:"required"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true" validate:"required"`
	SyncWrites     bool   `env:"SYNC_WRITES,default=true"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64" validate:"gt=0"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=2s" validate:"gt=0"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=30s" validate:"gt=0"`
	ReadLimit            int           `env:"READ_LIMIT,default=65536" validate:"gt=0"`

	LimitMessages    int `env:"LIMIT_MESSAGES,default=50" validate:"gt=0,ltefield=MaxLimitMessages"`
	MaxLimitMessages int `env:"MAX_LIMIT_MESSAGES,default=200" validate:"gt=0"`
	IndexBufferSize  int `env:"INDEX_BUFFER_SIZE,default=1024" validate:"gte=0"`

	StatsInterval   time.Duration `env:"STATS_INTERVAL,default=30s" validate:"gt=0"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s" validate:"gt=0"`
}

// Validate checks the cross-field rules the env tags cannot express.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
