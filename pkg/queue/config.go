package queue

import "time"

// Config holds worker settings.
type Config struct {
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"2s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"2m"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"4"`
	MaxAttempts        int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"5"`
	Storage            string        `env:"QUEUE_STORAGE" envDefault:"postgres"` // postgres or memory
}
