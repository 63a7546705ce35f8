package httpserver

import "time"

type Config struct {
	Addr              string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// NewFromConfig applies the non-zero values of cfg, then opts.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	var fromCfg []Option
	if cfg.Addr != "" {
		fromCfg = append(fromCfg, WithAddr(cfg.Addr))
	}
	set := func(d time.Duration, apply func(*config, time.Duration)) {
		if d > 0 {
			fromCfg = append(fromCfg, func(c *config) { apply(c, d) })
		}
	}
	set(cfg.ReadHeaderTimeout, func(c *config, d time.Duration) { c.readHeaderTimeout = d })
	set(cfg.ReadTimeout, func(c *config, d time.Duration) { c.readTimeout = d })
	set(cfg.WriteTimeout, func(c *config, d time.Duration) { c.writeTimeout = d })
	set(cfg.IdleTimeout, func(c *config, d time.Duration) { c.idleTimeout = d })
	set(cfg.ShutdownTimeout, func(c *config, d time.Duration) { c.shutdownTimeout = d })
	return New(append(fromCfg, opts...)...)
}
