package paddle

// Config holds Paddle API settings. The webhook secret lives in billing.Config.
type Config struct {
	APIKey      string `env:"PADDLE_API_KEY"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"` // production or sandbox
	BaseURL     string `env:"PADDLE_API_URL"`                              // overrides the environment's API host
}
