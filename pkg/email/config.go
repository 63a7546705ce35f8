package email

// Config holds mail settings. Without a server token the DevSender is used
// and messages are written to DevDir.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	MessageStream        string `env:"POSTMARK_MESSAGE_STREAM" envDefault:"outbound"`
	SenderEmail          string `env:"EMAIL_SENDER" envDefault:"billing@localhost"`
	SupportEmail         string `env:"EMAIL_SUPPORT" envDefault:"support@localhost"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
	ProductName          string `env:"EMAIL_PRODUCT_NAME" envDefault:"Chatbots"`
	DashboardURL         string `env:"EMAIL_DASHBOARD_URL"`
}
