package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Telegram: TelegramConfig{
			UpdateInterval:       200,
			PollTimeout:          30,
			MaxConcurrentUpdates: 8,
		},
		Database: DatabaseConfig{
			URL: "~/.entice/entice.db",
		},
		Metrics: MetricsConfig{
			Enabled:         false,
			Listen:          "127.0.0.1:9464",
			Endpoint:        "/metrics",
			RefreshInterval: 60,
		},
	}
}
