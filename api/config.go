package api

import "crypto/ed25519"

type ServerConfig struct {
	DB     DBConfig
	S3     S3Config
	Stripe StripeConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Mail   MailConfig
	Site   SiteConfig
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type S3Config struct {
	AccessKeyID      string
	SecretAccessKey  string
	Endpoint         string
	Bucket           string
	PublicBaseURL    string
	RateLimitPerHour int64
}

type StripeConfig struct {
	SecretKey     string
	PublicKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelBaseURL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	// PublicKey 用於驗證 access token 的簽章；發行 token 屬於外部的認證服務
	PublicKey ed25519.PublicKey
}

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SiteConfig struct {
	BaseURL string
	// PopularLocationIDs 是首頁顯示的人氣地區，由設定載入而非寫死在程式內
	PopularLocationIDs []int
}
