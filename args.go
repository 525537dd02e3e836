package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"furima/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")

	// auth config
	pflag.String("auth-public-key", "", "base64 encoded ed25519 public key")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")
	pflag.Int64("s3-rate-limit-per-hour", 60, "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")

	// stripe config
	pflag.String("stripe-secret-key", "", "")
	pflag.String("stripe-public-key", "", "")
	pflag.String("stripe-webhook-secret", "", "")
	pflag.String("stripe-currency", "aud", "")
	pflag.String("stripe-success-url", "", "")
	pflag.String("stripe-cancel-base-url", "", "")

	// mail config
	pflag.String("mail-host", "", "")
	pflag.Int("mail-port", 587, "")
	pflag.String("mail-username", "", "")
	pflag.String("mail-password", "", "")
	pflag.String("mail-from", "", "")

	// site config
	pflag.String("site-base-url", "", "")
	pflag.IntSlice("site-popular-location-ids", nil, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("FURIMA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			Auth: api.AuthConfig{
				PublicKey: decodePublicKey(viper.GetString("auth-public-key")),
			},
			S3: api.S3Config{
				Endpoint:         viper.GetString("s3-endpoint"),
				Bucket:           viper.GetString("s3-bucket"),
				PublicBaseURL:    viper.GetString("s3-public-base-url"),
				AccessKeyID:      viper.GetString("s3-access-key-id"),
				SecretAccessKey:  viper.GetString("s3-secret-access-key"),
				RateLimitPerHour: viper.GetInt64("s3-rate-limit-per-hour"),
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:     viper.GetString("redis-addr"),
				Password: viper.GetString("redis-password"),
				DB:       viper.GetInt("redis-db"),
			},
			Stripe: api.StripeConfig{
				SecretKey:     viper.GetString("stripe-secret-key"),
				PublicKey:     viper.GetString("stripe-public-key"),
				WebhookSecret: viper.GetString("stripe-webhook-secret"),
				Currency:      viper.GetString("stripe-currency"),
				SuccessURL:    viper.GetString("stripe-success-url"),
				CancelBaseURL: viper.GetString("stripe-cancel-base-url"),
			},
			Mail: api.MailConfig{
				Host:     viper.GetString("mail-host"),
				Port:     viper.GetInt("mail-port"),
				Username: viper.GetString("mail-username"),
				Password: viper.GetString("mail-password"),
				From:     viper.GetString("mail-from"),
			},
			Site: api.SiteConfig{
				BaseURL:            viper.GetString("site-base-url"),
				PopularLocationIDs: viper.GetIntSlice("site-popular-location-ids"),
			},
		},
	}
}

func decodePublicKey(encoded string) ed25519.PublicKey {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil
	}
	return ed25519.PublicKey(raw)
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	return args.ServerURL != "" &&
		args.ServerConfig.Auth.PublicKey != nil &&
		args.ServerConfig.DB.Host != "" &&
		args.ServerConfig.Stripe.SecretKey != "" &&
		args.ServerConfig.Stripe.WebhookSecret != ""
}
