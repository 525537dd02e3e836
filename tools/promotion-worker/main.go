package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"furima/adapters/scheduler"
)

// 推廣到期刪除的 worker，消化 API 伺服器排入佇列的延遲任務
func main() {
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

	// worker config
	pflag.Int("concurrency", 5, "")

	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("FURIMA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s",
		viper.GetString("db-user"),
		viper.GetString("db-password"),
		viper.GetString("db-host"),
		viper.GetInt("db-port"),
		viper.GetString("db-database"),
		viper.GetString("db-schema"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: viper.GetString("db-schema") + ".",
		},
	})
	if err != nil {
		panic(err)
	}

	worker := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     viper.GetString("redis-addr"),
			Password: viper.GetString("redis-password"),
			DB:       viper.GetInt("redis-db"),
		},
		asynq.Config{Concurrency: viper.GetInt("concurrency")},
	)
	mux := asynq.NewServeMux()
	mux.Handle(scheduler.TypePromotionDelete, scheduler.NewPromotionDeleteHandler(db, slog.Default()))

	if err := worker.Run(mux); err != nil {
		panic(err)
	}
}
