package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/microcosm-cc/bluemonday"
	stripe "github.com/stripe/stripe-go/v79"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"furima/adapters/mailer"
	"furima/adapters/payment"
	internalS3 "furima/adapters/s3"
	"furima/adapters/scheduler"
)

// CheckoutGateway 是付款服務的操作介面，方便測試時替換
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, lines []payment.LineItem, meta payment.CheckoutMetadata, successURL, cancelURL string) (string, error)
	VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

// PromotionScheduler 是推廣到期任務的排程介面
type PromotionScheduler interface {
	SchedulePromotionDelete(ctx context.Context, promotionID uint, at time.Time) error
}

type ServerImpl struct {
	db          *gorm.DB
	gateway     CheckoutGateway
	scheduler   PromotionScheduler
	imageStore  *internalS3.ImageStore
	htmlChecker *bluemonday.Policy
	mailer      mailer.Mailer

	closers []func() error
	config  ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}

	// 初始化S3客戶端
	s3Cfg, err := awsCfg.LoadDefaultConfig(
		context.Background(),
		awsCfg.WithBaseEndpoint(config.S3.Endpoint),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.S3.AccessKeyID, config.S3.SecretAccessKey, "")),
		awsCfg.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}
	imageStore, err := internalS3.NewImageStore(awsS3.NewFromConfig(s3Cfg), config.S3.Bucket, config.S3.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create image store, err=%w", op, err)
	}

	// 初始化付款gateway
	gateway := payment.NewGateway(config.Stripe.SecretKey, config.Stripe.WebhookSecret, config.Stripe.Currency)

	// 初始化延遲任務排程（推廣到期刪除由外部worker執行）
	taskScheduler := scheduler.NewScheduler(asynq.RedisClientOpt{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	// 初始化通知信寄送
	var mailSender mailer.Mailer
	if config.Mail.Host != "" {
		smtpMailer, err := mailer.NewSMTPMailer(config.Mail.Host, config.Mail.Port, config.Mail.Username, config.Mail.Password, config.Mail.From)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create SMTP mailer, err=%w", op, err)
		}
		mailSender = smtpMailer
	} else {
		slog.Warn("SMTP is not configured, mails will only be logged")
		mailSender = mailer.LogMailer{}
	}

	return &ServerImpl{
		db:          db,
		gateway:     gateway,
		scheduler:   taskScheduler,
		imageStore:  imageStore,
		htmlChecker: bluemonday.UGCPolicy(),
		mailer:      mailSender,
		closers:     []func() error{taskScheduler.Close},
		config:      config,
	}, nil
}

func (impl *ServerImpl) Close() {
	for _, close := range impl.closers {
		if err := close(); err != nil {
			slog.Error("Fail to close resource", slog.Any("error", err))
		}
	}
}

// RegisterHandlers 註冊所有資源的路由
func (impl *ServerImpl) RegisterHandlers(router *gin.Engine) {
	router.Use(impl.AuthMiddleware())

	api := router.Group("/api")

	categories := api.Group("/categories")
	{
		categories.GET("", impl.ListCategories)
		categories.GET("/root", impl.RootCategories)
		categories.GET("/set", impl.CategorySet)
		categories.GET("/:id", impl.RetrieveCategory)
	}

	locations := api.Group("/locations")
	{
		locations.GET("", impl.ListLocations)
		locations.GET("/root", impl.RootLocations)
		locations.GET("/popular", impl.PopularLocations)
		locations.GET("/autocomplete", impl.AutocompleteLocations)
		locations.GET("/set", impl.LocationSet)
		locations.GET("/:id", impl.RetrieveLocation)
	}

	keywords := api.Group("/keywords")
	{
		keywords.GET("/autocomplete", impl.AutocompleteKeywords)
		keywords.POST("/register", impl.RegisterKeyword)
	}

	items := api.Group("/items")
	{
		items.GET("", impl.ListItems)
		items.POST("", impl.CreateItem)
		items.GET("/fixed", impl.ListFixedItems)
		items.GET("/empty-form-data", impl.EmptyItemFormData)
		items.GET("/:id", impl.RetrieveItem)
		items.PUT("/:id", impl.UpdateItem)
		items.DELETE("/:id", impl.DeleteItem)
		items.POST("/:id/renew", impl.RenewItem)
		items.GET("/:id/related", impl.RelatedItems)
		items.GET("/:id/form-data", impl.ItemFormData)
		items.GET("/:id/participant", impl.ExistingParticipant)
	}

	api.POST("/images", impl.UploadImage)

	promotion := api.Group("/promotion")
	{
		promotion.GET("/types", impl.ListPromotionTypes)
		promotion.GET("/items/:id", impl.PromotionEligibility)
		promotion.POST("/checkout", impl.CreateCheckout)
		promotion.POST("/webhook", impl.PaymentWebhook)
	}

	participants := api.Group("/participants")
	{
		participants.GET("", impl.ListParticipants)
		participants.POST("", impl.CreateParticipant)
		participants.GET("/unconfirmed", impl.UnconfirmedParticipants)
		participants.GET("/:id", impl.RetrieveParticipant)
		participants.POST("/:id/mark-delete", impl.MarkParticipantDeleted)
	}

	responses := api.Group("/responses")
	{
		responses.GET("", impl.ListResponses)
		responses.POST("", impl.CreateResponse)
	}
}
