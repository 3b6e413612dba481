package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"chat_sync_service/internal/engine/app"
	"chat_sync_service/internal/engine/repository"
	"chat_sync_service/internal/engine/router"
	"chat_sync_service/pkg/config"
	"chat_sync_service/pkg/database"
	"chat_sync_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatEngine, config.EnvConfig.ChatEngineLogPath)
	cfg := config.LoadConfig[config.ChatEngine](config.EnvConfig.ChatEngine, config.EnvConfig.ChatEngineYAMLPath)

	// 2. 建立 Mongo 連線 (存訊息、反應)
	ctx := context.Background()
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s]", uri)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// 3. 建立 Redis 連線 (Pub/Sub 事件流 + 已讀水位)
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	// 4. 建立 PostgreSQL 連線 (presence 心跳)
	pgConnStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database)
	pg, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    pgConnStr,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect postgreSQL err : %v", err))
	}

	// 5. 建立 MinIO 連線 (訊息附件)
	mc, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      cfg.Minio.Endpoint,
		User:          cfg.Minio.AccessKey,
		Password:      cfg.Minio.SecretKey,
		BucketName:    cfg.Minio.Bucket,
		UseSSL:        cfg.Minio.UseSSL,
		RetryCount:    5,
		RetryInterval: 2,
	})
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect minIO err : %v", err))
	}

	// 6. 建立 RabbitMQ 連線 (桌面通知、提示音)
	rabbitConn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    cfg.RabbitMQ.URL,
		RetryCount:    5,
		RetryInterval: 2,
	})
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect rabbitMQ err : %v", err))
	}
	defer rabbitConn.Close()
	rabbitCh, err := database.GetRabbitMQChannelWithRetry(rabbitConn, 5, 2)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("rabbitMQ channel err : %v", err))
	}
	defer rabbitCh.Close()

	// 7. 初始化 Repository
	msgRepo := repository.NewMongoMessageRepository(mongo.Database)
	reactionRepo := repository.NewMongoReactionRepository(mongo.Database)
	stream := repository.NewRedisEventStream(redisClient)
	watermarkRepo := repository.NewRedisWatermarkRepository(redisClient)
	presenceRepo := repository.NewPresenceRepo(pg)
	if err := presenceRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal(fmt.Sprintf("presence migrate err : %v", err))
	}
	attachmentRepo := repository.NewMinioAttachmentRepository(mc)
	notifier, err := repository.NewRabbitNotifier(rabbitCh)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("notifier err : %v", err))
	}

	// 8. engine 設定，yaml 沒給的用預設值
	engineCfg := app.DefaultConfig()
	if cfg.Sync.HeartbeatInterval > 0 {
		engineCfg.HeartbeatInterval = cfg.Sync.HeartbeatInterval
	}
	if cfg.Sync.TypingIdle > 0 {
		engineCfg.TypingIdleTimeout = cfg.Sync.TypingIdle
	}
	if cfg.Sync.TypingStale > 0 {
		engineCfg.TypingStaleAfter = cfg.Sync.TypingStale
	}
	if cfg.Sync.SweepInterval > 0 {
		engineCfg.SweepInterval = cfg.Sync.SweepInterval
	}
	if cfg.Sync.ReconnectBase > 0 {
		engineCfg.ReconnectInitial = cfg.Sync.ReconnectBase
	}
	if cfg.Sync.ReconnectMax > 0 {
		engineCfg.ReconnectMax = cfg.Sync.ReconnectMax
	}
	if cfg.Sync.BackfillLimit > 0 {
		engineCfg.BackfillLimit = cfg.Sync.BackfillLimit
	}

	deps := app.Deps{
		Stream:      stream,
		Messages:    msgRepo,
		Reactions:   reactionRepo,
		Watermarks:  watermarkRepo,
		Presence:    presenceRepo,
		Attachments: attachmentRepo,
		Notifier:    notifier,
	}

	// 9. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatEngineLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	// 注册路由
	router.RegisterRoutes(r, app.NewEngineWebsocketHandler(engineCfg, deps))

	// Listen
	port := ":" + cfg.Port
	log.Printf("Chat Engine listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
