package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"chat_sync_service/internal/engine/app"
	"chat_sync_service/internal/engine/domain"
	"chat_sync_service/internal/engine/repository"
	"chat_sync_service/pkg/database"
	"chat_sync_service/pkg/logger"
	testtool "chat_sync_service/pkg/test_tool"
	"chat_sync_service/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const wsBase = "ws://127.0.0.1:8082/ws"

// **測試用的容器**
var mongoContainer testcontainers.Container
var redisContainer testcontainers.Container
var pgContainer testcontainers.Container
var engineApp *fiber.App

// testNotifier 測試環境沒有 RabbitMQ，通知丟掉
type testNotifier struct{}

func (testNotifier) Notify(ref domain.ConversationRef, preview string) {}
func (testNotifier) PlayIncomingSound()                                {}

// **TestMain 初始化測試環境**
func TestMain(m *testing.M) {
	ctx := context.Background()
	logger.SetNewNop()

	// **啟動 MongoDB**
	mongoContainer, mongoHost, mongoPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:latest",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	})
	if err != nil {
		log.Fatalf("❌ Failed to start MongoDB container: %v", err)
	}
	fmt.Printf("✅ MongoDB running at %s:%s\n", mongoHost, mongoPort)

	// **啟動 Redis**
	redisContainer, redisHost, redisPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:latest",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		log.Fatalf("❌ Failed to start Redis container: %v", err)
	}
	fmt.Printf("✅ Redis running at %s:%s\n", redisHost, redisPort)

	// **啟動 PostgreSQL**
	pgContainer, pgHost, pgPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_presence",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	})
	if err != nil {
		log.Fatalf("❌ Failed to start PostgreSQL container: %v", err)
	}
	fmt.Printf("✅ PostgreSQL running at %s:%s\n", pgHost, pgPort)

	// **初始化 MongoDB**
	mongo, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    fmt.Sprintf("mongodb://%s:%s", mongoHost, mongoPort),
		RetryCount:    5,
		RetryInterval: 5,
	}, "test_chat_db")
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongo.Close(ctx)

	// **初始化 Redis**
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort),
		DB:   0,
	})

	// **初始化 PostgreSQL**
	pg, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    fmt.Sprintf("host=%s port=%s user=test password=test dbname=test_presence sslmode=disable", pgHost, pgPort),
		RetryCount:    5,
		RetryInterval: 2,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to PostgreSQL: %v", err)
	}

	// **初始化 Repository**
	msgRepo := repository.NewMongoMessageRepository(mongo.Database)
	reactionRepo := repository.NewMongoReactionRepository(mongo.Database)
	stream := repository.NewRedisEventStream(redisClient)
	watermarkRepo := repository.NewRedisWatermarkRepository(redisClient)
	presenceRepo := repository.NewPresenceRepo(pg)
	if err := presenceRepo.AutoMigrate(); err != nil {
		log.Fatalf("❌ Failed to migrate presence table: %v", err)
	}

	deps := app.Deps{
		Stream:     stream,
		Messages:   msgRepo,
		Reactions:  reactionRepo,
		Watermarks: watermarkRepo,
		Presence:   presenceRepo,
		Notifier:   testNotifier{},
	}

	// **初始化 Fiber WebSocket Server**
	engineApp = fiber.New()
	RegisterRoutes(engineApp, app.NewEngineWebsocketHandler(app.DefaultConfig(), deps))

	// **啟動 WebSocket Server**
	go func() {
		if err := engineApp.Listen(":8082"); err != nil {
			log.Fatalf("❌ Failed to start WebSocket server: %v", err)
		}
	}()
	fmt.Println("✅ WebSocket Server started at", wsBase)

	// **等待 WebSocket Server 啟動**
	time.Sleep(5 * time.Second)

	// **執行測試**
	code := m.Run()

	// **清理測試環境**
	_ = mongoContainer.Terminate(ctx)
	_ = redisContainer.Terminate(ctx)
	_ = pgContainer.Terminate(ctx)
	engineApp.Shutdown()

	os.Exit(code)
}

func dialAs(t *testing.T, userID, name string) *gws.Conn {
	t.Helper()
	tok, err := token.GenerateJWT(userID, name, string(token.RoleUser), "chat_engine_test")
	require.NoError(t, err)

	conn, _, err := gws.DefaultDialer.Dial(wsBase+"?auth="+tok, nil)
	require.NoError(t, err, "WebSocket 連線失敗")
	return conn
}

// readUntil 一直讀到指定 action 或 timeout
func readUntil(t *testing.T, conn *gws.Conn, action domain.Action, timeout time.Duration) (domain.WSResponse, bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return domain.WSResponse{}, false
		}
		var resp domain.WSResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			continue
		}
		if resp.Action == string(action) {
			return resp, true
		}
	}
	return domain.WSResponse{}, false
}

func send(t *testing.T, conn *gws.Conn, req domain.WSRequest) {
	t.Helper()
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gws.TextMessage, raw))
}

// ✅ 1️⃣ 沒帶 token 連線會被擋下
func TestWebSocketRejectsMissingToken(t *testing.T) {
	_, _, err := gws.DefaultDialer.Dial(wsBase, nil)
	assert.Error(t, err, "無 token 應該連不上")
}

// ✅ 2️⃣ 開啟 conversation 會收到 backfill snapshot
func TestOpenConversation(t *testing.T) {
	conn := dialAs(t, "user_open", "Opener")
	defer conn.Close()

	send(t, conn, domain.WSRequest{Action: string(domain.OpenConversation), ChannelID: "it-room-open"})

	resp, ok := readUntil(t, conn, domain.OpenConversation, 10*time.Second)
	require.True(t, ok, "沒收到 open_conversation 回應")
	assert.True(t, resp.Success)
	assert.Equal(t, "channel:it-room-open", resp.Payload["conversation_key"])
}

// ✅ 3️⃣ 發送訊息：先收到 pending entry，server echo 後換成 confirmed id
func TestSendMessageOptimisticFlow(t *testing.T) {
	conn := dialAs(t, "user_sender", "Sender")
	defer conn.Close()

	send(t, conn, domain.WSRequest{Action: string(domain.OpenConversation), ChannelID: "it-room-send"})
	_, ok := readUntil(t, conn, domain.OpenConversation, 10*time.Second)
	require.True(t, ok)

	send(t, conn, domain.WSRequest{Action: string(domain.SendMessage), Content: "integration hello"})

	// pending 版本
	resp, ok := readUntil(t, conn, domain.NotifyMessage, 10*time.Second)
	require.True(t, ok, "沒收到 pending 訊息")
	msg := resp.Payload["message"].(map[string]interface{})
	assert.Equal(t, "integration hello", msg["content"])
	assert.True(t, domain.IsTempID(msg["id"].(string)))

	// server echo 後的 confirmed 版本
	resp, ok = readUntil(t, conn, domain.NotifyMessage, 10*time.Second)
	require.True(t, ok, "沒收到 confirmed 訊息")
	msg = resp.Payload["message"].(map[string]interface{})
	assert.Equal(t, "integration hello", msg["content"])
	assert.False(t, domain.IsTempID(msg["id"].(string)))
}

// ✅ 4️⃣ 兩個 user 在同一個 channel：typing 事件互通
func TestTypingBetweenTwoUsers(t *testing.T) {
	connA := dialAs(t, "user_a", "Alice")
	defer connA.Close()
	connB := dialAs(t, "user_b", "Bob")
	defer connB.Close()

	send(t, connA, domain.WSRequest{Action: string(domain.OpenConversation), ChannelID: "it-room-typing"})
	_, ok := readUntil(t, connA, domain.OpenConversation, 10*time.Second)
	require.True(t, ok)
	send(t, connB, domain.WSRequest{Action: string(domain.OpenConversation), ChannelID: "it-room-typing"})
	_, ok = readUntil(t, connB, domain.OpenConversation, 10*time.Second)
	require.True(t, ok)

	send(t, connB, domain.WSRequest{Action: string(domain.Typing), Typing: true})

	resp, ok := readUntil(t, connA, domain.NotifyTyping, 10*time.Second)
	require.True(t, ok, "A 沒收到 typing 通知")
	names := resp.Payload["names"].([]interface{})
	require.Len(t, names, 1)
	assert.Equal(t, "Bob", names[0])
}

// ✅ 5️⃣ B 收到 A 在別的 channel 發的訊息：未讀 +1
func TestUnreadAcrossUsers(t *testing.T) {
	connB := dialAs(t, "user_unread_b", "Bee")
	defer connB.Close()
	// B 開著別的 conversation
	send(t, connB, domain.WSRequest{Action: string(domain.OpenConversation), ChannelID: "it-room-other"})
	_, ok := readUntil(t, connB, domain.OpenConversation, 10*time.Second)
	require.True(t, ok)

	connA := dialAs(t, "user_unread_a", "Aye")
	defer connA.Close()
	send(t, connA, domain.WSRequest{Action: string(domain.OpenConversation), ChannelID: "it-room-unread"})
	_, ok = readUntil(t, connA, domain.OpenConversation, 10*time.Second)
	require.True(t, ok)

	send(t, connA, domain.WSRequest{Action: string(domain.SendMessage), Content: "you there?"})

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		resp, ok := readUntil(t, connB, domain.NotifyUnread, time.Until(deadline))
		if !ok {
			break
		}
		counts, _ := resp.Payload["counts"].(map[string]interface{})
		if n, found := counts["channel:it-room-unread"]; found && n.(float64) >= 1 {
			return
		}
	}
	t.Fatal("B 沒收到 channel:it-room-unread 的未讀通知")
}
