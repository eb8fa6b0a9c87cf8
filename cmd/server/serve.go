package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"insight-qa-go/internal/config"
	"insight-qa-go/internal/handler"
	"insight-qa-go/internal/middleware"
	"insight-qa-go/internal/pipeline"
	"insight-qa-go/internal/repository"
	"insight-qa-go/internal/service"
	"insight-qa-go/internal/session"
	"insight-qa-go/pkg/database"
	"insight-qa-go/pkg/embedding"
	"insight-qa-go/pkg/es"
	"insight-qa-go/pkg/kafka"
	"insight-qa-go/pkg/llm"
	"insight-qa-go/pkg/log"
	"insight-qa-go/pkg/piston"
	"insight-qa-go/pkg/storage"
	"insight-qa-go/pkg/tika"
	"insight-qa-go/pkg/token"
	"insight-qa-go/pkg/youtube"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

// optionalBackends 汇总可以关闭的外部依赖，未启用的字段保持为 nil 接口。
type optionalBackends struct {
	producer *kafka.Producer
	events   service.EventPublisher
	mirror   service.ChunkMirror
	archive  service.Archiver
	cleaners []service.SessionCleaner
}

func initOptionalBackends(ctx context.Context, cfg config.Config) optionalBackends {
	var b optionalBackends

	if cfg.Kafka.Enabled {
		b.producer = kafka.NewProducer(cfg.Kafka)
		b.events = b.producer
	} else {
		log.Info("Kafka 未启用，导入事件不会发布")
	}

	if cfg.Elasticsearch.Enabled {
		mirror, err := es.NewChunkMirror(cfg.Elasticsearch, cfg.Embedding.Dimensions, cfg.Embedding.Model)
		if err != nil {
			log.Errorf("Elasticsearch 初始化失败，片段镜像已关闭: %v", err)
		} else {
			b.mirror = mirror
			b.cleaners = append(b.cleaners, mirror)
		}
	}

	if cfg.MinIO.Enabled {
		archive, err := storage.NewArchive(ctx, cfg.MinIO)
		if err != nil {
			log.Errorf("MinIO 初始化失败，上传归档已关闭: %v", err)
		} else {
			b.archive = archive
		}
	}
	return b
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. 初始化配置与日志
	cfg := setup()
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// 2. 初始化数据库和 Redis
	if err := database.InitMySQL(cfg.Database.MySQL); err != nil {
		log.Fatal("MySQL 初始化失败", err)
	}
	if err := database.InitRedis(cfg.Database.Redis); err != nil {
		log.Fatal("Redis 初始化失败", err)
	}
	backends := initOptionalBackends(ctx, cfg)

	// 3. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.RDB)
	codingRepo := repository.NewCodingRepository(database.RDB)
	ingestionRepo := repository.NewIngestionRepository(database.DB, database.RDB)
	interviewRepo := repository.NewInterviewRepository(database.DB, database.RDB, time.Duration(cfg.Interview.StateTTLHours)*time.Hour)

	// 4. 初始化外部服务客户端
	tikaClient := tika.NewClient(cfg.Tika)
	youtubeClient := youtube.NewClient(cfg.YouTube)
	pistonClient := piston.NewClient(cfg.Piston)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)

	// 5. 初始化导入管道与会话存储
	processor := pipeline.NewProcessor(tikaClient, embeddingClient, youtubeClient, cfg.Upload, cfg.Dataset, cfg.Retrieval)
	store := session.NewStore(
		time.Duration(cfg.Session.TTLMinutes)*time.Minute,
		time.Duration(cfg.Session.CleanupIntervalMinutes)*time.Minute,
		cfg.Session.IndexDir,
	)
	defer store.Close()

	// 6. 初始化 Service (依赖注入)
	router := service.NewQueryRouter(llmClient, processor, cfg.Retrieval, cfg.Dataset)
	composer := service.NewAnswerComposer(llmClient)
	qaService := service.NewQAService(store, router, composer, conversationRepo, cfg.Retrieval.MaxTopK)
	ingestionService := service.NewIngestionService(store, processor, cfg.Dataset.PreviewRows, backends.archive, backends.mirror, backends.events)
	cleaners := append([]service.SessionCleaner{codingRepo, interviewRepo}, backends.cleaners...)
	sessionService := service.NewSessionService(store, conversationRepo, backends.archive, cleaners...)
	auditService := service.NewAuditService(ingestionRepo)
	codingService := service.NewCodingService(llmClient, pistonClient, codingRepo, cfg.Coding.HistorySize, cfg.Coding.NumHints)
	interviewService := service.NewInterviewService(llmClient, interviewRepo, cfg.Interview)

	// 7. 启动后台 Kafka 消费者，把导入事件写入审计表
	if cfg.Kafka.Enabled {
		go kafka.StartConsumer(ctx, cfg.Kafka, auditService, ingestionRepo)
	}

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.Metrics(), middleware.RequestLogger(cfg.Log.MaxBodyBytes), gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sessions := token.NewSessionManager(cfg.JWT.Secret, cfg.JWT.SessionExpireDays)
	registerRoutes(r, cfg, sessions, routeHandlers{
		dataset:   handler.NewDatasetHandler(ingestionService, qaService),
		document:  handler.NewDocumentHandler(ingestionService, qaService),
		video:     handler.NewVideoHandler(ingestionService, qaService),
		session:   handler.NewSessionHandler(sessionService, auditService),
		coding:    handler.NewCodingHandler(codingService),
		interview: handler.NewInterviewHandler(interviewService),
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者并关闭生产者
	cancel()
	if backends.producer != nil {
		if err := backends.producer.Close(); err != nil {
			log.Warnf("Kafka 生产者关闭失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
	return nil
}

type routeHandlers struct {
	dataset   *handler.DatasetHandler
	document  *handler.DocumentHandler
	video     *handler.VideoHandler
	session   *handler.SessionHandler
	coding    *handler.CodingHandler
	interview *handler.InterviewHandler
}

// registerRoutes 注册 /api/v1 下的全部路由，所有路由都经过会话中间件。
func registerRoutes(r *gin.Engine, cfg config.Config, sessions *token.SessionManager, h routeHandlers) {
	apiV1 := r.Group("/api/v1")
	apiV1.Use(
		middleware.BodyLimit(cfg.Upload.MaxRequestBytes),
		middleware.SessionMiddleware(sessions, middleware.SessionOptions{
			CookieName: cfg.Session.CookieName,
			HeaderName: cfg.Session.HeaderName,
			MaxAge:     cfg.JWT.SessionExpireDays * 24 * 3600,
			Secure:     cfg.Server.Mode == gin.ReleaseMode,
		}),
	)

	datasets := apiV1.Group("/datasets")
	{
		datasets.POST("/upload", h.dataset.Upload)
		datasets.POST("/ask", h.dataset.Ask)
	}

	documents := apiV1.Group("/documents")
	{
		documents.POST("/upload", h.document.Upload)
		documents.POST("/ask", h.document.Ask)
		documents.GET("/search", h.document.Search)
	}

	videos := apiV1.Group("/videos")
	{
		videos.POST("/analyze", h.video.Analyze)
		videos.POST("/ask", h.video.Ask)
		videos.GET("/search", h.video.Search)
	}

	sess := apiV1.Group("/session")
	{
		sess.POST("/clear", h.session.Clear)
		sess.GET("/status", h.session.Status)
		sess.GET("/history", h.session.History)
		sess.GET("/ingestions", h.session.Ingestions)
	}

	coding := apiV1.Group("/coding")
	{
		coding.GET("/languages", h.coding.Languages)
		coding.POST("/generate", h.coding.Generate)
		coding.POST("/validate", h.coding.Validate)
		coding.POST("/hint", h.coding.Hint)
		coding.POST("/run", h.coding.Run)
		coding.POST("/solution", h.coding.Solution)
	}

	iv := apiV1.Group("/interview")
	{
		iv.POST("/generate", h.interview.Generate)
		iv.POST("/answer", h.interview.Answer)
		iv.POST("/analyze", h.interview.Analyze)
		// 录制状态机 (WebSocket)
		iv.GET("/recorder", h.interview.Recorder)
	}
}
