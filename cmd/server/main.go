// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-assist-go/internal/config"
	"ai-assist-go/internal/handler"
	"ai-assist-go/internal/middleware"
	"ai-assist-go/internal/pipeline"
	"ai-assist-go/internal/repository"
	"ai-assist-go/internal/service"
	"ai-assist-go/pkg/cache"
	"ai-assist-go/pkg/database"
	"ai-assist-go/pkg/embedding"
	"ai-assist-go/pkg/es"
	"ai-assist-go/pkg/kafka"
	"ai-assist-go/pkg/llm"
	"ai-assist-go/pkg/log"
	"ai-assist-go/pkg/storage"
	"ai-assist-go/pkg/tika"
	"ai-assist-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、缓存与外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN)
	answerCache := cache.New(
		cfg.Database.Redis.Addr,
		cfg.Database.Redis.Password,
		cfg.Database.Redis.DB,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second,
	)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 LLM 提供方
	llmService, err := llm.NewServiceFromConfig(cfg.LLM)
	if err != nil {
		log.Errorf("LLM 服务初始化失败: %v", err)
		return
	}
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := llmService.Initialize(initCtx); err != nil {
		cancelInit()
		log.Errorf("LLM 提供方初始化失败: %v", err)
		return
	}
	cancelInit()
	defer llmService.Close()

	// 5. 初始化 Repository 与 Service (依赖注入)
	userRepository := repository.NewUserRepository(database.DB)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)

	userService := service.NewUserService(userRepository, jwtManager)
	documentService := service.NewDocumentService(es.ESClient, cfg.Elasticsearch, embeddingClient, cfg.Embedding, tikaClient, cfg.Document)
	sanitizer := service.NewSQLSanitizer(cfg.SQLGen.DefaultLimit)
	dbService := service.NewDatabaseService(database.DB, answerCache, sanitizer)
	sqlGen := service.NewSQLGenerator(llmService, answerCache, cfg.SQLGen)
	urlService := service.NewURLService(cfg.URLFetch, answerCache)
	langService := service.NewLanguageService()
	qaService := service.NewQAService(llmService, documentService, dbService, sqlGen, urlService, langService, answerCache)

	// 6. 初始化索引管道并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(documentService, cfg.MinIO)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
			}
		}

		// 问答路由组，需要认证
		qaHandler := handler.NewQAHandler(qaService, documentService)
		qa := apiV1.Group("/")
		qa.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			qa.GET("/question/:query", qaHandler.GetAnswer)
			qa.POST("/query", qaHandler.Query)
		}

		// Document 路由组，需要认证
		docHandler := handler.NewDocumentHandler(documentService, cfg.Document, cfg.MinIO)
		documents := apiV1.Group("/documents")
		documents.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			documents.POST("/upload", docHandler.Upload)
			documents.GET("", docHandler.List)
			documents.DELETE("/clear", docHandler.Clear)
			documents.DELETE("/:docId", docHandler.Delete)
			documents.PATCH("/:docId/status", docHandler.UpdateStatus)
		}

		// Settings 路由组，需要认证
		settingsHandler := handler.NewSettingsHandler(llmService)
		settings := apiV1.Group("/settings")
		settings.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			settings.GET("/provider", settingsHandler.GetProvider)
			settings.PUT("/provider", settingsHandler.SetProvider)
		}
	}

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
