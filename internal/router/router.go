package router

import (
	"runquest/internal/handler"
	"runquest/internal/middleware"
	"runquest/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Options 运行期依赖；ProofDir 非空时以 /proofs 提供本地存储的图片
type Options struct {
	ProofDir string
}

func SetupRouter(svcCtx *service.ServiceContext, opts Options) *gin.Engine {
	cfg := svcCtx.Config
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(middleware.RequestLog(svcCtx.Metrics))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	// 初始化handlers
	runHandler := handler.NewRunHandler(svcCtx.Progression)
	challengeHandler := handler.NewChallengeHandler(svcCtx.Catalog)
	uploadHandler := handler.NewUploadHandler(svcCtx.Proofs)
	statsHandler := handler.NewStatsHandler(svcCtx.Stats, svcCtx.DB)

	r.GET("/health", statsHandler.Health)
	r.GET("/metrics", gin.WrapH(svcCtx.Metrics.Handler()))
	if opts.ProofDir != "" {
		r.Static("/proofs", opts.ProofDir)
	}

	// API路由
	api := r.Group("/api")
	{
		// 关卡目录
		challenges := api.Group("/challenges")
		{
			challenges.GET("", challengeHandler.ListChallenges)
			challenges.GET("/tiers", challengeHandler.ListTiers)
		}

		// 闯关
		runs := api.Group("/runs")
		{
			runs.POST("", runHandler.StartRun)
			runs.GET("/:id", runHandler.GetRun)
			runs.POST("/:id/outcome", runHandler.SubmitOutcome)
			runs.PUT("/:id/proof-pending", runHandler.SetProofPending)
			runs.POST("/:id/finish", runHandler.FinishRun)
			runs.GET("/:id/steps", runHandler.ListSteps)
		}

		api.GET("/users/:id/runs", runHandler.ListUserRuns)
		api.GET("/stats", statsHandler.GetStats)

		limiter := middleware.NewIPRateLimiter(cfg.Storage.RatePerMinute)
		api.POST("/upload", middleware.RateLimit(limiter), uploadHandler.Upload)
	}

	return r
}
