package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/woodtypes/internal/auth"
	"github.com/annel0/woodtypes/internal/logging"
	"github.com/annel0/woodtypes/internal/middleware"
	"github.com/annel0/woodtypes/internal/woodtype"
)

// RestServer представляет REST API сервер реестра типов дерева
type RestServer struct {
	router    *gin.Engine
	server    *http.Server
	registry  *woodtype.Registry
	tokens    *auth.TokenIssuer
	namespace string
	source    string
	stats     *processStats
	logger    *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port      string             // порт для запуска сервера, например ":8088"
	Registry  *woodtype.Registry // реестр типов дерева
	Tokens    *auth.TokenIssuer  // проверка токенов админских маршрутов; nil отключает их
	Namespace string             // namespace по умолчанию для идентификаторов без префикса
	Source    string             // имя сервиса в событиях шины

	// Регистр и сборщик Prometheus; nil означает глобальные
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Registry == nil {
		return nil, errors.New("api: registry is required")
	}
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Namespace == "" {
		config.Namespace = woodtype.DefaultNamespace
	}
	if config.Source == "" {
		config.Source = "woodtypes"
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	logger := logging.GetAPILogger()
	router.Use(otelgin.Middleware("woodtypes_api"))
	router.Use(middleware.NewRequestLogger(logger).Handler())

	promMw, err := middleware.NewPrometheusMiddleware("woodtypes_api", config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("prometheus middleware: %w", err)
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	rs := &RestServer{
		router:    router,
		registry:  config.Registry,
		tokens:    config.Tokens,
		namespace: config.Namespace,
		source:    config.Source,
		stats:     newProcessStats(),
		logger:    logger,
	}
	rs.server = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	api := rs.router.Group("/api")
	{
		api.GET("/woodtypes", rs.handleList)
		api.GET("/woodtypes/:namespace/:path", rs.handleGet)
		api.GET("/woodtypes/:namespace/:path/components/:type", rs.handleComponent)
		api.GET("/subscriptions", rs.handleSubscriptions)
		api.POST("/classify", rs.handleClassify)
	}

	// Административные эндпоинты (только для админов)
	if rs.tokens != nil {
		admin := api.Group("/admin")
		admin.Use(rs.jwtMiddleware(), rs.adminMiddleware())
		{
			admin.POST("/blocks", rs.handleIngestBlocks)
		}
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, GenericResponse{Success: false, Message: message})
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, GenericResponse{Success: true, Message: message, Data: data})
}

// Handler возвращает http.Handler сервера (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// handleHealth возвращает состояние сервиса
func (rs *RestServer) handleHealth(c *gin.Context) {
	report := HealthReport{Status: "ok", WoodTypes: rs.registry.Len()}
	rs.stats.fill(&report)
	c.JSON(http.StatusOK, report)
}

// Start запускает HTTP сервер и блокируется до остановки
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 REST API запущен на %s", rs.server.Addr)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает сервер, дожидаясь завершения активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	rs.logger.Info("🛑 Остановка REST API")
	return rs.server.Shutdown(ctx)
}
