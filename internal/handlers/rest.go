package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/SASlabgroup/microSWIFT-programmer/internal/calibration"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/fit"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/models"
	"github.com/SASlabgroup/microSWIFT-programmer/internal/sampling"
)

// SessionController операции сессии калибровки, доступные через REST
type SessionController interface {
	StartCapture(index int) error
	StopCapture() error
	ResetCapture(index int) error
	Resize(n int) error
	SetReference(index int, value float64) error
	SetTargetSamples(index int, n int) error
	SetThreshold(threshold float64) error
	CanFit() bool
	Fit(degree int, orientation models.Orientation) (models.FitResult, error)
	ExportSamples() []models.ExportRow
	Snapshot() calibration.Snapshot
}

// RESTAPIServer обрабатывает REST API запросы
type RESTAPIServer struct {
	session     SessionController
	broadcaster *Broadcaster
	logger      *slog.Logger

	// Действия над точкой по имени: один обработчик на все точки
	pointActions map[string]func(index int) error
}

// CountRequest число активных точек
type CountRequest struct {
	Count int `json:"count" binding:"required"`
}

// ThresholdRequest порог относительного СКО
type ThresholdRequest struct {
	Threshold *float64 `json:"threshold" binding:"required"`
}

// PointUpdateRequest настройки точки; отсутствующие поля не меняются
type PointUpdateRequest struct {
	Reference     *float64 `json:"reference"`
	TargetSamples *int     `json:"target_samples"`
}

// FitRequest параметры аппроксимации; пустое тело означает значения по умолчанию
type FitRequest struct {
	Degree      int    `json:"degree"`
	Orientation string `json:"orientation"`
}

// FitResponse коэффициенты и строка уравнения
type FitResponse struct {
	models.FitResult
	RSquaredText string `json:"r_squared_text,omitempty"`
}

// ExportResponse строки выгрузки
type ExportResponse struct {
	Rows  []models.ExportRow `json:"rows"`
	Count int                `json:"count"`
}

// HealthResponse состояние сервиса
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Sampling  bool      `json:"sampling"`
	CanFit    bool      `json:"can_fit"`
	Watchers  int       `json:"watchers"`
}

// ErrorResponse стандартный ответ об ошибке
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный ответ об успехе
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRESTAPIServer создает новый REST API сервер; broadcaster может быть nil
func NewRESTAPIServer(session SessionController, broadcaster *Broadcaster, logger *slog.Logger) *RESTAPIServer {
	if logger == nil {
		logger = slog.Default()
	}
	api := &RESTAPIServer{
		session:     session,
		broadcaster: broadcaster,
		logger:      logger.With("component", "rest"),
	}
	api.pointActions = map[string]func(int) error{
		"start": session.StartCapture,
		"reset": session.ResetCapture,
	}
	return api
}

// SetupRoutes настраивает маршруты REST API
func (api *RESTAPIServer) SetupRoutes() *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:80"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	apiGroup := r.Group("/api/v1")

	// === СЕССИЯ КАЛИБРОВКИ ===
	session := apiGroup.Group("/session")
	{
		session.GET("", api.GetSession)
		session.PUT("/count", api.SetCount)
		session.PUT("/threshold", api.SetThreshold)
		session.PUT("/points/:index", api.UpdatePoint)
		session.POST("/points/:index/:action", api.PointAction)
		session.POST("/stop", api.StopCapture)
		session.POST("/fit", api.Fit)
		session.GET("/export", api.Export)
	}

	// === МОНИТОРИНГ СЕРВИСА ===
	monitoring := apiGroup.Group("/monitoring")
	{
		monitoring.GET("/health", api.HealthCheck)
	}

	return r
}

// GetSession текущее состояние всех точек
func (api *RESTAPIServer) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, api.session.Snapshot())
}

// SetCount меняет число активных точек
func (api *RESTAPIServer) SetCount(c *gin.Context) {
	var req CountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Неверный формат данных",
			Details: err.Error(),
		})
		return
	}

	if err := api.session.Resize(req.Count); err != nil {
		api.fail(c, "Не удалось изменить число точек", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Число точек изменено",
		Data:    api.session.Snapshot(),
	})
}

// SetThreshold меняет порог повторяемости
func (api *RESTAPIServer) SetThreshold(c *gin.Context) {
	var req ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Неверный формат данных",
			Details: err.Error(),
		})
		return
	}

	if err := api.session.SetThreshold(*req.Threshold); err != nil {
		api.fail(c, "Не удалось изменить порог", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Порог изменён"})
}

// UpdatePoint меняет эталон и/или число отсчётов точки
func (api *RESTAPIServer) UpdatePoint(c *gin.Context) {
	index, ok := api.pointIndex(c)
	if !ok {
		return
	}

	var req PointUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Неверный формат данных",
			Details: err.Error(),
		})
		return
	}
	if req.Reference == nil && req.TargetSamples == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Нет полей для изменения",
		})
		return
	}

	if req.Reference != nil {
		if err := api.session.SetReference(index, *req.Reference); err != nil {
			api.fail(c, "Не удалось изменить эталон", err)
			return
		}
	}
	if req.TargetSamples != nil {
		if err := api.session.SetTargetSamples(index, *req.TargetSamples); err != nil {
			api.fail(c, "Не удалось изменить число отсчётов", err)
			return
		}
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Точка обновлена",
		Data:    api.session.Snapshot().Points[index],
	})
}

// PointAction запуск или сброс захвата точки
func (api *RESTAPIServer) PointAction(c *gin.Context) {
	index, ok := api.pointIndex(c)
	if !ok {
		return
	}

	action := c.Param("action")
	handler, found := api.pointActions[action]
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Неизвестное действие",
			Details: action,
		})
		return
	}

	if err := handler(index); err != nil {
		api.fail(c, "Действие не выполнено", err)
		return
	}

	api.logger.Info("действие над точкой", "index", index, "action", action)
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Действие выполнено",
		Data:    api.session.Snapshot(),
	})
}

// StopCapture останавливает идущий захват с сохранением частичной серии
func (api *RESTAPIServer) StopCapture(c *gin.Context) {
	if err := api.session.StopCapture(); err != nil {
		api.fail(c, "Не удалось остановить захват", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Захват остановлен",
		Data:    api.session.Snapshot(),
	})
}

// Fit строит калибровочную кривую
func (api *RESTAPIServer) Fit(c *gin.Context) {
	var req FitRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Неверный формат данных",
			Details: err.Error(),
		})
		return
	}

	result, err := api.session.Fit(req.Degree, models.Orientation(req.Orientation))
	if err != nil {
		api.fail(c, "Аппроксимация не построена", err)
		return
	}

	resp := FitResponse{FitResult: result}
	if result.RSquared != nil {
		resp.RSquaredText = fit.FormatRSquared(*result.RSquared)
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Калибровочная кривая построена",
		Data:    resp,
	})
}

// Export строки (эталон, отсчёт) готовых точек
func (api *RESTAPIServer) Export(c *gin.Context) {
	rows := api.session.ExportSamples()
	c.JSON(http.StatusOK, ExportResponse{Rows: rows, Count: len(rows)})
}

// HealthCheck проверка здоровья сервиса
func (api *RESTAPIServer) HealthCheck(c *gin.Context) {
	snap := api.session.Snapshot()
	watchers := 0
	if api.broadcaster != nil {
		watchers = api.broadcaster.Subscribers()
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   "OBS Calibrator",
		Timestamp: time.Now().UTC(),
		Sampling:  snap.ActiveIndex != nil,
		CanFit:    snap.CanFit,
		Watchers:  watchers,
	})
}

func (api *RESTAPIServer) pointIndex(c *gin.Context) (int, bool) {
	raw := c.Param("index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Неверный индекс точки",
			Details: raw,
		})
		return 0, false
	}
	if index < 0 || index >= calibration.MaxPoints {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Точка не найдена",
			Details: raw,
		})
		return 0, false
	}
	return index, true
}

func (api *RESTAPIServer) fail(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		api.logger.Error(message, "error", err)
	}
	c.JSON(status, ErrorResponse{
		Error:   message,
		Details: err.Error(),
	})
}

// statusFor переводит ошибки сессии в HTTP статусы
func statusFor(err error) int {
	switch {
	case errors.Is(err, calibration.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, calibration.ErrBusy),
		errors.Is(err, calibration.ErrNotReady),
		errors.Is(err, calibration.ErrPointHasData),
		errors.Is(err, calibration.ErrClosed),
		errors.Is(err, sampling.ErrWorkerRunning):
		return http.StatusConflict
	case errors.Is(err, fit.ErrInvalidDegree),
		errors.Is(err, calibration.ErrInvalidCount),
		errors.Is(err, calibration.ErrInvalidSampleCount),
		errors.Is(err, calibration.ErrInvalidThreshold),
		errors.Is(err, calibration.ErrInvalidReference),
		errors.Is(err, calibration.ErrInvalidOrientation),
		errors.Is(err, calibration.ErrDuplicateReference),
		errors.Is(err, sampling.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, fit.ErrFitUndefined):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
