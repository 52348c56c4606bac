package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/DevN0mad/SprintGantt/internal/models"
	"github.com/DevN0mad/SprintGantt/internal/services"
	"github.com/DevN0mad/SprintGantt/internal/storage"
)

const (
	APIv1Prefix = "/api/v1"

	defaultListLimit      = 20
	defaultMaxUploadBytes = 10 << 20
)

// AdminServerOpts параметры для настройки административного сервера.
type AdminServerOpts struct {
	Address             string `mapstructure:"address" validate:"required"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds" validate:"min=0"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds" validate:"min=0"`
	IdleTimeoutSeconds  int    `mapstructure:"idle_timeout_seconds" validate:"min=0"`
	MaxUploadBytes      int64  `mapstructure:"max_upload_bytes" validate:"min=0"`
	AuthSecret          string `mapstructure:"auth_secret"`
}

// ReportGenerator строит отчеты по настроенной или загруженной выгрузке.
type ReportGenerator interface {
	Generate(ctx context.Context, kind services.ReportKind) (*models.ExportResult, error)
	GenerateFrom(ctx context.Context, kind services.ReportKind, r io.Reader) (*models.ExportResult, error)
}

// RunStore история запусков.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]models.ExportRun, error)
	GetRun(ctx context.Context, id string) (*models.ExportRun, error)
}

// AdminServer HTTP сервер для запуска отчетов и просмотра истории.
type AdminServer struct {
	logger  *slog.Logger
	opts    *AdminServerOpts
	srv     *http.Server
	reports ReportGenerator
	runs    RunStore
}

// NewAdminServer создаёт административный сервер.
func NewAdminServer(logger *slog.Logger, reports ReportGenerator, runs RunStore, opts *AdminServerOpts) *AdminServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminServer{
		logger:  logger,
		opts:    opts,
		reports: reports,
		runs:    runs,
	}
}

// Router регистрирует маршруты административного сервера.
func (h *AdminServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route(APIv1Prefix, func(r chi.Router) {
		if h.opts.AuthSecret != "" {
			r.Use(AuthMiddleware(h.opts.AuthSecret))
		}
		r.Post("/reports/{kind}", h.handleGenerate)
		r.Get("/reports", h.handleListRuns)
		r.Get("/reports/{id}/workbook", h.handleWorkbook)
	})

	return r
}

// handleGenerate строит отчет. Непустое тело запроса используется как выгрузка TSV.
func (h *AdminServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	kind, err := services.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		HandleError(w, r, err)
		return
	}

	limit := h.opts.MaxUploadBytes
	if limit == 0 {
		limit = defaultMaxUploadBytes
	}
	body := bufio.NewReader(http.MaxBytesReader(w, r.Body, limit))

	var res *models.ExportResult
	if _, peekErr := body.Peek(1); errors.Is(peekErr, io.EOF) {
		res, err = h.reports.Generate(r.Context(), kind)
	} else {
		res, err = h.reports.GenerateFrom(r.Context(), kind, body)
	}
	if err != nil {
		h.logger.Error("Generate report", "kind", kind, "error", err)
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusCreated, res)
}

// handleListRuns возвращает историю запусков.
func (h *AdminServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			RespondWithError(w, r, http.StatusBadRequest, CodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	if runs == nil {
		runs = []models.ExportRun{}
	}
	RespondWithJSON(w, r, http.StatusOK, runs)
}

// handleWorkbook отдает книгу Excel запуска.
func (h *AdminServer) handleWorkbook(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(run.Workbook)))
	http.ServeFile(w, r, run.Workbook)
}

func (h *AdminServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()))
	})
}

// Start запускает административный сервер.
func (h *AdminServer) Start(ctx context.Context) error {
	h.logger.Info("Starting admin server", "address", h.opts.Address)
	h.srv = &http.Server{
		Addr:         h.opts.Address,
		ReadTimeout:  time.Duration(h.opts.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(h.opts.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(h.opts.IdleTimeoutSeconds) * time.Second,
		Handler:      h.Router(),
	}

	go func() {
		<-ctx.Done()

		h.logger.Info("Shutting down admin server (ctx canceled)")

		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Admin server shutdown error", "error", err)
		}
	}()

	if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		h.logger.Error("Admin server error", "error", err)
		return err
	}

	h.logger.Info("Admin server stopped")
	return nil
}

// HandleError преобразует ошибки сервисов в HTTP ответы.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		RespondWithError(w, r, http.StatusRequestEntityTooLarge, CodeBadInput, "upload is too large")
	case errors.Is(err, services.ErrUnknownKind):
		RespondWithError(w, r, http.StatusBadRequest, CodeUnknownKind, err.Error())
	case errors.Is(err, services.ErrNoInput), services.IsInputError(err):
		RespondWithError(w, r, http.StatusBadRequest, CodeBadInput, err.Error())
	case errors.Is(err, storage.ErrRunNotFound):
		RespondWithError(w, r, http.StatusNotFound, CodeNotFound, "export run not found")
	default:
		RespondWithError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}

// Коды ошибок API.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeBadInput     = "BAD_INPUT"
	CodeUnknownKind  = "UNKNOWN_KIND"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInternal     = "INTERNAL_ERROR"
)

// ErrorResponse ответ с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail содержит код и описание ошибки.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondWithJSON отправляет JSON ответ с указанным статус кодом.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	render.Status(r, statusCode)
	render.JSON(w, r, data)
}

// RespondWithError отправляет ответ с ошибкой.
func RespondWithError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	RespondWithJSON(w, r, statusCode, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}
