// Package api exposes a trained session over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/churn-risk/internal/evaluate"
	"github.com/sells-group/churn-risk/internal/model"
	"github.com/sells-group/churn-risk/internal/risk"
	"github.com/sells-group/churn-risk/internal/session"
)

// Backend is the session surface the handlers use.
type Backend interface {
	Trained() bool
	Model() (session.ModelInfo, error)
	Evaluate(ctx context.Context) (*evaluate.Report, error)
	LastEvaluation() *evaluate.Report
	PredictOne(ctx context.Context, rec model.CustomerRecord) (*risk.Prediction, error)
	PredictBatch(ctx context.Context, recs []model.CustomerRecord) (*risk.BatchResult, error)
}

var _ Backend = (*session.Session)(nil)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

const defaultMaxBody = 10 << 20

type handler struct {
	backend Backend
	maxBody int64
}

// NewRouter builds the HTTP handler tree.
func NewRouter(b Backend, opts Options) http.Handler {
	h := &handler{backend: b, maxBody: opts.MaxBodyBytes}
	if h.maxBody <= 0 {
		h.maxBody = defaultMaxBody
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/model", h.modelInfo)
		r.Get("/evaluation", h.evaluation)
		r.Post("/predict", h.predict)
		r.Post("/predict/batch", h.predictBatch)
		r.Post("/predict/batch.csv", h.predictBatchCSV)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
