// Package api serves the prediction proxy over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"medpredict/internal/predict"
)

// NewRouter wires the proxy routes and the middleware chain. Request IDs are
// assigned first so every log line and error response can carry one.
func NewRouter(svc *predict.Service, log *zap.Logger) *mux.Router {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("api")

	r := mux.NewRouter()
	r.Use(RequestIDMiddleware, AccessLogMiddleware(log), RecoverMiddleware(log))

	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/time", GetTimeHandler).Methods(http.MethodGet)
	r.Handle("/api/predict", PredictHandler(svc, log)).Methods(http.MethodPost)

	r.NotFoundHandler = RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		JSONResponse(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}))
	r.MethodNotAllowedHandler = RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		JSONResponse(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}))
	log.Info("routes registered", zap.String("validation", string(svc.Mode())))
	return r
}
