package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"medpredict/internal/predict"
)

const maxRequestBody = 1 << 20

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetTimeHandler returns the current server time in RFC3339 format
func GetTimeHandler(w http.ResponseWriter, _ *http.Request) {
	JSONResponse(w, http.StatusOK, map[string]string{"time": time.Now().Format(time.RFC3339)})
}

// PredictHandler validates the vitals in the body and relays the prediction
// service's answer verbatim.
func PredictHandler(svc *predict.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req predict.Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			ErrorResponse(w, r, log, fmt.Errorf("invalid request body: %w", err))
			return
		}

		out, err := svc.Predict(r.Context(), &req)
		if err != nil {
			ErrorResponse(w, r, log, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(out); err != nil {
			log.Debug("client went away before response was written",
				zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		}
	}
}

// JSONResponse writes a JSON response.
func JSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// ErrorResponse writes {"error": msg} with the status mapped from err.
// Server-side failures are logged at error level.
func ErrorResponse(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status := predict.StatusCode(err)
	fields := []zap.Field{
		zap.String("request_id", RequestID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error("prediction request failed", fields...)
	} else {
		log.Debug("prediction request rejected", fields...)
	}
	JSONResponse(w, status, map[string]string{"error": err.Error()})
}
