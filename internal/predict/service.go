package predict

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Forwarder sends a validated payload to the prediction service.
type Forwarder interface {
	Predict(ctx context.Context, p Payload) (json.RawMessage, error)
}

// Service validates requests and forwards them.
type Service struct {
	mode Mode
	fwd  Forwarder
	log  *zap.Logger
}

// NewService returns a Service using mode for validation.
func NewService(fwd Forwarder, mode Mode, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if mode == "" {
		mode = ModePresence
	}
	return &Service{mode: mode, fwd: fwd, log: log}
}

// Mode returns the validation mode in effect.
func (s *Service) Mode() Mode { return s.mode }

// Predict validates req and relays the prediction service's answer.
func (s *Service) Predict(ctx context.Context, req *Request) (json.RawMessage, error) {
	p, err := req.Validate(s.mode)
	if err != nil {
		return nil, err
	}
	// Vitals are health data and stay out of the logs.
	s.log.Debug("forwarding prediction request", zap.String("mode", string(s.mode)))
	return s.fwd.Predict(ctx, p)
}
