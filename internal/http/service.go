package httpapi

import (
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mistakeknot/tapcall/internal/logging"
	"github.com/mistakeknot/tapcall/internal/qr"
	"github.com/mistakeknot/tapcall/internal/service"
)

// Service adapts HTTP calls onto the request service and QR generator.
type Service struct {
	requests *service.Service
	qr       *qr.Generator
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(requests *service.Service, gen *qr.Generator) *Service {
	return &Service{
		requests: requests,
		qr:       gen,
		validate: validator.New(),
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithLogger(l *zap.Logger) *Service {
	s.logger = logging.OrNop(l)
	return s
}
