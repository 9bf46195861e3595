// Package supervisor starts and stops a declared list of background
// services in order, skipping disabled ones and isolating individual
// failures from their siblings. Grounded verbatim on utils/supersivor.py's
// Service/start_services/stop_services shape.
package supervisor

import (
	"context"
	"log/slog"

	"github.com/hashicorp/go-multierror"
)

// Service is one independently start/stoppable background task: a flusher,
// a partition ensurer, a cleaner job, a refresher loop. Stop is optional —
// a service with no teardown (nil Stop) is simply skipped on shutdown.
type Service struct {
	Name    string
	Enabled bool
	Start   func(ctx context.Context) error
	Stop    func(ctx context.Context) error
}

// Supervisor runs a fixed, declared list of Services: Start in order on
// startup, Stop in reverse order on shutdown.
type Supervisor struct {
	services []Service
	logger   *slog.Logger
}

// New builds a Supervisor over services, preserving their declared order.
func New(logger *slog.Logger, services []Service) *Supervisor {
	return &Supervisor{services: services, logger: logger}
}

// Start runs each enabled service's Start function in declared order.
// A failing service is logged and does not prevent the rest from starting;
// every error is aggregated into the returned multierror so the caller can
// decide whether any failure is fatal.
func (s *Supervisor) Start(ctx context.Context) error {
	var errs *multierror.Error

	for _, svc := range s.services {
		if !svc.Enabled {
			s.logger.Info("skipping disabled service", "service", svc.Name)

			continue
		}

		if err := svc.Start(ctx); err != nil {
			s.logger.Error("failed to start service", "service", svc.Name, "error", err)
			errs = multierror.Append(errs, err)

			continue
		}

		s.logger.Info("started service", "service", svc.Name)
	}

	return errs.ErrorOrNil()
}

// Stop runs each enabled service's Stop function in reverse declared order.
// Services with no Stop function, or that were never enabled, are skipped.
func (s *Supervisor) Stop(ctx context.Context) error {
	var errs *multierror.Error

	for i := len(s.services) - 1; i >= 0; i-- {
		svc := s.services[i]

		if !svc.Enabled || svc.Stop == nil {
			continue
		}

		if err := svc.Stop(ctx); err != nil {
			s.logger.Error("failed to stop service", "service", svc.Name, "error", err)
			errs = multierror.Append(errs, err)

			continue
		}

		s.logger.Info("stopped service", "service", svc.Name)
	}

	return errs.ErrorOrNil()
}
