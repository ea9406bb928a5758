package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/fairops/healthfair-platform/pkg/logging"
)

// PrerequisiteResolver locates the designated prerequisite service. The
// explicit is_prerequisite flag is authoritative; a legacy name-substring
// match remains as a migration shim for catalogs that predate the flag.
type PrerequisiteResolver struct {
	repo         Repository
	fallbackName string
	logger       *logging.Logger
}

// NewPrerequisiteResolver constructs a resolver. fallbackName is matched
// case-insensitively against service names when no flag is set; pass "" to
// disable the shim.
func NewPrerequisiteResolver(repo Repository, fallbackName string, logger *logging.Logger) *PrerequisiteResolver {
	if repo == nil {
		panic("catalog: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PrerequisiteResolver{
		repo:         repo,
		fallbackName: strings.ToLower(strings.TrimSpace(fallbackName)),
		logger:       logger,
	}
}

// Resolve returns the prerequisite service, or nil when the catalog has none.
func (p *PrerequisiteResolver) Resolve(ctx context.Context) (*Service, error) {
	svc, err := p.repo.FindPrerequisite(ctx)
	if err != nil {
		return nil, err
	}
	if svc != nil {
		return svc, nil
	}
	if p.fallbackName == "" {
		return nil, nil
	}

	services, err := p.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: resolve prerequisite fallback: %w", err)
	}
	for i := range services {
		if strings.Contains(strings.ToLower(services[i].Name), p.fallbackName) {
			p.logger.Warn("prerequisite resolved via legacy name match; set is_prerequisite on the service",
				"service_id", services[i].ID,
				"service_name", services[i].Name,
			)
			return &services[i], nil
		}
	}
	return nil, nil
}
