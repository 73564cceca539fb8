package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/database"
)

// Checker probes one dependency.
type Checker func(ctx context.Context) error

type HealthService struct {
	critical    map[string]Checker
	nonCritical map[string]Checker
	db          *database.Database
	logger      *logrus.Logger
	stopChan    chan struct{}
	stopOnce    sync.Once
}

type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	Critical    []string          `json:"critical_failures,omitempty"`
	NonCritical []string          `json:"non_critical_failures,omitempty"`
	Latency     time.Duration     `json:"latency,omitempty"`
}

// NewHealthService checks PostgreSQL and hot Redis as critical, warm Redis
// and Neo4j (when connected) as non-critical.
func NewHealthService(db *database.Database, logger *logrus.Logger) *HealthService {
	critical := map[string]Checker{
		"postgresql": func(ctx context.Context) error { return db.PG.Ping(ctx) },
		"redis_hot":  func(ctx context.Context) error { return db.Redis.Hot.Ping(ctx).Err() },
	}
	nonCritical := map[string]Checker{
		"redis_warm": func(ctx context.Context) error { return db.Redis.Warm.Ping(ctx).Err() },
	}
	if db.Neo4j != nil {
		nonCritical["neo4j"] = func(ctx context.Context) error { return db.Neo4j.VerifyConnectivity(ctx) }
	}

	hs := newHealthService(critical, nonCritical, logger)
	hs.db = db
	go hs.collectDatabaseMetrics()
	return hs
}

func newHealthService(critical, nonCritical map[string]Checker, logger *logrus.Logger) *HealthService {
	return &HealthService{
		critical:    critical,
		nonCritical: nonCritical,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Timestamp: start,
		Services:  make(map[string]string),
	}

	allCriticalHealthy := true
	for _, name := range sortedNames(s.critical) {
		if err := s.run(ctx, s.critical[name]); err != nil {
			status.Services[name] = "unhealthy"
			status.Critical = append(status.Critical, name)
			allCriticalHealthy = false
			s.logger.WithError(err).Errorf("Critical service %s is unhealthy", name)
			s.updateHealthMetrics(name, false)
		} else {
			status.Services[name] = "healthy"
			s.updateHealthMetrics(name, true)
		}
	}

	for _, name := range sortedNames(s.nonCritical) {
		if err := s.run(ctx, s.nonCritical[name]); err != nil {
			status.Services[name] = "unhealthy"
			status.NonCritical = append(status.NonCritical, name)
			s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", name)
			s.updateHealthMetrics(name, false)
		} else {
			status.Services[name] = "healthy"
			s.updateHealthMetrics(name, true)
		}
	}

	switch {
	case !allCriticalHealthy:
		status.Status = "unhealthy"
	case len(status.NonCritical) > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}
	status.Latency = time.Since(start)

	return status
}

func (s *HealthService) run(ctx context.Context, check Checker) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return check(ctx)
}

func sortedNames(m map[string]Checker) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// collectDatabaseMetrics collects database connection metrics
func (s *HealthService) collectDatabaseMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.PG == nil {
				continue
			}
			stats := s.db.PG.Stat()
			dbPoolConnections.WithLabelValues("acquired").Set(float64(stats.AcquiredConns()))
			dbPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
			dbPoolConnections.WithLabelValues("total").Set(float64(stats.TotalConns()))
			dbPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
		case <-s.stopChan:
			return
		}
	}
}

func (s *HealthService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *HealthService) updateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
}
