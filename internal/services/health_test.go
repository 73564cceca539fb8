package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthService_CheckHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name        string
		critical    map[string]Checker
		nonCritical map[string]Checker
		wantStatus  string
		wantFailed  []string
	}{
		{
			name:        "all healthy",
			critical:    map[string]Checker{"postgresql": ok, "redis_hot": ok},
			nonCritical: map[string]Checker{"redis_warm": ok},
			wantStatus:  "healthy",
		},
		{
			name:        "non-critical failure degrades",
			critical:    map[string]Checker{"postgresql": ok},
			nonCritical: map[string]Checker{"redis_warm": down, "neo4j": ok},
			wantStatus:  "degraded",
		},
		{
			name:        "critical failure",
			critical:    map[string]Checker{"postgresql": down, "redis_hot": ok},
			nonCritical: map[string]Checker{"redis_warm": down},
			wantStatus:  "unhealthy",
			wantFailed:  []string{"postgresql"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHealthService(tt.critical, tt.nonCritical, testLogger())
			defer hs.Stop()

			status := hs.CheckHealth(context.Background())
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, tt.wantFailed, status.Critical)
			assert.Len(t, status.Services, len(tt.critical)+len(tt.nonCritical))
		})
	}
}

func TestHealthService_CheckerSeesDeadline(t *testing.T) {
	var hasDeadline bool
	hs := newHealthService(map[string]Checker{
		"postgresql": func(ctx context.Context) error {
			_, hasDeadline = ctx.Deadline()
			return nil
		},
	}, nil, testLogger())

	hs.CheckHealth(context.Background())
	assert.True(t, hasDeadline)
}
