package bootstrap

import (
	"testing"
	"time"

	"github.com/kirillkom/shiftlog-retrieval/internal/config"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/usecase"
)

func TestRetrieverConfigMapsSettings(t *testing.T) {
	cfg := config.Config{
		RetrievalKDense:        40,
		RetrievalKSparse:       30,
		RetrievalKFinal:        6,
		RetrievalMaxConcurrent: 2,
		RetrievalTimeout:       5 * time.Second,
		RetrievalDegradePolicy: "degrade",
		RetrievalRanking:       "rrf",
		RetrievalRRFK:          30,
	}

	got := RetrieverConfig(cfg)
	if got.Limits.Dense != 40 || got.Limits.Sparse != 30 || got.Limits.Final != 6 {
		t.Fatalf("unexpected limits %+v", got.Limits)
	}
	if got.MaxConcurrent != 2 || got.Timeout != 5*time.Second || got.RRFK != 30 {
		t.Fatalf("unexpected limiter settings %+v", got)
	}
	if got.Degrade != usecase.DegradeToHealthy || got.Ranking != usecase.RankRRF {
		t.Fatalf("unexpected policies %q %q", got.Degrade, got.Ranking)
	}
}

func TestResilienceConfigKeepsDefaultsForUnsetFields(t *testing.T) {
	got := ResilienceConfig(config.Config{
		BackendRetryAttempts:   5,
		BackendRetryBackoff:    50 * time.Millisecond,
		BackendBreakerEnabled:  false,
		BackendBreakerCooldown: time.Minute,
	})
	if got.Retry.MaxAttempts != 5 || got.Retry.InitialBackoff != 50*time.Millisecond {
		t.Fatalf("unexpected retry policy %+v", got.Retry)
	}
	if got.Retry.MaxBackoff != time.Second || got.Retry.Multiplier != 2 {
		t.Fatalf("expected default backoff shape, got %+v", got.Retry)
	}
	if got.Breaker.Enabled || got.Breaker.OpenTimeout != time.Minute {
		t.Fatalf("unexpected breaker policy %+v", got.Breaker)
	}
}
