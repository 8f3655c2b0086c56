package resilience

import (
	"time"

	"github.com/sells-group/spendshield/internal/config"
)

// FromCircuitConfig builds a CircuitBreakerConfig for the named provider,
// keeping defaults for unset values.
func FromCircuitConfig(name string, cfg config.CircuitConfig) CircuitBreakerConfig {
	out := DefaultCircuitBreakerConfig()
	out.Name = name
	if cfg.FailureThreshold > 0 {
		out.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.ResetTimeoutSecs > 0 {
		out.ResetTimeout = time.Duration(cfg.ResetTimeoutSecs) * time.Second
	}
	return out
}
