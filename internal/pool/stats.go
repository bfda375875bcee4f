package pool

import (
	"sort"
	"time"
)

// counters are monotonic and guarded by Pool.mu.
type counters struct {
	hits         uint64
	misses       uint64
	healthPassed uint64
	healthFailed uint64
	evictions    uint64
	discarded    uint64
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	Hits               uint64 `json:"hits"`
	Misses             uint64 `json:"misses"`
	HealthChecksPassed uint64 `json:"health_checks_passed"`
	HealthChecksFailed uint64 `json:"health_checks_failed"`
	Evictions          uint64 `json:"evictions"`
	Discarded          uint64 `json:"discarded"`

	Active int `json:"active"`
	Idle   int `json:"idle"`
	Total  int `json:"total"`

	Connections []ConnectionInfo `json:"connections,omitempty"`
}

// ConnectionInfo describes one pooled connection in a Stats snapshot.
type ConnectionInfo struct {
	ID             string    `json:"id"`
	Key            string    `json:"key"`
	Host           string    `json:"host"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	LastUsed       time.Time `json:"last_used"`
	HealthPasses   int       `json:"health_passes"`
	HealthFailures int       `json:"health_failures"`
}

// HitRate returns hits / (hits + misses), or 0 before any acquire.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of counters and gauges.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Hits:               p.stats.hits,
		Misses:             p.stats.misses,
		HealthChecksPassed: p.stats.healthPassed,
		HealthChecksFailed: p.stats.healthFailed,
		Evictions:          p.stats.evictions,
		Discarded:          p.stats.discarded,
	}

	for _, list := range p.conns {
		for _, c := range list {
			if c.active {
				s.Active++
			} else {
				s.Idle++
			}
			s.Connections = append(s.Connections, ConnectionInfo{
				ID:             c.ID,
				Key:            c.Key,
				Host:           c.Host,
				Active:         c.active,
				CreatedAt:      c.CreatedAt,
				LastUsed:       c.lastUsed,
				HealthPasses:   c.healthPasses,
				HealthFailures: c.healthFailures,
			})
		}
	}
	s.Total = s.Active + s.Idle

	sort.Slice(s.Connections, func(i, j int) bool {
		if s.Connections[i].Key != s.Connections[j].Key {
			return s.Connections[i].Key < s.Connections[j].Key
		}
		return s.Connections[i].CreatedAt.Before(s.Connections[j].CreatedAt)
	})
	return s
}
