package lock

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
	apperrors "github.com/jayteealao/objlock/internal/errors"
)

// managerMetrics counts lock manager outcomes in a private metrics set.
type managerMetrics struct {
	set *metrics.Set

	created    *metrics.Counter
	refreshed  *metrics.Counter
	superseded *metrics.Counter
	extended   *metrics.Counter
	released   *metrics.Counter
	timeouts   *metrics.Counter
	waitTime   *metrics.Histogram
}

func newManagerMetrics() *managerMetrics {
	set := metrics.NewSet()
	return &managerMetrics{
		set:        set,
		created:    set.NewCounter("objlock_locks_created_total"),
		refreshed:  set.NewCounter("objlock_locks_refreshed_total"),
		superseded: set.NewCounter("objlock_locks_superseded_total"),
		extended:   set.NewCounter("objlock_locks_extended_total"),
		released:   set.NewCounter("objlock_locks_released_total"),
		timeouts:   set.NewCounter("objlock_acquire_timeouts_total"),
		waitTime:   set.NewHistogram("objlock_acquire_wait_seconds"),
	}
}

func (mm *managerMetrics) conflict(code apperrors.Code) {
	mm.set.GetOrCreateCounter(fmt.Sprintf(`objlock_lock_conflicts_total{code=%q}`, code)).Inc()
}

func (mm *managerMetrics) observeWait(start time.Time) {
	mm.waitTime.Update(time.Since(start).Seconds())
}

// WriteMetrics writes the manager's metrics in Prometheus text format.
func (m *Manager) WriteMetrics(w io.Writer) {
	m.metrics.set.WritePrometheus(w)
}
