// Package metrics содержит счётчики Prometheus сервиса lifelink.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics объединяет счётчики жизненного цикла донаций.
type Metrics struct {
	SchedulesCreated   prometheus.Counter
	SchedulesCompleted prometheus.Counter
	SchedulesCancelled prometheus.Counter
	RewardsIssued      prometheus.Counter
	InventoryCredited  prometheus.Counter
}

// New регистрирует счётчики в реестре по умолчанию.
func New() *Metrics {
	return &Metrics{
		SchedulesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifelink_schedules_created_total",
			Help: "Total number of donation schedules created",
		}),
		SchedulesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifelink_schedules_completed_total",
			Help: "Total number of donation schedules completed",
		}),
		SchedulesCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifelink_schedules_cancelled_total",
			Help: "Total number of donation schedules cancelled",
		}),
		RewardsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifelink_rewards_issued_total",
			Help: "Total number of donation reward vouchers issued",
		}),
		InventoryCredited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifelink_inventory_units_credited_total",
			Help: "Total number of blood units credited to bank inventories",
		}),
	}
}
