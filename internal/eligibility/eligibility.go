// Package eligibility реализует проверку допуска донора к донации.
package eligibility

import (
	"time"

	"github.com/lifelink/donation-system/internal/model"
)

// CooldownDays — минимальный интервал между донациями в днях.
const CooldownDays = 90

// Границы допустимого возраста донора, включительно.
const (
	MinAge = 18
	MaxAge = 65
)

// Reason описывает причину отказа в допуске к донации.
type Reason string

const (
	ReasonNone            Reason = "NONE"
	ReasonAvailabilityOff Reason = "AVAILABILITY_OFF"
	ReasonAgeMissing      Reason = "AGE_MISSING"
	ReasonAgeOutOfRange   Reason = "AGE_OUT_OF_RANGE"
	ReasonCooldownActive  Reason = "COOLDOWN_ACTIVE"
)

// Result содержит результат проверки допуска донора.
type Result struct {
	Eligible bool
	Reason   Reason
	// RemainingDays заполняется только при ReasonCooldownActive.
	RemainingDays int
}

// Evaluate проверяет правила допуска в фиксированном порядке;
// срабатывает первое нарушенное правило, остальные не проверяются.
func Evaluate(p model.DonorProfile, now time.Time) Result {
	if !p.Availability {
		return Result{Reason: ReasonAvailabilityOff}
	}

	if p.Age == nil {
		return Result{Reason: ReasonAgeMissing}
	}

	if *p.Age < MinAge || *p.Age > MaxAge {
		return Result{Reason: ReasonAgeOutOfRange}
	}

	if p.LastDonationDate != nil {
		elapsed := daysBetween(*p.LastDonationDate, now)
		if elapsed < CooldownDays {
			return Result{
				Reason:        ReasonCooldownActive,
				RemainingDays: CooldownDays - elapsed,
			}
		}
	}

	return Result{Eligible: true, Reason: ReasonNone}
}

// daysBetween считает количество календарных дней между двумя датами,
// игнорируя время суток и часовой пояс каждой из них.
func daysBetween(from, to time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(toDay.Sub(fromDay).Hours() / 24)
}
