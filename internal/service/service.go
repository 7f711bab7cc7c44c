// Package service реализует бизнес-логику сервиса lifelink.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lifelink/donation-system/internal/eligibility"
	"github.com/lifelink/donation-system/internal/geo"
	"github.com/lifelink/donation-system/internal/metrics"
	"github.com/lifelink/donation-system/internal/model"
	"github.com/lifelink/donation-system/internal/repository"
)

// ErrNotEligible возвращается при попытке записать на донацию донора, не прошедшего проверку допуска.
var (
	ErrNotEligible = errors.New("donor is not eligible")
	// ErrScheduleNotFuture возвращается, если дата донации не находится строго в будущем.
	ErrScheduleNotFuture = errors.New("scheduled date must be in the future")
)

// rewardDescription — шаблон описания ваучера за завершённую донацию.
const rewardDescription = "Health voucher - thank you for donating blood!"

// voucherAttempts ограничивает число повторных генераций кода при коллизии.
const voucherAttempts = 3

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetDonorProfile(ctx context.Context, donorID int64) (*model.DonorProfile, error)
	GetBloodBank(ctx context.Context, bankID int64) (*model.BloodBank, error)
	CreateSchedule(ctx context.Context, donorID, bankID int64, scheduledAt time.Time, notes string) (int64, error)
	GetSchedule(ctx context.Context, scheduleID int64) (*model.DonationSchedule, error)
	GetSchedulesByDonor(ctx context.Context, donorID int64) ([]model.DonationSchedule, error)
	CancelSchedule(ctx context.Context, scheduleID int64) error
	CompleteSchedule(ctx context.Context, scheduleID int64, voucherCode, description string, today time.Time) (*repository.CompletionResult, error)
	CreditInventoryUnit(ctx context.Context, bankID int64, bloodGroup model.BloodGroup) (int, error)
	GetInventoryByBank(ctx context.Context, bankID int64) ([]model.InventoryRecord, error)
	GetRewardBySchedule(ctx context.Context, scheduleID int64) (*model.DonationReward, error)
}

// Service содержит бизнес-логику сервиса lifelink.
type Service struct {
	repo          Repository
	metrics       *metrics.Metrics
	voucherPrefix string
	now           func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и префиксом кодов ваучеров.
func NewService(repo Repository, m *metrics.Metrics, voucherPrefix string) *Service {
	return &Service{
		repo:          repo,
		metrics:       m,
		voucherPrefix: voucherPrefix,
		now:           time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// EvaluateEligibility проверяет, допущен ли донор к донации прямо сейчас.
func (s *Service) EvaluateEligibility(ctx context.Context, donorID int64) (eligibility.Result, error) {
	p, err := s.repo.GetDonorProfile(ctx, donorID)
	if err != nil {
		return eligibility.Result{}, err
	}

	return eligibility.Evaluate(*p, s.now()), nil
}

// CreateSchedule записывает донора на донацию в банке крови.
// Допуск донора проверяется только здесь; при завершении донации он не перепроверяется.
func (s *Service) CreateSchedule(ctx context.Context, donorID, bankID int64, scheduledAt time.Time, notes string) (int64, error) {
	p, err := s.repo.GetDonorProfile(ctx, donorID)
	if err != nil {
		return 0, err
	}

	res := eligibility.Evaluate(*p, s.now())
	if !res.Eligible {
		if res.Reason == eligibility.ReasonCooldownActive {
			return 0, fmt.Errorf("%w: %s, %d days remaining", ErrNotEligible, res.Reason, res.RemainingDays)
		}
		return 0, fmt.Errorf("%w: %s", ErrNotEligible, res.Reason)
	}

	if !scheduledAt.After(s.now()) {
		return 0, ErrScheduleNotFuture
	}

	id, err := s.repo.CreateSchedule(ctx, donorID, bankID, scheduledAt, notes)
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.SchedulesCreated.Inc()
	}

	return id, nil
}

// CancelSchedule отменяет запись на донацию.
func (s *Service) CancelSchedule(ctx context.Context, scheduleID int64) error {
	if err := s.repo.CancelSchedule(ctx, scheduleID); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.SchedulesCancelled.Inc()
	}

	return nil
}

// CompleteSchedule завершает донацию: обновляет статистику донора, запас банка крови
// и выдаёт ваучер одной транзакцией. Повторный вызов безопасен и ничего не меняет.
func (s *Service) CompleteSchedule(ctx context.Context, scheduleID int64) (*repository.CompletionResult, error) {
	var res *repository.CompletionResult
	var err error

	for attempt := 0; attempt < voucherAttempts; attempt++ {
		code := s.newVoucherCode()
		res, err = s.repo.CompleteSchedule(ctx, scheduleID, code, rewardDescription, s.now())
		if errors.Is(err, repository.ErrVoucherCodeTaken) {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil && !res.AlreadyCompleted {
		s.metrics.SchedulesCompleted.Inc()
		s.metrics.RewardsIssued.Inc()
		s.metrics.InventoryCredited.Inc()
	}

	return res, nil
}

// newVoucherCode генерирует код ваучера: префикс и 8 шестнадцатеричных символов в верхнем регистре.
func (s *Service) newVoucherCode() string {
	u := uuid.New()
	return fmt.Sprintf("%s-%s", s.voucherPrefix, strings.ToUpper(hex.EncodeToString(u[:4])))
}

// GetSchedule возвращает запись на донацию.
func (s *Service) GetSchedule(ctx context.Context, scheduleID int64) (*model.DonationSchedule, error) {
	return s.repo.GetSchedule(ctx, scheduleID)
}

// GetSchedulesByDonor возвращает записи донора на донации.
func (s *Service) GetSchedulesByDonor(ctx context.Context, donorID int64) ([]model.DonationSchedule, error) {
	return s.repo.GetSchedulesByDonor(ctx, donorID)
}

// GetRewardBySchedule возвращает ваучер записи на донацию, если он выдан.
func (s *Service) GetRewardBySchedule(ctx context.Context, scheduleID int64) (*model.DonationReward, error) {
	return s.repo.GetRewardBySchedule(ctx, scheduleID)
}

// CreditInventoryUnit увеличивает запас пары (банк, группа) на одну единицу.
func (s *Service) CreditInventoryUnit(ctx context.Context, bankID int64, bloodGroup model.BloodGroup) (int, error) {
	if !bloodGroup.Valid() {
		return 0, fmt.Errorf("unknown blood group %q", bloodGroup)
	}

	units, err := s.repo.CreditInventoryUnit(ctx, bankID, bloodGroup)
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.InventoryCredited.Inc()
	}

	return units, nil
}

// GetInventoryByBank возвращает запасы банка крови по группам.
func (s *Service) GetInventoryByBank(ctx context.Context, bankID int64) ([]model.InventoryRecord, error) {
	return s.repo.GetInventoryByBank(ctx, bankID)
}

// DonorDistanceKm возвращает расстояние от донора до указанной точки, округлённое до сотых.
// Возвращает nil, если у донора не заданы координаты.
func (s *Service) DonorDistanceKm(ctx context.Context, donorID int64, lat, lon float64) (*float64, error) {
	p, err := s.repo.GetDonorProfile(ctx, donorID)
	if err != nil {
		return nil, err
	}

	if p.Latitude == nil || p.Longitude == nil {
		return nil, nil
	}

	d, err := geo.DistanceKm(*p.Latitude, *p.Longitude, lat, lon)
	if err != nil {
		return nil, err
	}

	rounded := math.Round(d*100) / 100
	return &rounded, nil
}
