// Package handler содержит HTTP-обработчики API сервиса lifelink.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lifelink/donation-system/internal/eligibility"
	"github.com/lifelink/donation-system/internal/model"
	"github.com/lifelink/donation-system/internal/repository"
	"github.com/lifelink/donation-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	EvaluateEligibility(ctx context.Context, donorID int64) (eligibility.Result, error)
	CreateSchedule(ctx context.Context, donorID, bankID int64, scheduledAt time.Time, notes string) (int64, error)
	CancelSchedule(ctx context.Context, scheduleID int64) error
	CompleteSchedule(ctx context.Context, scheduleID int64) (*repository.CompletionResult, error)
	GetSchedule(ctx context.Context, scheduleID int64) (*model.DonationSchedule, error)
	GetSchedulesByDonor(ctx context.Context, donorID int64) ([]model.DonationSchedule, error)
	GetRewardBySchedule(ctx context.Context, scheduleID int64) (*model.DonationReward, error)
	GetInventoryByBank(ctx context.Context, bankID int64) ([]model.InventoryRecord, error)
	DonorDistanceKm(ctx context.Context, donorID int64, lat, lon float64) (*float64, error)
}

// Handler реализует HTTP-обработчики API сервиса lifelink.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type eligibilityResponse struct {
	Eligible      bool   `json:"eligible"`
	Reason        string `json:"reason"`
	RemainingDays *int   `json:"remaining_days,omitempty"`
}

// GetEligibility возвращает результат проверки допуска донора.
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	donorID, ok := pathID(r, "donorID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.EvaluateEligibility(r.Context(), donorID)
	if err != nil {
		if errors.Is(err, repository.ErrDonorNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("evaluate eligibility error", zap.Error(err), zap.Int64("donorID", donorID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := eligibilityResponse{
		Eligible: res.Eligible,
		Reason:   string(res.Reason),
	}
	if res.Reason == eligibility.ReasonCooldownActive {
		resp.RemainingDays = &res.RemainingDays
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

type distanceResponse struct {
	DistanceKm float64 `json:"distance_km"`
}

// GetDonorDistance возвращает расстояние от донора до точки из query-параметров.
func (h *Handler) GetDonorDistance(w http.ResponseWriter, r *http.Request) {
	donorID, ok := pathID(r, "donorID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	d, err := h.service.DonorDistanceKm(r.Context(), donorID, lat, lon)
	if err != nil {
		if errors.Is(err, repository.ErrDonorNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("donor distance error", zap.Error(err), zap.Int64("donorID", donorID))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if d == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, distanceResponse{DistanceKm: *d})
}

type createScheduleRequest struct {
	DonorID     int64  `json:"donor_id"`
	BloodBankID int64  `json:"blood_bank_id"`
	ScheduledAt string `json:"scheduled_at"`
	Notes       string `json:"notes"`
}

type createScheduleResponse struct {
	ID int64 `json:"id"`
}

// CreateSchedule записывает донора на донацию.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.DonorID <= 0 || req.BloodBankID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateSchedule(r.Context(), req.DonorID, req.BloodBankID, scheduledAt, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotEligible):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, service.ErrScheduleNotFuture):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrDonorNotFound), errors.Is(err, repository.ErrBloodBankNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("create schedule error", zap.Error(err), zap.Int64("donorID", req.DonorID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, createScheduleResponse{ID: id})
}

type rewardResponse struct {
	VoucherCode string `json:"voucher_code"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

type scheduleResponse struct {
	ID          int64           `json:"id"`
	DonorID     int64           `json:"donor_id"`
	BloodBankID int64           `json:"blood_bank_id"`
	ScheduledAt string          `json:"scheduled_at"`
	Status      string          `json:"status"`
	Notes       string          `json:"notes,omitempty"`
	Reward      *rewardResponse `json:"reward,omitempty"`
}

func toScheduleResponse(s *model.DonationSchedule, reward *model.DonationReward) scheduleResponse {
	resp := scheduleResponse{
		ID:          s.ID,
		DonorID:     s.DonorID,
		BloodBankID: s.BloodBankID,
		ScheduledAt: s.ScheduledAt.Format(time.RFC3339),
		Status:      string(s.Status),
		Notes:       s.Notes,
	}
	if reward != nil {
		resp.Reward = &rewardResponse{
			VoucherCode: reward.VoucherCode,
			Description: reward.Description,
			CreatedAt:   reward.CreatedAt.Format(time.RFC3339),
		}
	}
	return resp
}

// GetSchedule возвращает запись на донацию вместе с ваучером, если он выдан.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := pathID(r, "scheduleID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	sched, err := h.service.GetSchedule(r.Context(), scheduleID)
	if err != nil {
		if errors.Is(err, repository.ErrScheduleNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get schedule error", zap.Error(err), zap.Int64("scheduleID", scheduleID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var reward *model.DonationReward
	if sched.Status == model.ScheduleStatusCompleted {
		reward, err = h.service.GetRewardBySchedule(r.Context(), scheduleID)
		if err != nil && !errors.Is(err, repository.ErrRewardNotFound) {
			h.logger.Error("get reward error", zap.Error(err), zap.Int64("scheduleID", scheduleID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, h.logger, http.StatusOK, toScheduleResponse(sched, reward))
}

// GetDonorSchedules возвращает записи донора на донации.
func (h *Handler) GetDonorSchedules(w http.ResponseWriter, r *http.Request) {
	donorID, ok := pathID(r, "donorID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	schedules, err := h.service.GetSchedulesByDonor(r.Context(), donorID)
	if err != nil {
		h.logger.Error("get donor schedules error", zap.Error(err), zap.Int64("donorID", donorID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(schedules) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]scheduleResponse, 0, len(schedules))
	for i := range schedules {
		resp = append(resp, toScheduleResponse(&schedules[i], nil))
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

type completionResponse struct {
	Status           string          `json:"status"`
	AlreadyCompleted bool            `json:"already_completed,omitempty"`
	InventoryUnits   int             `json:"inventory_units,omitempty"`
	Reward           *rewardResponse `json:"reward,omitempty"`
}

// CompleteSchedule завершает донацию. Повторный вызов возвращает успех без повторных эффектов.
func (h *Handler) CompleteSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := pathID(r, "scheduleID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.CompleteSchedule(r.Context(), scheduleID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrScheduleNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("complete schedule error", zap.Error(err), zap.Int64("scheduleID", scheduleID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	resp := completionResponse{
		Status:           string(model.ScheduleStatusCompleted),
		AlreadyCompleted: res.AlreadyCompleted,
		InventoryUnits:   res.InventoryUnits,
	}
	if res.Reward != nil {
		resp.Reward = &rewardResponse{
			VoucherCode: res.Reward.VoucherCode,
			Description: res.Reward.Description,
			CreatedAt:   res.Reward.CreatedAt.Format(time.RFC3339),
		}
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// CancelSchedule отменяет запись на донацию.
func (h *Handler) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := pathID(r, "scheduleID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CancelSchedule(r.Context(), scheduleID); err != nil {
		switch {
		case errors.Is(err, repository.ErrScheduleNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("cancel schedule error", zap.Error(err), zap.Int64("scheduleID", scheduleID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type inventoryResponse struct {
	BloodGroup string `json:"blood_group"`
	Units      int    `json:"units"`
}

// GetBankInventory возвращает запасы банка крови по группам.
func (h *Handler) GetBankInventory(w http.ResponseWriter, r *http.Request) {
	bankID, ok := pathID(r, "bankID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	records, err := h.service.GetInventoryByBank(r.Context(), bankID)
	if err != nil {
		h.logger.Error("get inventory error", zap.Error(err), zap.Int64("bankID", bankID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]inventoryResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, inventoryResponse{
			BloodGroup: string(rec.BloodGroup),
			Units:      rec.Units,
		})
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response error", zap.Error(err))
	}
}
