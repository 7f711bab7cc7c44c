// Package model содержит доменные сущности сервиса lifelink.
package model

import "time"

// BloodGroup описывает группу крови по системе ABO/Rh.
type BloodGroup string

const (
	BloodGroupAPositive  BloodGroup = "A+"
	BloodGroupANegative  BloodGroup = "A-"
	BloodGroupBPositive  BloodGroup = "B+"
	BloodGroupBNegative  BloodGroup = "B-"
	BloodGroupABPositive BloodGroup = "AB+"
	BloodGroupABNegative BloodGroup = "AB-"
	BloodGroupOPositive  BloodGroup = "O+"
	BloodGroupONegative  BloodGroup = "O-"
)

// Valid проверяет, что значение является одной из восьми допустимых групп крови.
func (g BloodGroup) Valid() bool {
	switch g {
	case BloodGroupAPositive, BloodGroupANegative,
		BloodGroupBPositive, BloodGroupBNegative,
		BloodGroupABPositive, BloodGroupABNegative,
		BloodGroupOPositive, BloodGroupONegative:
		return true
	}
	return false
}

// DonorProfile представляет профиль донора.
// Координаты принадлежат учётной записи донора и этим ядром только читаются.
type DonorProfile struct {
	ID               int64
	Age              *int
	BloodGroup       BloodGroup
	Availability     bool
	LastDonationDate *time.Time
	TotalDonations   int
	Latitude         *float64
	Longitude        *float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BloodBank представляет банк крови, принимающий донации.
type BloodBank struct {
	ID        int64
	Name      string
	Latitude  *float64
	Longitude *float64
	CreatedAt time.Time
}

// ScheduleStatus описывает статус записи на донацию.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// DonationSchedule описывает запись донора на донацию в банке крови.
type DonationSchedule struct {
	ID          int64
	DonorID     int64
	BloodBankID int64
	ScheduledAt time.Time
	Status      ScheduleStatus
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DonationReward описывает ваучер, выданный за завершённую донацию.
// Для одной записи на донацию существует не более одного ваучера.
type DonationReward struct {
	ID          int64
	ScheduleID  int64
	DonorID     int64
	VoucherCode string
	Description string
	CreatedAt   time.Time
}

// InventoryRecord описывает запас крови конкретной группы в банке крови.
type InventoryRecord struct {
	ID          int64
	BloodBankID int64
	BloodGroup  BloodGroup
	Units       int
	UpdatedAt   time.Time
}
