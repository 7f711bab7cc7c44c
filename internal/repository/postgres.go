// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/lifelink/donation-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDonorNotFound возвращается, если профиль донора не найден.
var (
	ErrDonorNotFound = errors.New("donor not found")
	// ErrBloodBankNotFound возвращается, если банк крови не найден.
	ErrBloodBankNotFound = errors.New("blood bank not found")
	// ErrScheduleNotFound возвращается, если запись на донацию не найдена.
	ErrScheduleNotFound = errors.New("schedule not found")
	// ErrRewardNotFound возвращается, если у записи на донацию нет ваучера.
	ErrRewardNotFound = errors.New("reward not found")
	// ErrInvalidTransition возвращается при попытке перевести запись из терминального статуса.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrVoucherCodeTaken возвращается при коллизии кода ваучера; вызывающий может повторить с новым кодом.
	ErrVoucherCodeTaken = errors.New("voucher code already taken")
)

// Имена ограничений уникальности из миграций; по ним различаются причины UniqueViolation.
const (
	constraintRewardSchedule = "donation_rewards_schedule_id_key"
	constraintVoucherCode    = "donation_rewards_voucher_code_key"
)

// CompletionResult описывает итог завершения донации.
type CompletionResult struct {
	// AlreadyCompleted выставляется, если запись уже была завершена ранее;
	// в этом случае никакие эффекты повторно не применялись.
	AlreadyCompleted bool
	InventoryUnits   int
	Reward           *model.DonationReward
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при сбоях сериализации и дедлоках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewConstant(1*time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) &&
			(pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected) {
			return retry.RetryableError(err)
		}

		return err
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetDonorProfile возвращает профиль донора по идентификатору.
func (r *PostgresRepository) GetDonorProfile(ctx context.Context, donorID int64) (*model.DonorProfile, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, age, blood_group, availability, last_donation_date, total_donations,
		        latitude, longitude, created_at, updated_at
		 FROM donor_profiles
		 WHERE id = $1`,
		donorID,
	)

	var p model.DonorProfile
	err := row.Scan(&p.ID, &p.Age, &p.BloodGroup, &p.Availability, &p.LastDonationDate,
		&p.TotalDonations, &p.Latitude, &p.Longitude, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDonorNotFound
		}
		return nil, fmt.Errorf("get donor profile: %w", err)
	}

	return &p, nil
}

// GetBloodBank возвращает банк крови по идентификатору.
func (r *PostgresRepository) GetBloodBank(ctx context.Context, bankID int64) (*model.BloodBank, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, latitude, longitude, created_at FROM blood_banks WHERE id = $1`,
		bankID,
	)

	var b model.BloodBank
	err := row.Scan(&b.ID, &b.Name, &b.Latitude, &b.Longitude, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBloodBankNotFound
		}
		return nil, fmt.Errorf("get blood bank: %w", err)
	}

	return &b, nil
}

// CreateSchedule сохраняет новую запись на донацию в статусе scheduled.
func (r *PostgresRepository) CreateSchedule(ctx context.Context, donorID, bankID int64, scheduledAt time.Time, notes string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO donation_schedules (donor_id, blood_bank_id, scheduled_at, status, notes)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		donorID, bankID, scheduledAt, string(model.ScheduleStatusScheduled), notes,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			if pgErr.ConstraintName == "donation_schedules_blood_bank_id_fkey" {
				return 0, fmt.Errorf("%w: id %d", ErrBloodBankNotFound, bankID)
			}
			return 0, fmt.Errorf("%w: id %d", ErrDonorNotFound, donorID)
		}
		return 0, fmt.Errorf("insert schedule: %w", err)
	}
	return id, nil
}

// GetSchedule возвращает запись на донацию по идентификатору.
func (r *PostgresRepository) GetSchedule(ctx context.Context, scheduleID int64) (*model.DonationSchedule, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, donor_id, blood_bank_id, scheduled_at, status, notes, created_at, updated_at
		 FROM donation_schedules
		 WHERE id = $1`,
		scheduleID,
	)

	var s model.DonationSchedule
	err := row.Scan(&s.ID, &s.DonorID, &s.BloodBankID, &s.ScheduledAt, &s.Status,
		&s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	return &s, nil
}

// GetSchedulesByDonor возвращает записи донора, свежие даты первыми.
func (r *PostgresRepository) GetSchedulesByDonor(ctx context.Context, donorID int64) ([]model.DonationSchedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, donor_id, blood_bank_id, scheduled_at, status, notes, created_at, updated_at
		 FROM donation_schedules
		 WHERE donor_id = $1
		 ORDER BY scheduled_at DESC`,
		donorID,
	)
	if err != nil {
		return nil, fmt.Errorf("select schedules: %w", err)
	}
	defer rows.Close()

	var res []model.DonationSchedule
	for rows.Next() {
		var s model.DonationSchedule
		if err := rows.Scan(&s.ID, &s.DonorID, &s.BloodBankID, &s.ScheduledAt, &s.Status,
			&s.Notes, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CancelSchedule переводит запись в статус cancelled.
// Разрешён только переход из статуса scheduled; строка записи блокируется на время транзакции.
func (r *PostgresRepository) CancelSchedule(ctx context.Context, scheduleID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM donation_schedules WHERE id = $1 FOR UPDATE`,
		scheduleID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrScheduleNotFound
		}
		return fmt.Errorf("lock schedule: %w", err)
	}

	if status != string(model.ScheduleStatusScheduled) {
		return fmt.Errorf("%w: cannot cancel schedule in status %q", ErrInvalidTransition, status)
	}

	_, err = tx.Exec(ctx,
		`UPDATE donation_schedules SET status = $2, updated_at = now() WHERE id = $1`,
		scheduleID, string(model.ScheduleStatusCancelled),
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// CompleteSchedule завершает донацию единой транзакцией: статус записи, статистика донора,
// запас банка крови и ваучер обновляются либо все вместе, либо никак.
// Повторный вызов для уже завершённой записи ничего не меняет.
func (r *PostgresRepository) CompleteSchedule(ctx context.Context, scheduleID int64, voucherCode, description string, today time.Time) (*CompletionResult, error) {
	var res *CompletionResult

	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		res, err = r.completeScheduleTx(ctx, scheduleID, voucherCode, description, today)
		return err
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (r *PostgresRepository) completeScheduleTx(ctx context.Context, scheduleID int64, voucherCode, description string, today time.Time) (*CompletionResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокировка строки записи сериализует конкурентные завершения одной донации.
	var (
		donorID int64
		bankID  int64
		status  string
	)
	err = tx.QueryRow(ctx,
		`SELECT donor_id, blood_bank_id, status FROM donation_schedules WHERE id = $1 FOR UPDATE`,
		scheduleID,
	).Scan(&donorID, &bankID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("lock schedule: %w", err)
	}

	switch status {
	case string(model.ScheduleStatusCompleted):
		reward, err := r.rewardBySchedule(ctx, tx, scheduleID)
		if err != nil && !errors.Is(err, ErrRewardNotFound) {
			return nil, err
		}
		return &CompletionResult{AlreadyCompleted: true, Reward: reward}, nil
	case string(model.ScheduleStatusCancelled):
		return nil, fmt.Errorf("%w: cannot complete cancelled schedule", ErrInvalidTransition)
	}

	_, err = tx.Exec(ctx,
		`UPDATE donation_schedules SET status = $2, updated_at = now() WHERE id = $1`,
		scheduleID, string(model.ScheduleStatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	var bloodGroup string
	err = tx.QueryRow(ctx,
		`UPDATE donor_profiles
		 SET last_donation_date = $2, total_donations = total_donations + 1, updated_at = now()
		 WHERE id = $1
		 RETURNING blood_group`,
		donorID, today,
	).Scan(&bloodGroup)
	if err != nil {
		return nil, fmt.Errorf("update donor stats: %w", err)
	}

	units, err := creditInventory(ctx, tx, bankID, bloodGroup)
	if err != nil {
		return nil, err
	}

	var reward model.DonationReward
	err = tx.QueryRow(ctx,
		`INSERT INTO donation_rewards (schedule_id, donor_id, voucher_code, description)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		scheduleID, donorID, voucherCode, description,
	).Scan(&reward.ID, &reward.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// Уникальность (schedule_id) — последний рубеж против двойной выдачи,
			// при удержанной блокировке строки сюда попадает только коллизия кода.
			if pgErr.ConstraintName == constraintVoucherCode {
				return nil, fmt.Errorf("%w: %s", ErrVoucherCodeTaken, voucherCode)
			}
			if pgErr.ConstraintName == constraintRewardSchedule {
				return nil, fmt.Errorf("reward already issued for schedule %d: %w", scheduleID, err)
			}
		}
		return nil, fmt.Errorf("insert reward: %w", err)
	}

	reward.ScheduleID = scheduleID
	reward.DonorID = donorID
	reward.VoucherCode = voucherCode
	reward.Description = description

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CompletionResult{InventoryUnits: units, Reward: &reward}, nil
}

// creditInventory атомарно увеличивает запас пары (банк, группа), создавая строку при первом обращении.
func creditInventory(ctx context.Context, tx pgx.Tx, bankID int64, bloodGroup string) (int, error) {
	var units int
	err := tx.QueryRow(ctx,
		`INSERT INTO blood_inventory (blood_bank_id, blood_group, units)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (blood_bank_id, blood_group)
		 DO UPDATE SET units = blood_inventory.units + 1, updated_at = now()
		 RETURNING units`,
		bankID, bloodGroup,
	).Scan(&units)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, fmt.Errorf("%w: id %d", ErrBloodBankNotFound, bankID)
		}
		return 0, fmt.Errorf("credit inventory: %w", err)
	}
	return units, nil
}

// CreditInventoryUnit увеличивает запас пары (банк, группа) на одну единицу вне транзакции завершения.
func (r *PostgresRepository) CreditInventoryUnit(ctx context.Context, bankID int64, bloodGroup model.BloodGroup) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	units, err := creditInventory(ctx, tx, bankID, string(bloodGroup))
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return units, nil
}

// GetInventoryByBank возвращает запасы банка крови по группам.
func (r *PostgresRepository) GetInventoryByBank(ctx context.Context, bankID int64) ([]model.InventoryRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, blood_bank_id, blood_group, units, updated_at
		 FROM blood_inventory
		 WHERE blood_bank_id = $1
		 ORDER BY blood_group`,
		bankID,
	)
	if err != nil {
		return nil, fmt.Errorf("select inventory: %w", err)
	}
	defer rows.Close()

	var res []model.InventoryRecord
	for rows.Next() {
		var rec model.InventoryRecord
		if err := rows.Scan(&rec.ID, &rec.BloodBankID, &rec.BloodGroup, &rec.Units, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetRewardBySchedule возвращает ваучер, привязанный к записи на донацию.
func (r *PostgresRepository) GetRewardBySchedule(ctx context.Context, scheduleID int64) (*model.DonationReward, error) {
	return r.rewardBySchedule(ctx, r.pool, scheduleID)
}

// rowQuerier объединяет pgxpool.Pool и pgx.Tx для выборок одной строки.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresRepository) rewardBySchedule(ctx context.Context, q rowQuerier, scheduleID int64) (*model.DonationReward, error) {
	row := q.QueryRow(ctx,
		`SELECT id, schedule_id, donor_id, voucher_code, description, created_at
		 FROM donation_rewards
		 WHERE schedule_id = $1`,
		scheduleID,
	)

	var rw model.DonationReward
	err := row.Scan(&rw.ID, &rw.ScheduleID, &rw.DonorID, &rw.VoucherCode, &rw.Description, &rw.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRewardNotFound
		}
		return nil, fmt.Errorf("get reward: %w", err)
	}

	return &rw, nil
}
