package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	customError "github.com/segyhp/payout-engine/pkg/errors"

	"github.com/jmoiron/sqlx"
)

const appointmentColumns = `id, client_id, professional_id, slot_id, start_time, end_time, status, rate,
	adjusted_rate, dispute_status, dispute_reason, disputed_by, venue, payment_reference, refund_reference,
	created_at, updated_at`

type appointmentRepository struct {
	db *sqlx.DB
}

func NewAppointmentRepository(db *sqlx.DB) AppointmentRepository {
	return &appointmentRepository{db: db}
}

func (r *appointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment domain.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, err
	}

	return &appointment, nil
}

func (r *appointmentRepository) ListEndedUpcoming(ctx context.Context, now time.Time, limit int) ([]*domain.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status = 'upcoming' AND end_time <= $1
		ORDER BY end_time
		LIMIT $2
	`

	var appointments []*domain.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, now, limit); err != nil {
		return nil, err
	}

	return appointments, nil
}

func (r *appointmentRepository) MarkCompleted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE appointments
		SET status = 'completed', updated_at = $2
		WHERE id = $1 AND status = 'upcoming' AND end_time <= $2
	`

	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, err
	}

	return rowsChanged(result)
}

func (r *appointmentRepository) CreateWithSlot(ctx context.Context, appointment *domain.Appointment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if appointment.SlotID != nil {
		result, err := tx.ExecContext(ctx, `
			UPDATE availability_slots
			SET booked = TRUE, appointment_id = $2, updated_at = $3
			WHERE id = $1 AND professional_id = $4 AND NOT booked
		`, *appointment.SlotID, appointment.ID, appointment.CreatedAt, appointment.ProfessionalID)
		if err != nil {
			return err
		}

		booked, err := rowsChanged(result)
		if err != nil {
			return err
		}
		if !booked {
			var exists bool
			err = tx.GetContext(ctx, &exists,
				`SELECT EXISTS (SELECT 1 FROM availability_slots WHERE id = $1 AND professional_id = $2)`,
				*appointment.SlotID, appointment.ProfessionalID)
			if err != nil {
				return err
			}
			if !exists {
				return customError.ErrSlotNotFound
			}
			return customError.ErrSlotAlreadyBooked
		}
	}

	query := `
		INSERT INTO appointments (id, client_id, professional_id, slot_id, start_time, end_time, status, rate,
			adjusted_rate, dispute_status, venue, payment_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = tx.ExecContext(ctx, query,
		appointment.ID,
		appointment.ClientID,
		appointment.ProfessionalID,
		appointment.SlotID,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Status,
		appointment.Rate,
		appointment.AdjustedRate,
		appointment.DisputeStatus,
		appointment.Venue,
		appointment.PaymentReference,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *appointmentRepository) GetSlot(ctx context.Context, id uuid.UUID) (*domain.AvailabilitySlot, error) {
	query := `
		SELECT id, professional_id, start_time, end_time, booked, appointment_id, updated_at
		FROM availability_slots
		WHERE id = $1
	`

	var slot domain.AvailabilitySlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}

	return &slot, nil
}

func (r *appointmentRepository) SetRefundReference(ctx context.Context, id uuid.UUID, reference string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE appointments SET refund_reference = $2, updated_at = $3 WHERE id = $1`,
		id, reference, now)
	if err != nil {
		return err
	}

	changed, err := rowsChanged(result)
	if err != nil {
		return err
	}
	if !changed {
		return sql.ErrNoRows
	}
	return nil
}

// appointmentsByID loads appointments for a set of ids.
func appointmentsByID(ctx context.Context, q sqlx.QueryerContext, ids []uuid.UUID) (map[uuid.UUID]*domain.Appointment, error) {
	out := make(map[uuid.UUID]*domain.Appointment, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+appointmentColumns+` FROM appointments WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	var appointments []*domain.Appointment
	if err := sqlx.SelectContext(ctx, q, &appointments, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return nil, err
	}

	for _, appointment := range appointments {
		out[appointment.ID] = appointment
	}
	return out, nil
}
