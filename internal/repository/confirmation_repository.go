package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	customError "github.com/segyhp/payout-engine/pkg/errors"

	"github.com/jmoiron/sqlx"
)

const confirmationColumns = `id, appointment_id, client_confirmed, client_confirmed_at, professional_confirmed,
	professional_confirmed_at, resolution, resolved_by, resolution_notes, resolved_at, auto_confirm_deadline,
	created_at, updated_at`

const openResolutions = `('pending', 'client_confirmed', 'professional_confirmed', 'disputed')`

type confirmationRepository struct {
	db *sqlx.DB
}

func NewConfirmationRepository(db *sqlx.DB) ConfirmationRepository {
	return &confirmationRepository{db: db}
}

const insertConfirmationQuery = `
	INSERT INTO appointment_confirmations (id, appointment_id, client_confirmed, client_confirmed_at,
		professional_confirmed, professional_confirmed_at, resolution, resolved_by, resolution_notes, resolved_at,
		auto_confirm_deadline, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

func confirmationArgs(c *domain.Confirmation) []interface{} {
	return []interface{}{
		c.ID,
		c.AppointmentID,
		c.ClientConfirmed,
		c.ClientConfirmedAt,
		c.ProfessionalConfirmed,
		c.ProfessionalConfirmedAt,
		c.Resolution,
		c.ResolvedBy,
		c.ResolutionNotes,
		c.ResolvedAt,
		c.AutoConfirmDeadline,
		c.CreatedAt,
		c.UpdatedAt,
	}
}

func (r *confirmationRepository) Create(ctx context.Context, confirmation *domain.Confirmation) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		insertConfirmationQuery+` ON CONFLICT (appointment_id) DO NOTHING`,
		confirmationArgs(confirmation)...)
	if err != nil {
		return false, err
	}

	return rowsChanged(result)
}

func (r *confirmationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Confirmation, error) {
	var confirmation domain.Confirmation
	err := r.db.GetContext(ctx, &confirmation,
		`SELECT `+confirmationColumns+` FROM appointment_confirmations WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}

	return &confirmation, nil
}

func (r *confirmationRepository) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*domain.Confirmation, error) {
	var confirmation domain.Confirmation
	err := r.db.GetContext(ctx, &confirmation,
		`SELECT `+confirmationColumns+` FROM appointment_confirmations WHERE appointment_id = $1`, appointmentID)
	if err != nil {
		return nil, err
	}

	return &confirmation, nil
}

func (r *confirmationRepository) ApplyTransition(ctx context.Context, transition *domain.ConfirmationTransition) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c := transition.Confirmation
	if transition.FromResolution == "" {
		if _, err := tx.ExecContext(ctx, insertConfirmationQuery, confirmationArgs(c)...); err != nil {
			if isUniqueViolation(err) {
				return customError.ErrConfirmationConflict
			}
			return err
		}
	} else {
		query := `
			UPDATE appointment_confirmations
			SET client_confirmed = $3, client_confirmed_at = $4, professional_confirmed = $5,
				professional_confirmed_at = $6, resolution = $7, resolved_by = $8, resolution_notes = $9,
				resolved_at = $10, updated_at = $11
			WHERE id = $1 AND resolution = $2
		`
		result, err := tx.ExecContext(ctx, query,
			c.ID,
			transition.FromResolution,
			c.ClientConfirmed,
			c.ClientConfirmedAt,
			c.ProfessionalConfirmed,
			c.ProfessionalConfirmedAt,
			c.Resolution,
			c.ResolvedBy,
			c.ResolutionNotes,
			c.ResolvedAt,
			c.UpdatedAt,
		)
		if err != nil {
			return err
		}
		changed, err := rowsChanged(result)
		if err != nil {
			return err
		}
		if !changed {
			return customError.ErrConfirmationConflict
		}
	}

	if e := transition.Earning; e != nil {
		// FOR SHARE blocks Seal until this transaction ends
		var accepts bool
		err := tx.GetContext(ctx, &accepts, `
			SELECT status <> 'completed' AND sealed_at IS NULL
			FROM cycles
			WHERE id = $1
			FOR SHARE
		`, e.CycleID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !accepts) {
			return customError.ErrConfirmationConflict
		}
		if err != nil {
			return err
		}

		// appointment_id is unique: a second earning for the same session is dropped
		_, err = tx.ExecContext(ctx, `
			INSERT INTO earnings (id, professional_id, appointment_id, cycle_id, gross_amount, platform_fee,
				net_amount, cut_percentage, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (appointment_id) DO NOTHING
		`, e.ID, e.ProfessionalID, e.AppointmentID, e.CycleID, e.GrossAmount, e.PlatformFee, e.NetAmount,
			e.CutPercentage, e.CreatedAt)
		if err != nil {
			return err
		}
	}

	if a := transition.Appointment; a != nil {
		_, err := tx.ExecContext(ctx, `
			UPDATE appointments
			SET status = $2, dispute_status = $3, dispute_reason = COALESCE($4, dispute_reason),
				disputed_by = COALESCE($5, disputed_by), updated_at = $6
			WHERE id = $1
		`, a.AppointmentID, a.Status, a.DisputeStatus, a.DisputeReason, a.DisputedBy, c.UpdatedAt)
		if err != nil {
			return err
		}
	}

	if transition.ReleaseSlot {
		_, err := tx.ExecContext(ctx, `
			UPDATE availability_slots
			SET booked = FALSE, appointment_id = NULL, updated_at = $2
			WHERE appointment_id = $1
		`, c.AppointmentID, c.UpdatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *confirmationRepository) ListDueForAutoConfirm(ctx context.Context, now time.Time, limit int) ([]*domain.Confirmation, error) {
	query := `
		SELECT ` + confirmationColumns + `
		FROM appointment_confirmations
		WHERE resolution IN ('pending', 'client_confirmed', 'professional_confirmed')
			AND auto_confirm_deadline <= $1
		ORDER BY auto_confirm_deadline
		LIMIT $2
	`

	var confirmations []*domain.Confirmation
	if err := r.db.SelectContext(ctx, &confirmations, query, now, limit); err != nil {
		return nil, err
	}

	return confirmations, nil
}

func (r *confirmationRepository) ListDisputed(ctx context.Context) ([]*domain.PendingConfirmation, error) {
	query := `
		SELECT ` + confirmationColumns + `
		FROM appointment_confirmations
		WHERE resolution = 'disputed'
		ORDER BY created_at
	`

	var confirmations []*domain.Confirmation
	if err := r.db.SelectContext(ctx, &confirmations, query); err != nil {
		return nil, err
	}

	return r.withAppointments(ctx, confirmations)
}

func (r *confirmationRepository) ListOpenForUser(ctx context.Context, userID uuid.UUID) ([]*domain.PendingConfirmation, error) {
	query := `
		SELECT ` + confirmationColumns + `
		FROM appointment_confirmations
		WHERE resolution IN ` + openResolutions + `
			AND appointment_id IN (
				SELECT id FROM appointments WHERE client_id = $1 OR professional_id = $1
			)
		ORDER BY auto_confirm_deadline
	`

	var confirmations []*domain.Confirmation
	if err := r.db.SelectContext(ctx, &confirmations, query, userID); err != nil {
		return nil, err
	}

	return r.withAppointments(ctx, confirmations)
}

func (r *confirmationRepository) CountOpenForProfessional(ctx context.Context, professionalID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM appointment_confirmations c
		JOIN appointments a ON a.id = c.appointment_id
		WHERE a.professional_id = $1 AND c.resolution IN ` + openResolutions

	var count int
	if err := r.db.GetContext(ctx, &count, query, professionalID); err != nil {
		return 0, err
	}

	return count, nil
}

func (r *confirmationRepository) withAppointments(ctx context.Context, confirmations []*domain.Confirmation) ([]*domain.PendingConfirmation, error) {
	ids := make([]uuid.UUID, 0, len(confirmations))
	for _, c := range confirmations {
		ids = append(ids, c.AppointmentID)
	}

	appointments, err := appointmentsByID(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.PendingConfirmation, 0, len(confirmations))
	for _, c := range confirmations {
		out = append(out, &domain.PendingConfirmation{
			Confirmation: c,
			Appointment:  appointments[c.AppointmentID],
		})
	}
	return out, nil
}
