package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the appointments table.
type PostgresRepository struct {
	db pgQuerier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("calendar: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db pgQuerier) *PostgresRepository {
	if db == nil {
		panic("calendar: db required")
	}
	return &PostgresRepository{db: db}
}

const appointmentColumns = `id, call_id, provider_id, provider_name, service_type, location, starts_at,
	duration_minutes, patient_name, patient_phone, status, external_event_id, created_at`

func (r *PostgresRepository) Create(ctx context.Context, appt Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		appt.ID, appt.CallID, appt.ProviderID, appt.ProviderName, string(appt.ServiceType), string(appt.Location),
		appt.StartsAt.UTC(), int(appt.Duration/time.Minute), appt.PatientName, appt.PatientPhone, appt.Status,
		appt.ExternalEventID, appt.CreatedAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlotTaken
		}
		return fmt.Errorf("calendar: insert appointment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListForProviders(ctx context.Context, providerIDs []string, from, to time.Time) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE provider_id = ANY($1)
		  AND status = 'confirmed'
		  AND starts_at < $3
		  AND starts_at + make_interval(mins => duration_minutes) > $2
		ORDER BY starts_at
	`
	rows, err := r.db.Query(ctx, query, providerIDs, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("calendar: list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("calendar: scan appointment: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calendar: list appointments: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, fmt.Errorf("calendar: get appointment: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) SetExternalEventID(ctx context.Context, id, eventID string) error {
	ct, err := r.db.Exec(ctx, `UPDATE appointments SET external_event_id = $2 WHERE id = $1`, id, eventID)
	if err != nil {
		return fmt.Errorf("calendar: set external event id: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (Appointment, error) {
	var (
		appt     Appointment
		service  string
		location string
		minutes  int
	)
	if err := row.Scan(
		&appt.ID, &appt.CallID, &appt.ProviderID, &appt.ProviderName, &service, &location, &appt.StartsAt,
		&minutes, &appt.PatientName, &appt.PatientPhone, &appt.Status, &appt.ExternalEventID, &appt.CreatedAt,
	); err != nil {
		return Appointment{}, err
	}
	appt.ServiceType = dialogue.ServiceType(service)
	appt.Location = dialogue.Location(location)
	appt.Duration = time.Duration(minutes) * time.Minute
	return appt, nil
}
