package store

import (
	"database/sql"
	"errors"
	"time"
)

// Episode is one alert from notification until it is re-armed.
type Episode struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	Frame          int        `json:"frame"`
	Label          string     `json:"label"`
	Confidence     float64    `json:"confidence"`
	NotifyError    string     `json:"notify_error,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	RearmedAt      *time.Time `json:"rearmed_at,omitempty"`
}

// Event kinds recorded in episode_events.
const (
	EventAlerted      = "alerted"
	EventAcknowledged = "acknowledged"
	EventRearmed      = "rearmed"
)

// Event is a single transition within an episode.
type Event struct {
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
}

// EpisodeRepository provides operations on alert episodes.
type EpisodeRepository struct {
	db *sql.DB
}

// Episodes returns the episode repository for this store.
func (s *Store) Episodes() *EpisodeRepository {
	return &EpisodeRepository{db: s.db}
}

// Create inserts a new episode and its alerted event.
func (r *EpisodeRepository) Create(e *Episode) error {
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO episodes (id, started_at, frame, label, confidence, notify_error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.StartedAt, e.Frame, e.Label, e.Confidence, e.NotifyError,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(
		`INSERT INTO episode_events (episode_id, kind, at) VALUES (?, ?, ?)`,
		e.ID, EventAlerted, e.StartedAt,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// Acknowledge stamps the episode's acknowledgment time.
func (r *EpisodeRepository) Acknowledge(id string, at time.Time) error {
	return r.mark(id, "acknowledged_at", EventAcknowledged, at)
}

// Rearm stamps the time the episode ended by re-arming.
func (r *EpisodeRepository) Rearm(id string, at time.Time) error {
	return r.mark(id, "rearmed_at", EventRearmed, at)
}

func (r *EpisodeRepository) mark(id, column, kind string, at time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`UPDATE episodes SET `+column+` = ? WHERE id = ?`, at, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(
		`INSERT INTO episode_events (episode_id, kind, at) VALUES (?, ?, ?)`,
		id, kind, at,
	); err != nil {
		return err
	}

	return tx.Commit()
}

const episodeColumns = `id, started_at, frame, label, confidence, notify_error, acknowledged_at, rearmed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row rowScanner) (*Episode, error) {
	e := &Episode{}
	var acked, rearmed sql.NullTime

	err := row.Scan(&e.ID, &e.StartedAt, &e.Frame, &e.Label, &e.Confidence, &e.NotifyError, &acked, &rearmed)
	if err != nil {
		return nil, err
	}

	if acked.Valid {
		t := acked.Time
		e.AcknowledgedAt = &t
	}
	if rearmed.Valid {
		t := rearmed.Time
		e.RearmedAt = &t
	}
	return e, nil
}

// GetByID retrieves an episode by its ID.
func (r *EpisodeRepository) GetByID(id string) (*Episode, error) {
	e, err := scanEpisode(r.db.QueryRow(
		`SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// List retrieves episodes, newest first. A limit <= 0 returns all of them.
func (r *EpisodeRepository) List(limit int) ([]*Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return episodes, nil
}

// Events returns the transitions recorded for an episode in order.
func (r *EpisodeRepository) Events(id string) ([]Event, error) {
	rows, err := r.db.Query(
		`SELECT kind, at FROM episode_events WHERE episode_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Kind, &ev.At); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Delete removes an episode and its events.
func (r *EpisodeRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM episodes WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
