package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const foreignKeyViolation = "23503"

const sessionColumns = `id, participant0_email, participant0_first_name, participant0_last_name,
	participant1_email, participant1_first_name, participant1_last_name, created_at`

// Repository is the postgres Store. The unique index on pair_key settles
// concurrent creation of the same pair: the losing insert is a no-op and the
// follow-up read returns the winner's row.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) GetOrCreateSession(ctx context.Context, a, b protocol.Profile) (Session, error) {
	key := pairKey(a.Email, b.Email)

	s, found, err := r.sessionByPair(ctx, key)
	if err != nil || found {
		return s, err
	}

	insert := `INSERT INTO chat_sessions (id, pair_key,
		participant0_email, participant0_first_name, participant0_last_name,
		participant1_email, participant1_first_name, participant1_last_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (pair_key) DO NOTHING`
	_, err = r.db.ExecContext(ctx, insert, uuid.NewString(), key,
		a.Email, a.FirstName, a.LastName,
		b.Email, b.FirstName, b.LastName, r.now().UTC())
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}

	s, found, err = r.sessionByPair(ctx, key)
	if err != nil {
		return Session{}, err
	}
	if !found {
		return Session{}, fmt.Errorf("session %s vanished after insert", key)
	}
	return s, nil
}

func (r *Repository) sessionByPair(ctx context.Context, key string) (Session, bool, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM chat_sessions WHERE pair_key = $1", key)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("select session: %w", err)
	}

	msgs, err := r.messagesFor(ctx, []string{s.ID})
	if err != nil {
		return Session{}, false, err
	}
	s.Messages = msgs[s.ID]
	return s, true, nil
}

func (r *Repository) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	query := `INSERT INTO chat_messages (session_id, sender_email, text, image, date_sent)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, sessionID, msg.SenderEmail, msg.Text, nullable(msg.Image), msg.DateSent)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *Repository) ListSessionsFor(ctx context.Context, email string) ([]Session, error) {
	query := "SELECT " + sessionColumns + ` FROM chat_sessions
		WHERE participant0_email = $1 OR participant1_email = $1
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	msgs, err := r.messagesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Messages = msgs[sessions[i].ID]
	}
	return sessions, nil
}

// messagesFor loads the logs of several sessions in one query, in append order.
func (r *Repository) messagesFor(ctx context.Context, ids []string) (map[string][]Message, error) {
	query := `SELECT session_id, sender_email, text, image, date_sent
		FROM chat_messages WHERE session_id = ANY($1) ORDER BY session_id, seq`
	rows, err := r.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	res := make(map[string][]Message, len(ids))
	for rows.Next() {
		sessionID, m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res[sessionID] = append(res[sessionID], m)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanSession reads sessionColumns.
func scanSession(row scanner) (Session, error) {
	var s Session
	err := row.Scan(&s.ID,
		&s.Participant0.Email, &s.Participant0.FirstName, &s.Participant0.LastName,
		&s.Participant1.Email, &s.Participant1.FirstName, &s.Participant1.LastName,
		&s.CreatedAt)
	if err != nil {
		return Session{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

// scanMessage reads session_id, sender_email, text, image, date_sent.
func scanMessage(row scanner) (string, Message, error) {
	var (
		sessionID string
		image     sql.NullString
		m         Message
	)
	if err := row.Scan(&sessionID, &m.SenderEmail, &m.Text, &image, &m.DateSent); err != nil {
		return "", Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.Image = image.String
	m.DateSent = m.DateSent.UTC()
	return sessionID, m, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
