package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/inbox/internal/crypto"
	"github.com/eldtechnologies/inbox/internal/metrics"
	"github.com/eldtechnologies/inbox/internal/models"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observePostgres(start time.Time) {
	metrics.PostgresLatency.Observe(time.Since(start).Seconds())
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateIdentity creates a new identity record.
func (s *PostgresStore) CreateIdentity(ctx context.Context, publicKey, name string) (*models.Identity, error) {
	defer observePostgres(time.Now())

	identity := &models.Identity{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO identities (id, public_key, name)
		VALUES ($1, $2, $3)
		RETURNING id, public_key, name, created_at, updated_at
	`, crypto.NewUUIDv7(), publicKey, name).Scan(
		&identity.ID,
		&identity.PublicKey,
		&identity.Name,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return identity, nil
}

// GetIdentityByID retrieves an identity by ID.
func (s *PostgresStore) GetIdentityByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	defer observePostgres(time.Now())
	return s.getIdentity(ctx, `
		SELECT id, public_key, name, created_at, updated_at
		FROM identities WHERE id = $1
	`, id)
}

// GetIdentityByPublicKey retrieves an identity by public key.
func (s *PostgresStore) GetIdentityByPublicKey(ctx context.Context, publicKey string) (*models.Identity, error) {
	defer observePostgres(time.Now())
	return s.getIdentity(ctx, `
		SELECT id, public_key, name, created_at, updated_at
		FROM identities WHERE public_key = $1
	`, publicKey)
}

func (s *PostgresStore) getIdentity(ctx context.Context, query string, arg any) (*models.Identity, error) {
	identity := &models.Identity{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&identity.ID,
		&identity.PublicKey,
		&identity.Name,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return identity, nil
}

// FindConversationByPair retrieves the conversation between two identities.
func (s *PostgresStore) FindConversationByPair(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	defer observePostgres(time.Now())

	low, high := models.PairKey(a, b)
	conv := &models.Conversation{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, created_at, updated_at
		FROM conversations WHERE identity_low = $1 AND identity_high = $2
	`, low, high).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// CreateConversation creates a conversation with its two participants.
func (s *PostgresStore) CreateConversation(ctx context.Context, a, b uuid.UUID, now time.Time) (*models.Conversation, error) {
	defer observePostgres(time.Now())

	low, high := models.PairKey(a, b)
	at := now.UTC().Truncate(time.Microsecond)
	conv := &models.Conversation{ID: crypto.NewUUIDv7(), CreatedAt: at, UpdatedAt: at}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, identity_low, identity_high, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
		`, conv.ID, low, high, at); err != nil {
			return err
		}
		for _, identityID := range []uuid.UUID{a, b} {
			if _, err := tx.Exec(ctx, `
				INSERT INTO participants (id, conversation_id, identity_id)
				VALUES ($1, $2, $3)
			`, crypto.NewUUIDv7(), conv.ID, identityID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	defer observePostgres(time.Now())

	conv := &models.Conversation{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, created_at, updated_at FROM conversations WHERE id = $1
	`, id).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// GetParticipant retrieves an identity's participant row in a conversation.
func (s *PostgresStore) GetParticipant(ctx context.Context, conversationID, identityID uuid.UUID) (*models.Participant, error) {
	defer observePostgres(time.Now())

	p, err := scanParticipant(s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, identity_id, last_read_at, archived_at
		FROM participants WHERE conversation_id = $1 AND identity_id = $2
	`, conversationID, identityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListParticipants retrieves both participants of a conversation.
func (s *PostgresStore) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]models.Participant, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, identity_id, last_read_at, archived_at
		FROM participants WHERE conversation_id = $1
		ORDER BY identity_id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

// SetArchived sets or clears a participant's archived_at.
func (s *PostgresStore) SetArchived(ctx context.Context, conversationID, identityID uuid.UUID, archived bool, now time.Time) (*models.Participant, error) {
	defer observePostgres(time.Now())

	var archivedAt *time.Time
	if archived {
		at := now.UTC().Truncate(time.Microsecond)
		archivedAt = &at
	}

	p, err := scanParticipant(s.pool.QueryRow(ctx, `
		UPDATE participants
		SET archived_at = CASE WHEN $3::timestamptz IS NULL THEN NULL ELSE COALESCE(archived_at, $3) END
		WHERE conversation_id = $1 AND identity_id = $2
		RETURNING id, conversation_id, identity_id, last_read_at, archived_at
	`, conversationID, identityID, archivedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// AdvanceReadCursor moves a participant's read cursor forward.
func (s *PostgresStore) AdvanceReadCursor(ctx context.Context, conversationID, identityID uuid.UUID, now time.Time) (*models.Participant, error) {
	defer observePostgres(time.Now())

	var p *models.Participant
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Serialises with InsertMessage, which holds FOR UPDATE on the same
		// row and stamps new messages after every cursor written here.
		var id uuid.UUID
		if err := tx.QueryRow(ctx, `
			SELECT id FROM conversations WHERE id = $1 FOR SHARE
		`, conversationID).Scan(&id); err != nil {
			return err
		}

		var latest *time.Time
		if err := tx.QueryRow(ctx, `
			SELECT MAX(created_at) FROM messages WHERE conversation_id = $1
		`, conversationID).Scan(&latest); err != nil {
			return err
		}

		var err error
		p, err = scanParticipant(tx.QueryRow(ctx, `
			UPDATE participants
			SET last_read_at = GREATEST(COALESCE(last_read_at, $3), $3)
			WHERE conversation_id = $1 AND identity_id = $2
			RETURNING id, conversation_id, identity_id, last_read_at, archived_at
		`, conversationID, identityID, readCursorTime(now, latest)))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListSummaries builds conversation summaries for an identity, most recent first.
func (s *PostgresStore) ListSummaries(ctx context.Context, identityID uuid.UUID, archived bool) ([]models.ConversationSummary, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.updated_at, p.archived_at, o.identity_id,
		       lm.id, lm.sender_id, lm.content, lm.created_at,
		       (SELECT COUNT(*) FROM messages m
		        WHERE m.conversation_id = c.id
		          AND m.sender_id <> p.identity_id
		          AND m.created_at > COALESCE(p.last_read_at, 'epoch'::timestamptz))
		FROM participants p
		JOIN conversations c ON c.id = p.conversation_id
		JOIN participants o ON o.conversation_id = c.id AND o.identity_id <> p.identity_id
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, created_at FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		WHERE p.identity_id = $1 AND (p.archived_at IS NOT NULL) = $2
		ORDER BY c.updated_at DESC, c.id
	`, identityID, archived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var (
			sum       models.ConversationSummary
			msgID     *string
			senderID  *uuid.UUID
			content   *string
			createdAt *time.Time
		)
		if err := rows.Scan(
			&sum.ConversationID,
			&sum.UpdatedAt,
			&sum.ArchivedAt,
			&sum.OtherID,
			&msgID,
			&senderID,
			&content,
			&createdAt,
			&sum.UnreadCount,
		); err != nil {
			return nil, err
		}
		if msgID != nil {
			sum.LastMessage = &models.Message{
				ID:             *msgID,
				ConversationID: sum.ConversationID,
				SenderID:       *senderID,
				Content:        *content,
				CreatedAt:      *createdAt,
			}
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// InsertMessage appends a message and updates the conversation's activity.
func (s *PostgresStore) InsertMessage(ctx context.Context, conversationID, senderID uuid.UUID, content, correlationID string, now time.Time) (*models.Message, error) {
	defer observePostgres(time.Now())

	msg := &models.Message{
		ID:             crypto.NewULID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CorrelationID:  correlationID,
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id uuid.UUID
		if err := tx.QueryRow(ctx, `
			SELECT id FROM conversations WHERE id = $1 FOR UPDATE
		`, conversationID).Scan(&id); err != nil {
			return err
		}

		var last, cursor *time.Time
		if err := tx.QueryRow(ctx, `
			SELECT (SELECT MAX(created_at) FROM messages WHERE conversation_id = $1),
			       (SELECT MAX(last_read_at) FROM participants WHERE conversation_id = $1)
		`, conversationID).Scan(&last, &cursor); err != nil {
			return err
		}
		msg.CreatedAt = nextMessageTime(now, last, cursor)

		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, correlation_id, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		`, msg.ID, conversationID, senderID, content, correlationID, msg.CreatedAt); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			UPDATE conversations SET updated_at = $2 WHERE id = $1
		`, conversationID, msg.CreatedAt)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return msg, nil
}

// GetMessageByCorrelation finds the message a sender stored under a
// correlation id.
func (s *PostgresStore) GetMessageByCorrelation(ctx context.Context, conversationID, senderID uuid.UUID, correlationID string) (*models.Message, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, COALESCE(correlation_id, ''), created_at
		FROM messages
		WHERE conversation_id = $1 AND sender_id = $2 AND correlation_id = $3
	`, conversationID, senderID, correlationID)
	if err != nil {
		return nil, err
	}

	messages, err := collectMessages(rows)
	if err != nil || len(messages) == 0 {
		return nil, err
	}
	return &messages[0], nil
}

// ListMessages retrieves a page of messages in ascending order.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int, beforeID string) ([]models.Message, error) {
	defer observePostgres(time.Now())

	var (
		rows pgx.Rows
		err  error
	)
	if beforeID == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, conversation_id, sender_id, content, COALESCE(correlation_id, ''), created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, conversationID, clampLimit(limit))
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT m.id, m.conversation_id, m.sender_id, m.content, COALESCE(m.correlation_id, ''), m.created_at
			FROM messages m
			JOIN messages b ON b.id = $3 AND b.conversation_id = m.conversation_id
			WHERE m.conversation_id = $1
			  AND (m.created_at, m.id) < (b.created_at, b.id)
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $2
		`, conversationID, clampLimit(limit), beforeID)
	}
	if err != nil {
		return nil, err
	}

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(messages)
	return messages, nil
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.CorrelationID, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountUnread counts messages from the other participant newer than the cursor.
func (s *PostgresStore) CountUnread(ctx context.Context, conversationID, identityID uuid.UUID) (int, error) {
	defer observePostgres(time.Now())

	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM participants p
		JOIN messages m ON m.conversation_id = p.conversation_id
		WHERE p.conversation_id = $1 AND p.identity_id = $2
		  AND m.sender_id <> p.identity_id
		  AND m.created_at > COALESCE(p.last_read_at, 'epoch'::timestamptz)
	`, conversationID, identityID).Scan(&count)
	return count, err
}

// CountUnreadTotal sums unread counts over non-archived conversations.
func (s *PostgresStore) CountUnreadTotal(ctx context.Context, identityID uuid.UUID) (int, error) {
	defer observePostgres(time.Now())

	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM participants p
		JOIN messages m ON m.conversation_id = p.conversation_id
		WHERE p.identity_id = $1 AND p.archived_at IS NULL
		  AND m.sender_id <> p.identity_id
		  AND m.created_at > COALESCE(p.last_read_at, 'epoch'::timestamptz)
	`, identityID).Scan(&count)
	return count, err
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	p := &models.Participant{}
	err := row.Scan(&p.ID, &p.ConversationID, &p.IdentityID, &p.LastReadAt, &p.ArchivedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func reverse(messages []models.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
