package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/inbox/internal/crypto"
	"github.com/eldtechnologies/inbox/internal/models"
)

// SQLiteStore handles SQLite database operations.
// Timestamps are stored as INTEGER microseconds since the Unix epoch.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/inbox.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/inbox.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection keeps transactions serialised.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS identities (
		id TEXT PRIMARY KEY,
		public_key TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		identity_low TEXT NOT NULL,
		identity_high TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE (identity_low, identity_high),
		CHECK (identity_low <> identity_high)
	);

	CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		identity_id TEXT NOT NULL,
		last_read_at INTEGER,
		archived_at INTEGER,
		UNIQUE (conversation_id, identity_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL,
		correlation_id TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_participants_identity ON participants(identity_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_correlation ON messages(conversation_id, sender_id, correlation_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func fromNullMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

func isSQLiteUnique(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// CreateIdentity creates a new identity record.
func (s *SQLiteStore) CreateIdentity(ctx context.Context, publicKey, name string) (*models.Identity, error) {
	id := crypto.NewUUIDv7()
	now := toMicros(time.Now())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (id, public_key, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), publicKey, name, now, now)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	return s.GetIdentityByID(ctx, id)
}

// GetIdentityByID retrieves an identity by ID.
func (s *SQLiteStore) GetIdentityByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	return s.getIdentity(ctx, `
		SELECT id, public_key, name, created_at, updated_at
		FROM identities WHERE id = ?
	`, id.String())
}

// GetIdentityByPublicKey retrieves an identity by public key.
func (s *SQLiteStore) GetIdentityByPublicKey(ctx context.Context, publicKey string) (*models.Identity, error) {
	return s.getIdentity(ctx, `
		SELECT id, public_key, name, created_at, updated_at
		FROM identities WHERE public_key = ?
	`, publicKey)
}

func (s *SQLiteStore) getIdentity(ctx context.Context, query string, arg any) (*models.Identity, error) {
	identity := &models.Identity{}
	var (
		idStr                string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&idStr,
		&identity.PublicKey,
		&identity.Name,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	identity.ID = uuid.MustParse(idStr)
	identity.CreatedAt = fromMicros(createdAt)
	identity.UpdatedAt = fromMicros(updatedAt)
	return identity, nil
}

// FindConversationByPair retrieves the conversation between two identities.
func (s *SQLiteStore) FindConversationByPair(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	low, high := models.PairKey(a, b)
	return s.getConversation(ctx, `
		SELECT id, created_at, updated_at
		FROM conversations WHERE identity_low = ? AND identity_high = ?
	`, low.String(), high.String())
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return s.getConversation(ctx, `
		SELECT id, created_at, updated_at FROM conversations WHERE id = ?
	`, id.String())
}

func (s *SQLiteStore) getConversation(ctx context.Context, query string, args ...any) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var (
		idStr                string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&idStr, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	conv.ID = uuid.MustParse(idStr)
	conv.CreatedAt = fromMicros(createdAt)
	conv.UpdatedAt = fromMicros(updatedAt)
	return conv, nil
}

// CreateConversation creates a conversation with its two participants.
func (s *SQLiteStore) CreateConversation(ctx context.Context, a, b uuid.UUID, now time.Time) (*models.Conversation, error) {
	low, high := models.PairKey(a, b)
	at := now.UTC().Truncate(time.Microsecond)
	conv := &models.Conversation{ID: crypto.NewUUIDv7(), CreatedAt: at, UpdatedAt: at}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, identity_low, identity_high, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, conv.ID.String(), low.String(), high.String(), toMicros(at), toMicros(at)); err != nil {
			return err
		}
		for _, identityID := range []uuid.UUID{a, b} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO participants (id, conversation_id, identity_id)
				VALUES (?, ?, ?)
			`, crypto.NewUUIDv7().String(), conv.ID.String(), identityID.String()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return conv, nil
}

// GetParticipant retrieves an identity's participant row in a conversation.
func (s *SQLiteStore) GetParticipant(ctx context.Context, conversationID, identityID uuid.UUID) (*models.Participant, error) {
	return getSQLiteParticipant(ctx, s.db, conversationID, identityID)
}

// ListParticipants retrieves both participants of a conversation.
func (s *SQLiteStore) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, identity_id, last_read_at, archived_at
		FROM participants WHERE conversation_id = ?
		ORDER BY identity_id
	`, conversationID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		p, err := scanSQLiteParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

// SetArchived sets or clears a participant's archived_at.
func (s *SQLiteStore) SetArchived(ctx context.Context, conversationID, identityID uuid.UUID, archived bool, now time.Time) (*models.Participant, error) {
	var (
		res sql.Result
		err error
	)
	if archived {
		res, err = s.db.ExecContext(ctx, `
			UPDATE participants SET archived_at = COALESCE(archived_at, ?)
			WHERE conversation_id = ? AND identity_id = ?
		`, toMicros(now), conversationID.String(), identityID.String())
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE participants SET archived_at = NULL
			WHERE conversation_id = ? AND identity_id = ?
		`, conversationID.String(), identityID.String())
	}
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetParticipant(ctx, conversationID, identityID)
}

// AdvanceReadCursor moves a participant's read cursor forward.
func (s *SQLiteStore) AdvanceReadCursor(ctx context.Context, conversationID, identityID uuid.UUID, now time.Time) (*models.Participant, error) {
	var p *models.Participant
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		latest, err := latestMessageTime(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		cursor := toMicros(readCursorTime(now, latest))

		res, err := tx.ExecContext(ctx, `
			UPDATE participants
			SET last_read_at = MAX(COALESCE(last_read_at, ?), ?)
			WHERE conversation_id = ? AND identity_id = ?
		`, cursor, cursor, conversationID.String(), identityID.String())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		p, err = getSQLiteParticipant(ctx, tx, conversationID, identityID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListSummaries builds conversation summaries for an identity, most recent first.
func (s *SQLiteStore) ListSummaries(ctx context.Context, identityID uuid.UUID, archived bool) ([]models.ConversationSummary, error) {
	archivedFilter := "p.archived_at IS NULL"
	if archived {
		archivedFilter = "p.archived_at IS NOT NULL"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.updated_at, p.archived_at, o.identity_id,
		       lm.id, lm.sender_id, lm.content, lm.created_at,
		       (SELECT COUNT(*) FROM messages m
		        WHERE m.conversation_id = c.id
		          AND m.sender_id <> p.identity_id
		          AND m.created_at > COALESCE(p.last_read_at, 0))
		FROM participants p
		JOIN conversations c ON c.id = p.conversation_id
		JOIN participants o ON o.conversation_id = c.id AND o.identity_id <> p.identity_id
		LEFT JOIN messages lm ON lm.id = (
			SELECT id FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
		WHERE p.identity_id = ? AND `+archivedFilter+`
		ORDER BY c.updated_at DESC, c.id
	`, identityID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var (
			sum                  models.ConversationSummary
			convID, otherID      string
			updatedAt            int64
			archivedAt           sql.NullInt64
			msgID, senderID, txt sql.NullString
			createdAt            sql.NullInt64
		)
		if err := rows.Scan(
			&convID,
			&updatedAt,
			&archivedAt,
			&otherID,
			&msgID,
			&senderID,
			&txt,
			&createdAt,
			&sum.UnreadCount,
		); err != nil {
			return nil, err
		}
		sum.ConversationID = uuid.MustParse(convID)
		sum.OtherID = uuid.MustParse(otherID)
		sum.UpdatedAt = fromMicros(updatedAt)
		sum.ArchivedAt = fromNullMicros(archivedAt)
		if msgID.Valid {
			sum.LastMessage = &models.Message{
				ID:             msgID.String,
				ConversationID: sum.ConversationID,
				SenderID:       uuid.MustParse(senderID.String),
				Content:        txt.String,
				CreatedAt:      fromMicros(createdAt.Int64),
			}
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// InsertMessage appends a message and updates the conversation's activity.
func (s *SQLiteStore) InsertMessage(ctx context.Context, conversationID, senderID uuid.UUID, content, correlationID string, now time.Time) (*models.Message, error) {
	msg := &models.Message{
		ID:             crypto.NewULID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CorrelationID:  correlationID,
	}

	found := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM conversations WHERE id = ?
		`, conversationID.String()).Scan(&exists)
		if err != nil || exists == 0 {
			return err
		}
		found = true

		last, err := latestMessageTime(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		cursor, err := latestReadCursor(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		msg.CreatedAt = nextMessageTime(now, last, cursor)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, correlation_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, msg.ID, conversationID.String(), senderID.String(), content,
			nullString(correlationID), toMicros(msg.CreatedAt)); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE conversations SET updated_at = ? WHERE id = ?
		`, toMicros(msg.CreatedAt), conversationID.String())
		return err
	})
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return msg, nil
}

// GetMessageByCorrelation finds the message a sender stored under a
// correlation id.
func (s *SQLiteStore) GetMessageByCorrelation(ctx context.Context, conversationID, senderID uuid.UUID, correlationID string) (*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, correlation_id, created_at
		FROM messages
		WHERE conversation_id = ? AND sender_id = ? AND correlation_id = ?
	`, conversationID.String(), senderID.String(), correlationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := scanSQLiteMessages(rows)
	if err != nil || len(messages) == 0 {
		return nil, err
	}
	return &messages[0], nil
}

// ListMessages retrieves a page of messages in ascending order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int, beforeID string) ([]models.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if beforeID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, conversation_id, sender_id, content, correlation_id, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, conversationID.String(), clampLimit(limit))
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT m.id, m.conversation_id, m.sender_id, m.content, m.correlation_id, m.created_at
			FROM messages m
			JOIN messages b ON b.id = ? AND b.conversation_id = m.conversation_id
			WHERE m.conversation_id = ?
			  AND (m.created_at < b.created_at OR (m.created_at = b.created_at AND m.id < b.id))
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT ?
		`, beforeID, conversationID.String(), clampLimit(limit))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := scanSQLiteMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(messages)
	return messages, nil
}

func scanSQLiteMessages(rows *sql.Rows) ([]models.Message, error) {
	messages := []models.Message{}
	for rows.Next() {
		var (
			msg              models.Message
			convID, senderID string
			correlationID    sql.NullString
			createdAt        int64
		)
		if err := rows.Scan(&msg.ID, &convID, &senderID, &msg.Content, &correlationID, &createdAt); err != nil {
			return nil, err
		}
		msg.ConversationID = uuid.MustParse(convID)
		msg.SenderID = uuid.MustParse(senderID)
		msg.CorrelationID = correlationID.String
		msg.CreatedAt = fromMicros(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountUnread counts messages from the other participant newer than the cursor.
func (s *SQLiteStore) CountUnread(ctx context.Context, conversationID, identityID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM participants p
		JOIN messages m ON m.conversation_id = p.conversation_id
		WHERE p.conversation_id = ? AND p.identity_id = ?
		  AND m.sender_id <> p.identity_id
		  AND m.created_at > COALESCE(p.last_read_at, 0)
	`, conversationID.String(), identityID.String()).Scan(&count)
	return count, err
}

// CountUnreadTotal sums unread counts over non-archived conversations.
func (s *SQLiteStore) CountUnreadTotal(ctx context.Context, identityID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM participants p
		JOIN messages m ON m.conversation_id = p.conversation_id
		WHERE p.identity_id = ? AND p.archived_at IS NULL
		  AND m.sender_id <> p.identity_id
		  AND m.created_at > COALESCE(p.last_read_at, 0)
	`, identityID.String()).Scan(&count)
	return count, err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func latestMessageTime(ctx context.Context, q queryer, conversationID uuid.UUID) (*time.Time, error) {
	var latest sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM messages WHERE conversation_id = ?
	`, conversationID.String()).Scan(&latest)
	if err != nil {
		return nil, err
	}
	return fromNullMicros(latest), nil
}

// latestReadCursor returns the furthest read cursor of the conversation's
// participants.
func latestReadCursor(ctx context.Context, q queryer, conversationID uuid.UUID) (*time.Time, error) {
	var cursor sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT MAX(last_read_at) FROM participants WHERE conversation_id = ?
	`, conversationID.String()).Scan(&cursor)
	if err != nil {
		return nil, err
	}
	return fromNullMicros(cursor), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func getSQLiteParticipant(ctx context.Context, q queryer, conversationID, identityID uuid.UUID) (*models.Participant, error) {
	p, err := scanSQLiteParticipant(q.QueryRowContext(ctx, `
		SELECT id, conversation_id, identity_id, last_read_at, archived_at
		FROM participants WHERE conversation_id = ? AND identity_id = ?
	`, conversationID.String(), identityID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteParticipant(row rowScanner) (*models.Participant, error) {
	var (
		id, convID, identityID string
		lastReadAt, archivedAt sql.NullInt64
	)
	if err := row.Scan(&id, &convID, &identityID, &lastReadAt, &archivedAt); err != nil {
		return nil, err
	}
	return &models.Participant{
		ID:             uuid.MustParse(id),
		ConversationID: uuid.MustParse(convID),
		IdentityID:     uuid.MustParse(identityID),
		LastReadAt:     fromNullMicros(lastReadAt),
		ArchivedAt:     fromNullMicros(archivedAt),
	}, nil
}
