package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/config"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
)

// messagesTableCQL partitions by conversation and clusters by time, with the
// ULID breaking ties in generation order.
const messagesTableCQL = `
	CREATE TABLE IF NOT EXISTS messages_by_conversation (
		conversation_id text,
		created_at timestamp,
		message_id text,
		sender_id text,
		body text,
		PRIMARY KEY ((conversation_id), created_at, message_id)
	) WITH CLUSTERING ORDER BY (created_at ASC, message_id ASC)`

// CassandraMessageRepository stores the message log in Cassandra.
type CassandraMessageRepository struct {
	session *gocql.Session
}

func NewCassandraMessageRepository(cfg config.CassandraConfig) (*CassandraMessageRepository, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	repo := &CassandraMessageRepository{session: session}
	if cfg.CreateSchema {
		if err := repo.session.Query(messagesTableCQL).Exec(); err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to create messages table: %w", err)
		}
	}
	return repo, nil
}

// Create inserts a message. Cassandra timestamps hold milliseconds, so
// CreatedAt is truncated to that precision.
func (r *CassandraMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	msg.CreatedAt = msg.CreatedAt.UTC().Truncate(time.Millisecond)

	query := `
		INSERT INTO messages_by_conversation (
			conversation_id, created_at, message_id, sender_id, body
		) VALUES (?, ?, ?, ?, ?)`

	err := r.session.Query(query,
		msg.ConversationID,
		msg.CreatedAt,
		msg.ID,
		msg.SenderID,
		msg.Body,
	).WithContext(ctx).Exec()
	if err != nil {
		return storageErr(err)
	}
	return nil
}

func (r *CassandraMessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	query := `SELECT message_id, sender_id, body, created_at
			  FROM messages_by_conversation
			  WHERE conversation_id = ?
			  ORDER BY created_at ASC, message_id ASC`

	iter := r.session.Query(query, conversationID).WithContext(ctx).Iter()

	messages := make([]domain.Message, 0)
	var (
		messageID, senderID, body string
		createdAt                 time.Time
	)
	for iter.Scan(&messageID, &senderID, &body, &createdAt) {
		messages = append(messages, domain.Message{
			ID:             messageID,
			ConversationID: conversationID,
			SenderID:       senderID,
			Body:           body,
			CreatedAt:      createdAt.UTC(),
		})
	}

	if err := iter.Close(); err != nil {
		return nil, storageErr(err)
	}
	return messages, nil
}

func (r *CassandraMessageRepository) Close() {
	if r.session != nil {
		r.session.Close()
	}
}

// parseConsistency converts a string consistency level to gocql.Consistency.
func parseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "ONE":
		return gocql.One
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "LOCAL_ONE":
		return gocql.LocalOne
	default:
		return gocql.LocalQuorum
	}
}
