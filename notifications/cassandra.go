package notifications

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"github.com/gocql/gocql"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var keyspaceName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

// CassandraSink stores notifications in a per-user inbox table, newest first.
type CassandraSink struct {
	session *gocql.Session
	logger  *log.Logger
	tracer  trace.Tracer
}

func NewCassandraSink(hosts []string, keyspace string, timeout time.Duration, logger *log.Logger, tracer trace.Tracer) (*CassandraSink, error) {
	if !keyspaceName.MatchString(keyspace) {
		return nil, fmt.Errorf("invalid cassandra keyspace %q", keyspace)
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = "system"
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = timeout
	cluster.ConnectTimeout = timeout

	logger.Println("Attempting to connect to Cassandra...")
	session, err := cluster.CreateSession()
	if err != nil {
		logger.Printf("Failed to connect to Cassandra: %v\n", err)
		return nil, err
	}
	err = ensureKeyspaceExists(session, keyspace)
	session.Close()
	if err != nil {
		logger.Printf("Failed to ensure keyspace exists: %v\n", err)
		return nil, err
	}

	cluster.Keyspace = keyspace
	session, err = cluster.CreateSession()
	if err != nil {
		logger.Printf("Failed to connect to %s keyspace: %v\n", keyspace, err)
		return nil, err
	}
	if err := ensureTableExists(session, logger); err != nil {
		session.Close()
		return nil, err
	}

	logger.Printf("Connected to Cassandra with keyspace %s\n", keyspace)
	return &CassandraSink{session: session, logger: logger, tracer: tracer}, nil
}

func ensureKeyspaceExists(session *gocql.Session, keyspace string) error {
	query := fmt.Sprintf(`
	CREATE KEYSPACE IF NOT EXISTS %s
	WITH replication = {
		'class': 'SimpleStrategy',
		'replication_factor': 1
	};`, keyspace)
	return session.Query(query).Exec()
}

func ensureTableExists(session *gocql.Session, logger *log.Logger) error {
	query := `
	CREATE TABLE IF NOT EXISTS notifications (
		id UUID,
		user_id TEXT,
		task_id TEXT,
		message TEXT,
		created_at TIMESTAMP,
		is_read BOOLEAN,
		PRIMARY KEY (user_id, created_at, id)
	) WITH CLUSTERING ORDER BY (created_at DESC, id ASC);`

	logger.Println("Ensuring notifications table exists...")
	if err := session.Query(query).Exec(); err != nil {
		logger.Printf("Failed to ensure table exists: %v\n", err)
		return err
	}
	return nil
}

func (s *CassandraSink) Deliver(ctx context.Context, n *Notification) error {
	ctx, span := s.tracer.Start(ctx, "CassandraSink.Deliver")
	defer span.End()

	err := s.session.Query(
		"INSERT INTO notifications (id, user_id, task_id, message, created_at, is_read) VALUES (?, ?, ?, ?, ?, ?)",
		gocql.TimeUUID(), n.UserID, n.TaskID, n.Message, n.CreatedAt, n.IsRead,
	).WithContext(ctx).Exec()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

// ForUser returns the user's inbox, newest first.
func (s *CassandraSink) ForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	ctx, span := s.tracer.Start(ctx, "CassandraSink.ForUser")
	defer span.End()

	iter := s.session.Query(
		"SELECT id, user_id, task_id, message, created_at, is_read FROM notifications WHERE user_id = ? LIMIT ?",
		userID, limit,
	).WithContext(ctx).Iter()

	var (
		out []Notification
		n   Notification
		id  gocql.UUID
	)
	for iter.Scan(&id, &n.UserID, &n.TaskID, &n.Message, &n.CreatedAt, &n.IsRead) {
		n.ID = id.String()
		out = append(out, n)
	}
	if err := iter.Close(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: failed to read notifications: %v", domain.ErrUnavailable(), err)
	}
	return out, nil
}

func (s *CassandraSink) Close() {
	s.session.Close()
}
