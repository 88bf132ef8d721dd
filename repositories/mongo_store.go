package repositories

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel/trace"
)

const (
	tasksCollection      = "tasks"
	bidsCollection       = "bids"
	taskersCollection    = "taskers"
	categoriesCollection = "categories"
)

// MongoStore keeps tasks and bids in MongoDB. Transactions need a replica
// set or a sharded cluster.
type MongoStore struct {
	cli       *mongo.Client
	db        *mongo.Database
	logger    *log.Logger
	tracer    trace.Tracer
	opTimeout time.Duration
	txTimeout time.Duration
}

func NewMongoStore(ctx context.Context, uri, database string, logger *log.Logger, tracer trace.Tracer, opTimeout, txTimeout time.Duration) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is not set")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Println("connected to MongoDB")

	return &MongoStore{
		cli:       client,
		db:        client.Database(database),
		logger:    logger,
		tracer:    tracer,
		opTimeout: opTimeout,
		txTimeout: txTimeout,
	}, nil
}

// EnsureIndexes creates the indexes the repositories rely on, including the
// unique (task, tasker) index that rejects duplicate bids.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		bidsCollection: {
			{
				Keys:    bson.D{{Key: "task", Value: 1}, {Key: "tasker", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("task_tasker_unique"),
			},
			{Keys: bson.D{{Key: "tasker", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "task", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		tasksCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "categories", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "location.latitude", Value: 1}, {Key: "location.longitude", Value: 1}}},
		},
		taskersCollection: {
			{Keys: bson.D{{Key: "categories", Value: 1}, {Key: "isActive", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
		s.logger.Printf("indexes ensured on %s\n", name)
	}
	return nil
}

func (s *MongoStore) Tasks() domain.TaskRepository {
	return &MongoTaskRepo{collection: s.db.Collection(tasksCollection), logger: s.logger, tracer: s.tracer, timeout: s.opTimeout}
}

func (s *MongoStore) Bids() domain.BidRepository {
	return &MongoBidRepo{collection: s.db.Collection(bidsCollection), logger: s.logger, tracer: s.tracer, timeout: s.opTimeout}
}

func (s *MongoStore) Taskers() *MongoTaskerRepo {
	return &MongoTaskerRepo{collection: s.db.Collection(taskersCollection), logger: s.logger, tracer: s.tracer, timeout: s.opTimeout}
}

func (s *MongoStore) Categories() *MongoCategoryRepo {
	return &MongoCategoryRepo{collection: s.db.Collection(categoriesCollection), logger: s.logger, tracer: s.tracer, timeout: s.opTimeout}
}

// WithTransaction runs fn inside a multi-document transaction. The
// repositories join the transaction through the session context handed to
// fn. The driver retries fn on transient errors until txTimeout elapses.
func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) (err error) {
	ctx, span := s.tracer.Start(ctx, "MongoStore.WithTransaction")
	defer func() { markSpan(span, err); span.End() }()

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	sess, err := s.cli.StartSession()
	if err != nil {
		return translateMongoError(err, "start session")
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s)
	})
	if err != nil {
		s.logger.Println("transaction aborted:", err)
		if ctx.Err() != nil {
			return fmt.Errorf("%w: transaction aborted: %v", domain.ErrUnavailable(), err)
		}
		return translateMongoError(err, "transaction")
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.cli.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	s.logger.Println("MongoDB connection closed")
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.cli.Ping(ctx, readpref.Primary())
}
