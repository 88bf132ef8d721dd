package repositories

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/trace"
)

type bidDocument struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	Task      string               `bson:"task"`
	Tasker    string               `bson:"tasker"`
	Amount    primitive.Decimal128 `bson:"amount"`
	Type      string               `bson:"type"`
	Message   string               `bson:"message,omitempty"`
	Status    string               `bson:"status"`
	CreatedAt time.Time            `bson:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt"`
}

func (d *bidDocument) toDomain() (*domain.Bid, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return nil, err
	}
	return &domain.Bid{
		ID:        d.ID.Hex(),
		TaskID:    d.Task,
		TaskerID:  d.Tasker,
		Amount:    amount,
		Type:      domain.BidType(d.Type),
		Message:   d.Message,
		Status:    domain.BidStatus(d.Status),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

type MongoBidRepo struct {
	collection *mongo.Collection
	logger     *log.Logger
	tracer     trace.Tracer
	timeout    time.Duration
}

func (r *MongoBidRepo) Insert(ctx context.Context, bid *domain.Bid) (err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.Insert")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	amount, err := toDecimal128(bid.Amount)
	if err != nil {
		return err
	}
	objID := primitive.NewObjectID()
	if bid.ID != "" {
		if objID, err = primitive.ObjectIDFromHex(bid.ID); err != nil {
			return fmt.Errorf("%w: malformed bid id %q", domain.ErrInvalidArgument(), bid.ID)
		}
	}
	doc := &bidDocument{
		ID:        objID,
		Task:      bid.TaskID,
		Tasker:    bid.TaskerID,
		Amount:    amount,
		Type:      string(bid.Type),
		Message:   bid.Message,
		Status:    string(bid.Status),
		CreatedAt: bid.CreatedAt,
		UpdatedAt: bid.UpdatedAt,
	}
	if _, err = r.collection.InsertOne(ctx, doc); err != nil {
		r.logger.Println("failed to insert bid:", err)
		return translateMongoError(err, "bid on task "+bid.TaskID+" by "+bid.TaskerID)
	}
	bid.ID = objID.Hex()
	return nil
}

func (r *MongoBidRepo) FindByID(ctx context.Context, id string) (_ *domain.Bid, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.FindByID")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: bid %s", domain.ErrNotFound(), id)
	}
	var doc bidDocument
	if err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc); err != nil {
		return nil, translateMongoError(err, "bid "+id)
	}
	return doc.toDomain()
}

func (r *MongoBidRepo) ListByTask(ctx context.Context, taskID string) (_ domain.Bids, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.ListByTask")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.find(ctx, bson.M{"task": taskID}, newestFirst())
}

func (r *MongoBidRepo) ListByTasker(ctx context.Context, filter domain.BidFilter, page domain.Page) (_ domain.Bids, _ int64, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.ListByTasker")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := bson.M{"tasker": filter.TaskerID}
	if filter.Status != nil {
		query["status"] = string(*filter.Status)
	}
	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, translateMongoError(err, "count bids")
	}
	opts := newestFirst()
	if page.Offset > 0 {
		opts.SetSkip(int64(page.Offset))
	}
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}
	bids, err := r.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return bids, total, nil
}

func (r *MongoBidRepo) FindByTaskerForTasks(ctx context.Context, taskerID string, taskIDs []string) (_ map[string]*domain.Bid, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.FindByTaskerForTasks")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	byTask := make(map[string]*domain.Bid)
	query := bson.M{"tasker": taskerID}
	if taskIDs != nil {
		if len(taskIDs) == 0 {
			return byTask, nil
		}
		query["task"] = bson.M{"$in": taskIDs}
	}
	bids, err := r.find(ctx, query, options.Find())
	if err != nil {
		return nil, err
	}
	for _, b := range bids {
		byTask[b.TaskID] = b
	}
	return byTask, nil
}

func (r *MongoBidRepo) CountByTask(ctx context.Context, taskID string) (_ int64, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.CountByTask")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"task": taskID})
	if err != nil {
		return 0, translateMongoError(err, "count bids")
	}
	return count, nil
}

func (r *MongoBidRepo) UpdatePending(ctx context.Context, bid *domain.Bid) (err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.UpdatePending")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	amount, err := toDecimal128(bid.Amount)
	if err != nil {
		return err
	}
	return r.updatePending(ctx, bid.ID, bson.M{"$set": bson.M{
		"amount":    amount,
		"message":   bid.Message,
		"updatedAt": bid.UpdatedAt,
	}})
}

func (r *MongoBidRepo) MarkAccepted(ctx context.Context, id string) (err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.MarkAccepted")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.updatePending(ctx, id, bson.M{"$set": bson.M{
		"status":    string(domain.BidAccepted),
		"updatedAt": time.Now().UTC(),
	}})
}

func (r *MongoBidRepo) DeletePending(ctx context.Context, id string) (err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.DeletePending")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: bid %s", domain.ErrNotFound(), id)
	}
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID, "status": string(domain.BidPending)})
	if err != nil {
		r.logger.Println("failed to delete bid:", err)
		return translateMongoError(err, "bid "+id)
	}
	return r.checkPendingMatch(ctx, objID, result.DeletedCount)
}

func (r *MongoBidRepo) RejectOthers(ctx context.Context, taskID, exceptBidID string) (_ int64, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.RejectOthers")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := bson.M{"task": taskID}
	if objID, err := primitive.ObjectIDFromHex(exceptBidID); err == nil {
		query["_id"] = bson.M{"$ne": objID}
	}
	result, err := r.collection.UpdateMany(ctx, query, bson.M{"$set": bson.M{
		"status":    string(domain.BidRejected),
		"updatedAt": time.Now().UTC(),
	}})
	if err != nil {
		r.logger.Println("failed to reject bids:", err)
		return 0, translateMongoError(err, "reject bids")
	}
	return result.ModifiedCount, nil
}

func (r *MongoBidRepo) DeleteByTask(ctx context.Context, taskID string) (_ int64, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.DeleteByTask")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, bson.M{"task": taskID})
	if err != nil {
		r.logger.Println("failed to delete bids:", err)
		return 0, translateMongoError(err, "bids of task "+taskID)
	}
	return result.DeletedCount, nil
}

func (r *MongoBidRepo) updatePending(ctx context.Context, id string, update bson.M) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: bid %s", domain.ErrNotFound(), id)
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID, "status": string(domain.BidPending)}, update)
	if err != nil {
		r.logger.Println("failed to update bid:", err)
		return translateMongoError(err, "bid "+id)
	}
	return r.checkPendingMatch(ctx, objID, result.MatchedCount)
}

func (r *MongoBidRepo) checkPendingMatch(ctx context.Context, objID primitive.ObjectID, matched int64) error {
	if matched > 0 {
		return nil
	}
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": objID})
	if err != nil {
		return translateMongoError(err, "bid "+objID.Hex())
	}
	if count == 0 {
		return fmt.Errorf("%w: bid %s", domain.ErrNotFound(), objID.Hex())
	}
	return fmt.Errorf("%w: %w: bid %s is no longer pending", domain.ErrConflict(), domain.ErrStaleWrite(), objID.Hex())
}

func (r *MongoBidRepo) find(ctx context.Context, query bson.M, opts *options.FindOptions) (domain.Bids, error) {
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		r.logger.Println("failed to find bids:", err)
		return nil, translateMongoError(err, "find bids")
	}
	var docs []*bidDocument
	if err = cursor.All(ctx, &docs); err != nil {
		r.logger.Println(err)
		return nil, translateMongoError(err, "decode bids")
	}
	bids := make(domain.Bids, 0, len(docs))
	for _, doc := range docs {
		b, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, nil
}

func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
}
