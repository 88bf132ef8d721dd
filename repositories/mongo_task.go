package repositories

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"
	"github.com/chukwumela909/taskhub-server/geo"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/trace"
)

type taskDocument struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty"`
	Owner          string               `bson:"owner"`
	Title          string               `bson:"title"`
	Description    string               `bson:"description"`
	Categories     []string             `bson:"categories"`
	Tags           []string             `bson:"tags,omitempty"`
	Images         []domain.Image       `bson:"images,omitempty"`
	Budget         primitive.Decimal128 `bson:"budget"`
	BiddingEnabled bool                 `bson:"biddingEnabled"`
	Location       *geo.Point           `bson:"location,omitempty"`
	Deadline       *time.Time           `bson:"deadline,omitempty"`
	Status         string               `bson:"status"`
	AssignedTasker string               `bson:"assignedTasker,omitempty"`
	Revision       int64                `bson:"revision"`
	CreatedAt      time.Time            `bson:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt"`
}

func newTaskDocument(t *domain.Task) (*taskDocument, error) {
	id, err := primitive.ObjectIDFromHex(t.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed task id %q", domain.ErrInvalidArgument(), t.ID)
	}
	budget, err := toDecimal128(t.Budget)
	if err != nil {
		return nil, err
	}
	return &taskDocument{
		ID:             id,
		Owner:          t.OwnerID,
		Title:          t.Title,
		Description:    t.Description,
		Categories:     t.Categories,
		Tags:           t.Tags,
		Images:         t.Images,
		Budget:         budget,
		BiddingEnabled: t.BiddingEnabled,
		Location:       t.Location,
		Deadline:       t.Deadline,
		Status:         string(t.Status),
		AssignedTasker: t.AssignedTasker,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}, nil
}

func (d *taskDocument) toDomain() (*domain.Task, error) {
	budget, err := fromDecimal128(d.Budget)
	if err != nil {
		return nil, err
	}
	return &domain.Task{
		ID:             d.ID.Hex(),
		OwnerID:        d.Owner,
		Title:          d.Title,
		Description:    d.Description,
		Categories:     d.Categories,
		Tags:           d.Tags,
		Images:         d.Images,
		Budget:         budget,
		BiddingEnabled: d.BiddingEnabled,
		Location:       d.Location,
		Deadline:       d.Deadline,
		Status:         domain.TaskStatus(d.Status),
		AssignedTasker: d.AssignedTasker,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("%w: amount %s out of range", domain.ErrInvalidArgument(), d)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("stored amount %s is not a number: %w", v, err)
	}
	return d, nil
}

type MongoTaskRepo struct {
	collection *mongo.Collection
	logger     *log.Logger
	tracer     trace.Tracer
	timeout    time.Duration
}

func (r *MongoTaskRepo) Insert(ctx context.Context, task *domain.Task) (err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.Insert")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if task.ID == "" {
		task.ID = primitive.NewObjectID().Hex()
	}
	doc, err := newTaskDocument(task)
	if err != nil {
		return err
	}
	if _, err = r.collection.InsertOne(ctx, doc); err != nil {
		r.logger.Println("failed to insert task:", err)
		return translateMongoError(err, "insert task")
	}
	r.logger.Println("task inserted:", task.ID)
	return nil
}

func (r *MongoTaskRepo) FindByID(ctx context.Context, id string) (_ *domain.Task, err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.FindByID")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound(), id)
	}
	var doc taskDocument
	if err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc); err != nil {
		return nil, translateMongoError(err, "task "+id)
	}
	return doc.toDomain()
}

func (r *MongoTaskRepo) Find(ctx context.Context, filter domain.TaskFilter, page domain.Page) (_ domain.Tasks, _ int64, err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.Find")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, err := taskFilterDocument(filter)
	if err != nil {
		return nil, 0, err
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		r.logger.Println("failed to count tasks:", err)
		return nil, 0, translateMongoError(err, "count tasks")
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if page.Offset > 0 {
		opts.SetSkip(int64(page.Offset))
	}
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		r.logger.Println("failed to find tasks:", err)
		return nil, 0, translateMongoError(err, "find tasks")
	}
	var docs []*taskDocument
	if err = cursor.All(ctx, &docs); err != nil {
		r.logger.Println(err)
		return nil, 0, translateMongoError(err, "decode tasks")
	}

	tasks := make(domain.Tasks, 0, len(docs))
	for _, doc := range docs {
		t, err := doc.toDomain()
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, nil
}

func taskFilterDocument(f domain.TaskFilter) (bson.M, error) {
	query := bson.M{}
	if f.Status != nil {
		query["status"] = string(*f.Status)
	}
	if f.OwnerID != "" {
		query["owner"] = f.OwnerID
	}
	if len(f.AnyCategory) > 0 {
		query["categories"] = bson.M{"$in": f.AnyCategory}
	}
	if f.BiddingEnabled != nil {
		query["biddingEnabled"] = *f.BiddingEnabled
	}
	if f.BudgetMin != nil || f.BudgetMax != nil {
		budget := bson.M{}
		if f.BudgetMin != nil {
			v, err := toDecimal128(*f.BudgetMin)
			if err != nil {
				return nil, err
			}
			budget["$gte"] = v
		}
		if f.BudgetMax != nil {
			v, err := toDecimal128(*f.BudgetMax)
			if err != nil {
				return nil, err
			}
			budget["$lte"] = v
		}
		query["budget"] = budget
	}
	if f.Box != nil {
		query["location.latitude"] = bson.M{"$gte": f.Box.MinLatitude, "$lte": f.Box.MaxLatitude}
		ranges := f.Box.LongitudeRanges()
		if len(ranges) == 1 {
			query["location.longitude"] = bson.M{"$gte": ranges[0][0], "$lte": ranges[0][1]}
		} else {
			alternatives := bson.A{}
			for _, lr := range ranges {
				alternatives = append(alternatives, bson.M{"location.longitude": bson.M{"$gte": lr[0], "$lte": lr[1]}})
			}
			query["$or"] = alternatives
		}
	}
	return query, nil
}

func (r *MongoTaskRepo) Update(ctx context.Context, task *domain.Task) (err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.Update")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := newTaskDocument(task)
	if err != nil {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound(), task.ID)
	}
	set := bson.M{
		"title":          doc.Title,
		"description":    doc.Description,
		"categories":     doc.Categories,
		"tags":           doc.Tags,
		"images":         doc.Images,
		"budget":         doc.Budget,
		"biddingEnabled": doc.BiddingEnabled,
		"updatedAt":      doc.UpdatedAt,
	}
	update := bson.M{"$set": set}
	unset := bson.M{}
	if doc.Location != nil {
		set["location"] = doc.Location
	} else {
		unset["location"] = ""
	}
	if doc.Deadline != nil {
		set["deadline"] = doc.Deadline
	} else {
		unset["deadline"] = ""
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": doc.ID}, update)
	if err != nil {
		r.logger.Println("failed to update task:", err)
		return translateMongoError(err, "task "+task.ID)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound(), task.ID)
	}
	return nil
}

func (r *MongoTaskRepo) UpdateStatus(ctx context.Context, id string, from, to domain.TaskStatus) (err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.UpdateStatus")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"status": string(to), "updatedAt": time.Now().UTC()}}
	if !to.HasAssignee() {
		update["$unset"] = bson.M{"assignedTasker": ""}
	}
	return r.conditionalUpdate(ctx, id, from, update)
}

func (r *MongoTaskRepo) Assign(ctx context.Context, id, taskerID string) (err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.Assign")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.conditionalUpdate(ctx, id, domain.TaskOpen, bson.M{"$set": bson.M{
		"status":         string(domain.TaskAssigned),
		"assignedTasker": taskerID,
		"updatedAt":      time.Now().UTC(),
	}})
}

func (r *MongoTaskRepo) ClaimOpen(ctx context.Context, id string) (err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.ClaimOpen")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// the write makes a concurrent transaction on this task fail with a
	// write conflict instead of reading a stale status
	return r.conditionalUpdate(ctx, id, domain.TaskOpen, bson.M{"$inc": bson.M{"revision": 1}})
}

func (r *MongoTaskRepo) Delete(ctx context.Context, id string, expected domain.TaskStatus) (err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.Delete")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound(), id)
	}
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID, "status": string(expected)})
	if err != nil {
		r.logger.Println("failed to delete task:", err)
		return translateMongoError(err, "task "+id)
	}
	if result.DeletedCount > 0 {
		return nil
	}
	return r.missOrStale(ctx, objID, expected)
}

func (r *MongoTaskRepo) conditionalUpdate(ctx context.Context, id string, expected domain.TaskStatus, update bson.M) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound(), id)
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID, "status": string(expected)}, update)
	if err != nil {
		r.logger.Println("failed to update task status:", err)
		return translateMongoError(err, "task "+id)
	}
	if result.MatchedCount > 0 {
		return nil
	}
	return r.missOrStale(ctx, objID, expected)
}

func (r *MongoTaskRepo) missOrStale(ctx context.Context, objID primitive.ObjectID, expected domain.TaskStatus) error {
	id := objID.Hex()
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": objID})
	if err != nil {
		return translateMongoError(err, "task "+id)
	}
	if count == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound(), id)
	}
	return fmt.Errorf("%w: %w: task %s is no longer %s", domain.ErrConflict(), domain.ErrStaleWrite(), id, expected)
}
