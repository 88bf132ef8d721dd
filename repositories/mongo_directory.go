package repositories

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"
	"github.com/chukwumela909/taskhub-server/geo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/trace"
)

type taskerDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Name       string             `bson:"name"`
	Email      string             `bson:"email"`
	Categories []string           `bson:"categories"`
	Location   *geo.Point         `bson:"location,omitempty"`
	IsActive   bool               `bson:"isActive"`
}

func (d *taskerDocument) toDomain() *domain.TaskerProfile {
	return &domain.TaskerProfile{
		ID:         d.ID.Hex(),
		Name:       d.Name,
		Email:      d.Email,
		Categories: d.Categories,
		Location:   d.Location,
		Active:     d.IsActive,
	}
}

type MongoTaskerRepo struct {
	collection *mongo.Collection
	logger     *log.Logger
	tracer     trace.Tracer
	timeout    time.Duration
}

func (r *MongoTaskerRepo) Profile(ctx context.Context, taskerID string) (_ *domain.TaskerProfile, err error) {
	ctx, span := r.tracer.Start(ctx, "TaskerRepo.Profile")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	objID, err := primitive.ObjectIDFromHex(taskerID)
	if err != nil {
		return nil, fmt.Errorf("%w: tasker %s", domain.ErrNotFound(), taskerID)
	}
	var doc taskerDocument
	if err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc); err != nil {
		return nil, translateMongoError(err, "tasker "+taskerID)
	}
	return doc.toDomain(), nil
}

func (r *MongoTaskerRepo) FindByCategories(ctx context.Context, categories []string) (_ []*domain.TaskerProfile, err error) {
	ctx, span := r.tracer.Start(ctx, "TaskerRepo.FindByCategories")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if len(categories) == 0 {
		return nil, nil
	}
	cursor, err := r.collection.Find(ctx, bson.M{
		"categories": bson.M{"$in": categories},
		"isActive":   true,
	}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		r.logger.Println("failed to find taskers by category:", err)
		return nil, translateMongoError(err, "find taskers")
	}
	var docs []*taskerDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, translateMongoError(err, "decode taskers")
	}
	profiles := make([]*domain.TaskerProfile, 0, len(docs))
	for _, doc := range docs {
		profiles = append(profiles, doc.toDomain())
	}
	return profiles, nil
}

type categoryDocument struct {
	ID       string `bson:"_id"`
	Name     string `bson:"name"`
	IsActive bool   `bson:"isActive"`
}

type MongoCategoryRepo struct {
	collection *mongo.Collection
	logger     *log.Logger
	tracer     trace.Tracer
	timeout    time.Duration
}

func (r *MongoCategoryRepo) ActiveCategories(ctx context.Context, ids []string) (_ map[string]struct{}, err error) {
	ctx, span := r.tracer.Start(ctx, "CategoryRepo.ActiveCategories")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	active := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return active, nil
	}
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}, "isActive": true})
	if err != nil {
		return nil, translateMongoError(err, "active categories")
	}
	var docs []categoryDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, translateMongoError(err, "decode categories")
	}
	for _, d := range docs {
		active[d.ID] = struct{}{}
	}
	return active, nil
}

func (r *MongoCategoryRepo) Upsert(ctx context.Context, id, name string, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": id},
		categoryDocument{ID: id, Name: name, IsActive: active},
		options.Replace().SetUpsert(true))
	return translateMongoError(err, "upsert category "+id)
}
