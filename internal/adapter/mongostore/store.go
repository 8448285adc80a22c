package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Strob0t/collectibles/internal/domain"
	"github.com/Strob0t/collectibles/internal/domain/item"
)

type itemDoc struct {
	ID          int64     `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	Price       float64   `bson:"price"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d *itemDoc) toItem() item.Item {
	return item.Item{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// Store implements database.ItemStore on a MongoDB database. Item IDs come
// from a counter document so they stay numeric and increasing.
type Store struct {
	db       *mongo.Database
	items    *mongo.Collection
	counters *mongo.Collection
}

// NewStore creates a Store backed by db.
func NewStore(db *mongo.Database) *Store {
	return &Store{
		db:       db,
		items:    db.Collection(itemsCollection),
		counters: db.Collection(countersCollection),
	}
}

func (s *Store) ListItems(ctx context.Context) ([]item.Item, error) {
	cur, err := s.items.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	var docs []itemDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	items := make([]item.Item, 0, len(docs))
	for i := range docs {
		items = append(items, docs[i].toItem())
	}
	return items, nil
}

func (s *Store) GetItem(ctx context.Context, id int64) (*item.Item, error) {
	var doc itemDoc
	err := s.items.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if isNoDocuments(err) {
		return nil, fmt.Errorf("get item %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	it := doc.toItem()
	return &it, nil
}

func (s *Store) ItemExists(ctx context.Context, id int64) (bool, error) {
	n, err := s.items.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("item exists %d: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) CreateItem(ctx context.Context, req item.CreateRequest) (*item.Item, error) {
	id, err := s.nextID(ctx)
	if err != nil {
		return nil, err
	}
	ts := now()
	doc := itemDoc{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if _, err := s.items.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("create item %d: %w", id, domain.ErrConflict)
		}
		return nil, fmt.Errorf("create item: %w", err)
	}
	it := doc.toItem()
	return &it, nil
}

func (s *Store) UpdateItem(ctx context.Context, id int64, req item.UpdateRequest) (*item.Item, error) {
	set := bson.D{{Key: "updated_at", Value: now()}}
	if req.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *req.Name})
	}
	if req.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *req.Description})
	}
	if req.Price != nil {
		set = append(set, bson.E{Key: "price", Value: *req.Price})
	}

	var doc itemDoc
	err := s.items.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if isNoDocuments(err) {
		return nil, fmt.Errorf("update item %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	it := doc.toItem()
	return &it, nil
}

func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	res, err := s.items.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete item %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func (s *Store) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: itemsCounterID}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate item id: %w", err)
	}
	return counter.Seq, nil
}
