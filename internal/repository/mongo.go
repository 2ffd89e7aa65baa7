package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"echopulse/internal/agent"
	"echopulse/internal/zones"
	"echopulse/pkg/logging"
)

const mongoSubsystem = "Mongo"

// agentDocument is the stored shape of an agent. thought_log is kept as the
// JSON text it arrived as so that its structure is never interpreted.
type agentDocument struct {
	ID         string    `bson:"_id"`
	Name       string    `bson:"name"`
	Status     string    `bson:"status"`
	Mood       string    `bson:"mood"`
	Zone       string    `bson:"zone"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
	IsActive   bool      `bson:"is_active"`
	ThoughtLog string    `bson:"thought_log"`
}

func (d agentDocument) toAgent() (agent.Agent, error) {
	a := agent.Agent{
		ID:        d.ID,
		Name:      d.Name,
		Status:    d.Status,
		Mood:      zones.Mood(d.Mood),
		Zone:      zones.Zone(d.Zone),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
		IsActive:  d.IsActive,
	}
	if d.ThoughtLog != "" {
		if err := json.Unmarshal([]byte(d.ThoughtLog), &a.ThoughtLog); err != nil {
			return agent.Agent{}, fmt.Errorf("decode thought_log of %s: %w", d.ID, err)
		}
	}
	return a, nil
}

// upsertUpdate builds the update document for an upsert. created_at and
// thought_log are only written when the document is inserted.
func upsertUpdate(a agent.Agent) (bson.M, error) {
	thoughts, err := json.Marshal(a.ThoughtLog)
	if err != nil {
		return nil, fmt.Errorf("encode thought_log: %w", err)
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = a.UpdatedAt
	}
	return bson.M{
		"$set": bson.M{
			"name":       a.Name,
			"status":     a.Status,
			"mood":       string(a.Mood),
			"zone":       string(a.Zone),
			"updated_at": a.UpdatedAt.UTC(),
			"is_active":  a.IsActive,
		},
		"$setOnInsert": bson.M{
			"created_at":  createdAt.UTC(),
			"thought_log": string(thoughts),
		},
	}, nil
}

// Mongo stores agents in a MongoDB collection. It does not implement
// agent.Transactor; cycles rely on the scheduler's single-flight guard.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoOptions configures ConnectMongo.
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// ConnectMongo connects, pings and ensures indexes.
func ConnectMongo(ctx context.Context, opts MongoOptions) (*Mongo, error) {
	if opts.URI == "" {
		return nil, fmt.Errorf("connect mongo: URI is empty")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Database == "" {
		opts.Database = "echopulse"
	}
	if opts.Collection == "" {
		opts.Collection = "agents"
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	m := &Mongo{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
	}
	if err := m.ensureIndexes(connectCtx); err != nil {
		logging.Warn(mongoSubsystem, "Failed to create indexes: %v", err)
	}

	logging.Info(mongoSubsystem, "Connected to MongoDB database %s", opts.Database)
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "is_active", Value: 1},
			{Key: "updated_at", Value: -1},
		},
	})
	return err
}

// byID matches one agent document.
func byID(id string) bson.M {
	return bson.M{"_id": id}
}

// listQuery returns the filter and sort for List.
func listQuery(activeOnly bool) (bson.M, bson.D) {
	filter := bson.M{}
	if activeOnly {
		filter["is_active"] = true
	}
	return filter, bson.D{{Key: "_id", Value: 1}}
}

// gardenQuery returns the filter and sort for ListInactive: newest
// retirement first, ties broken by id.
func gardenQuery() (bson.M, bson.D) {
	return bson.M{"is_active": false}, bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}
}

// deactivateUpdate flips is_active without touching the observed fields.
func deactivateUpdate(at time.Time) bson.M {
	return bson.M{"$set": bson.M{"is_active": false, "updated_at": at.UTC()}}
}

func (m *Mongo) Upsert(ctx context.Context, a agent.Agent) error {
	update, err := upsertUpdate(a)
	if err != nil {
		return agent.NewRepositoryError("upsert", err)
	}
	_, err = m.collection.UpdateOne(ctx, byID(a.ID), update, options.Update().SetUpsert(true))
	return agent.NewRepositoryError("upsert", err)
}

func (m *Mongo) List(ctx context.Context, activeOnly bool) ([]agent.Agent, error) {
	filter, sort := listQuery(activeOnly)
	agents, err := m.find(ctx, filter, options.Find().SetSort(sort))
	return agents, agent.NewRepositoryError("list", err)
}

func (m *Mongo) ListInactive(ctx context.Context) ([]agent.Agent, error) {
	filter, sort := gardenQuery()
	agents, err := m.find(ctx, filter, options.Find().SetSort(sort))
	return agents, agent.NewRepositoryError("list inactive", err)
}

// Deactivate is a no-op for unknown ids: without upsert, UpdateOne
// matching nothing is not an error.
func (m *Mongo) Deactivate(ctx context.Context, id string, at time.Time) error {
	_, err := m.collection.UpdateOne(ctx, byID(id), deactivateUpdate(at))
	return agent.NewRepositoryError("deactivate", err)
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *Mongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]agent.Agent, error) {
	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []agentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	agents := make([]agent.Agent, 0, len(docs))
	for _, d := range docs {
		a, err := d.toAgent()
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}
