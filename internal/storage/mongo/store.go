package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/model/scenario"
)

// ErrVersionConflict means another writer replaced the document between read and write.
var ErrVersionConflict = fmt.Errorf("%w: concurrent modification", scenario.ErrStoreUnavailable)

// Config describes where sessions are persisted.
type Config struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements scenario.Store on a MongoDB collection, one document per session.
type Store struct {
	client     *driver.Client
	collection *driver.Collection
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// Connect dials MongoDB and verifies the deployment is reachable.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := driver.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("mongo connected",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))

	return NewStore(client, client.Database(cfg.Database).Collection(cfg.Collection), timeout, logger), nil
}

// NewStore wraps an existing collection handle.
func NewStore(client *driver.Client, collection *driver.Collection, timeout time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:     client,
		collection: collection,
		timeout:    timeout,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Create inserts a new session document.
func (s *Store) Create(ctx context.Context, session *scenario.Session) (string, error) {
	record := prepareInsert(session, s.now())

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, record); err != nil {
		return "", unavailable("insert session", err)
	}
	return record.ID, nil
}

// Get loads a session document by id.
func (s *Store) Get(ctx context.Context, id string) (*scenario.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var record scenario.Session
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if errors.Is(err, driver.ErrNoDocuments) {
		return nil, scenario.ErrSessionNotFound
	}
	if err != nil {
		return nil, unavailable("find session", err)
	}
	return &record, nil
}

// Update reads the document, applies mutate and replaces it only if the version is unchanged.
func (s *Store) Update(ctx context.Context, id string, mutate scenario.Mutation) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	draft := current.Clone()
	if err := mutate(draft); err != nil {
		return err
	}
	next := prepareReplace(current, draft, s.now())

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.collection.ReplaceOne(ctx, versionFilter(current), next)
	if err != nil {
		return unavailable("replace session", err)
	}
	if result.MatchedCount == 0 {
		s.logger.Warn("session version conflict",
			zap.String("session", id),
			zap.Int64("version", current.Version))
		return ErrVersionConflict
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func prepareInsert(session *scenario.Session, now time.Time) *scenario.Session {
	record := session.Clone()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.ChatLog == nil {
		record.ChatLog = []scenario.Message{}
	}
	record.Version = 1
	record.CreatedAt = now
	record.UpdatedAt = now
	return record
}

func prepareReplace(current, draft *scenario.Session, now time.Time) *scenario.Session {
	next := draft.Clone()
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1
	next.UpdatedAt = now
	if next.ChatLog == nil {
		next.ChatLog = []scenario.Message{}
	}
	return next
}

func versionFilter(current *scenario.Session) bson.M {
	return bson.M{"_id": current.ID, "version": current.Version}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", scenario.ErrStoreUnavailable, op, err)
}
