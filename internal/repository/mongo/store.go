package mongo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

const collectionName = "onboarding_sessions"

// SessionRepository stores one document per session
type SessionRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect opens a client for uri and selects database
func Connect(ctx context.Context, uri, database string) (*SessionRepository, error) {
	clientOpts := options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	repo := &SessionRepository{
		client: client,
		coll:   client.Database(database).Collection(collectionName),
	}

	_, err = repo.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetName("idx_user"),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return repo, nil
}

// Close disconnects the client
func (r *SessionRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

type sessionDocument struct {
	ID                  string                  `bson:"_id"`
	UserID              string                  `bson:"user_id"`
	CurrentStage        int                     `bson:"current_stage"`
	Status              string                  `bson:"status"`
	Version             int64                   `bson:"version"`
	ExtractedData       map[string]domain.Value `bson:"extracted_data"`
	ConversationHistory []turnDocument          `bson:"conversation_history"`
	StageSummaries      map[string]string       `bson:"stage_summaries"`
	StageTopics         []string                `bson:"stage_topics"`
	StageTurnCount      int                     `bson:"stage_turn_count"`
	StageProgress       int                     `bson:"stage_progress"`
	OverallProgress     int                     `bson:"overall_progress"`
	ArtifactStatus      string                  `bson:"artifact_status"`
	LastActivity        time.Time               `bson:"last_activity"`
	ExpiresAt           time.Time               `bson:"expires_at"`
	CreatedAt           time.Time               `bson:"created_at"`
	UpdatedAt           time.Time               `bson:"updated_at"`
	CompletedAt         *time.Time              `bson:"completed_at,omitempty"`
}

type turnDocument struct {
	MessageID        string              `bson:"message_id"`
	UserMessage      string              `bson:"user_message"`
	AssistantMessage string              `bson:"assistant_message"`
	Stage            int                 `bson:"stage"`
	Timestamp        time.Time           `bson:"timestamp"`
	Result           domain.CommitResult `bson:"result"`
}

func toDocument(s *domain.Session) sessionDocument {
	doc := sessionDocument{
		ID:              s.ID,
		UserID:          s.UserID,
		CurrentStage:    s.CurrentStage,
		Status:          string(s.Status),
		Version:         s.Version,
		ExtractedData:   map[string]domain.Value(s.ExtractedData),
		StageSummaries:  make(map[string]string, len(s.StageSummaries)),
		StageTopics:     s.StageTopics,
		StageTurnCount:  s.StageTurnCount,
		StageProgress:   s.StageProgress,
		OverallProgress: s.OverallProgress,
		ArtifactStatus:  string(s.ArtifactStatus),
		LastActivity:    s.LastActivity,
		ExpiresAt:       s.ExpiresAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		CompletedAt:     s.CompletedAt,
	}
	if doc.ExtractedData == nil {
		doc.ExtractedData = map[string]domain.Value{}
	}
	if doc.StageTopics == nil {
		doc.StageTopics = []string{}
	}
	for stage, summary := range s.StageSummaries {
		doc.StageSummaries[strconv.Itoa(stage)] = summary
	}
	doc.ConversationHistory = make([]turnDocument, 0, len(s.ConversationHistory))
	for _, t := range s.ConversationHistory {
		doc.ConversationHistory = append(doc.ConversationHistory, turnDocument(t))
	}
	return doc
}

func (d sessionDocument) toSession() *domain.Session {
	s := &domain.Session{
		ID:              d.ID,
		UserID:          d.UserID,
		CurrentStage:    d.CurrentStage,
		Status:          domain.SessionStatus(d.Status),
		Version:         d.Version,
		ExtractedData:   domain.ExtractedData(d.ExtractedData),
		StageSummaries:  make(map[int]string, len(d.StageSummaries)),
		StageTopics:     d.StageTopics,
		StageTurnCount:  d.StageTurnCount,
		StageProgress:   d.StageProgress,
		OverallProgress: d.OverallProgress,
		ArtifactStatus:  domain.ArtifactStatus(d.ArtifactStatus),
		LastActivity:    d.LastActivity.UTC(),
		ExpiresAt:       d.ExpiresAt.UTC(),
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	if s.ExtractedData == nil {
		s.ExtractedData = domain.ExtractedData{}
	}
	if s.StageTopics == nil {
		s.StageTopics = []string{}
	}
	if d.CompletedAt != nil {
		t := d.CompletedAt.UTC()
		s.CompletedAt = &t
	}
	for key, summary := range d.StageSummaries {
		if stage, err := strconv.Atoi(key); err == nil {
			s.StageSummaries[stage] = summary
		}
	}
	for _, t := range d.ConversationHistory {
		s.ConversationHistory = append(s.ConversationHistory, domain.Turn(t))
	}
	return s
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	if _, err := r.coll.InsertOne(ctx, toDocument(s)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", domain.ErrSessionExists, s.ID)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	var doc sessionDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return doc.toSession(), nil
}

// Save replaces the document only while version, status and artifact status still match
func (r *SessionRepository) Save(ctx context.Context, s *domain.Session, expect domain.Expectation) error {
	filter := bson.M{
		"_id":             s.ID,
		"version":         expect.Version,
		"status":          string(expect.Status),
		"artifact_status": string(expect.ArtifactStatus),
	}
	res, err := r.coll.ReplaceOne(ctx, filter, toDocument(s))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": s.ID})
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: session %s changed since version %d", domain.ErrVersionConflict, s.ID, expect.Version)
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}
