package mongo

import (
	"context"
	"errors"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const SessionDumpCollection = "interview_sessions"

type SessionDumpRepository interface {
	Save(ctx context.Context, d *models.SessionDump) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.SessionDump, error)
	ListByOwner(ctx context.Context, ownerID string, limit int64) ([]models.SessionDump, error)
}

type sessionDumpRepo struct {
	col *mongo.Collection
}

func NewSessionDumpRepo(db *mongo.Database) SessionDumpRepository {
	return &sessionDumpRepo{col: db.Collection(SessionDumpCollection)}
}

// Save replaces the dump of the same session, if any.
func (r *sessionDumpRepo) Save(ctx context.Context, d *models.SessionDump) error {
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"session_id": d.SessionID},
		d,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *sessionDumpRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.SessionDump, error) {
	var d models.SessionDump
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &d, err
}

func (r *sessionDumpRepo) ListByOwner(ctx context.Context, ownerID string, limit int64) ([]models.SessionDump, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "finished_at", Value: -1}}).
		SetLimit(limit).
		SetProjection(bson.M{"turns": 0})
	cur, err := r.col.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.SessionDump
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
