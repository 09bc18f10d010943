package defense

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/vivavoce/defense-backend/internal/domain"
	"github.com/vivavoce/defense-backend/internal/pkg/dbctx"
	pkgerrors "github.com/vivavoce/defense-backend/internal/pkg/errors"
	"github.com/vivavoce/defense-backend/internal/pkg/logger"
)

type DocumentChunkRepo interface {
	CreateBatch(dbc dbctx.Context, chunks []*types.DocumentChunk) error
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]*types.DocumentChunk, error)
	CountBySession(dbc dbctx.Context, sessionID uuid.UUID) (int64, error)
	// DeleteBySession removes every chunk of the session and reports how
	// many rows went away. Zero rows is not an error, teardown is
	// idempotent.
	DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) (int64, error)
}

type documentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
	return &documentChunkRepo{db: db, log: baseLog.With("repo", "DocumentChunkRepo")}
}

func (r *documentChunkRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *documentChunkRepo) CreateBatch(dbc dbctx.Context, chunks []*types.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.handle(dbc).WithContext(dbc.Ctx).CreateInBatches(chunks, 100).Error
}

func (r *documentChunkRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]*types.DocumentChunk, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	q := r.handle(dbc).WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("chunk_index ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*types.DocumentChunk
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentChunkRepo) CountBySession(dbc dbctx.Context, sessionID uuid.UUID) (int64, error) {
	if sessionID == uuid.Nil {
		return 0, pkgerrors.ErrInvalidArgument
	}
	var n int64
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.DocumentChunk{}).
		Where("session_id = ?", sessionID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *documentChunkRepo) DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) (int64, error) {
	if sessionID == uuid.Nil {
		return 0, pkgerrors.ErrInvalidArgument
	}
	res := r.handle(dbc).WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Delete(&types.DocumentChunk{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
