package materials

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/vivavoce/defense-backend/internal/domain"
	"github.com/vivavoce/defense-backend/internal/pkg/dbctx"
	pkgerrors "github.com/vivavoce/defense-backend/internal/pkg/errors"
	"github.com/vivavoce/defense-backend/internal/pkg/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.Document) (*types.Document, error)
	GetByID(dbc dbctx.Context, id, ownerUserID uuid.UUID) (*types.Document, error)
	MarkCompleted(dbc dbctx.Context, id uuid.UUID) error
	// MarkFailed records a human-readable preparation error on the row so a
	// stuck session stays explainable to the caller.
	MarkFailed(dbc dbctx.Context, id uuid.UUID, message string) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.Document) (*types.Document, error) {
	if doc == nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id, ownerUserID uuid.UUID) (*types.Document, error) {
	if id == uuid.Nil || ownerUserID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	var out types.Document
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *documentRepo) MarkCompleted(dbc dbctx.Context, id uuid.UUID) error {
	return r.setStatus(dbc, id, types.DocumentStatusCompleted, "")
}

func (r *documentRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, message string) error {
	return r.setStatus(dbc, id, types.DocumentStatusFailed, message)
}

func (r *documentRepo) setStatus(dbc dbctx.Context, id uuid.UUID, status, message string) error {
	if id == uuid.Nil {
		return pkgerrors.ErrInvalidArgument
	}
	res := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": message,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}
