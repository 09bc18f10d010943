package defense

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/vivavoce/defense-backend/internal/domain"
	"github.com/vivavoce/defense-backend/internal/pkg/dbctx"
	pkgerrors "github.com/vivavoce/defense-backend/internal/pkg/errors"
	"github.com/vivavoce/defense-backend/internal/pkg/logger"
)

type DefenseSessionRepo interface {
	Create(dbc dbctx.Context, s *types.DefenseSession) (*types.DefenseSession, error)
	GetByID(dbc dbctx.Context, id, ownerUserID uuid.UUID) (*types.DefenseSession, error)
	ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*types.DefenseSession, error)
	// MarkReady transitions preparing → ready and records total_chunks.
	// It is a no-op (ErrNotFound) once the session left preparing, which
	// keeps the status machine monotonic even under a duplicated prepare.
	MarkReady(dbc dbctx.Context, id uuid.UUID, totalChunks int) error
	// AppendTranscript appends messages and advances status to in_progress
	// as one conditional UPDATE, so a concurrent reader never observes an
	// unpaired user message.
	AppendTranscript(dbc dbctx.Context, id uuid.UUID, msgs []types.ConversationMessage) error
	Complete(dbc dbctx.Context, id, ownerUserID uuid.UUID) error
	Delete(dbc dbctx.Context, id, ownerUserID uuid.UUID) error
}

type defenseSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDefenseSessionRepo(db *gorm.DB, baseLog *logger.Logger) DefenseSessionRepo {
	return &defenseSessionRepo{db: db, log: baseLog.With("repo", "DefenseSessionRepo")}
}

func (r *defenseSessionRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *defenseSessionRepo) Create(dbc dbctx.Context, s *types.DefenseSession) (*types.DefenseSession, error) {
	if s == nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	if len(s.Transcript) == 0 {
		s.Transcript = []byte("[]")
	}
	if s.Status == "" {
		s.Status = types.SessionStatusPreparing
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

func (r *defenseSessionRepo) GetByID(dbc dbctx.Context, id, ownerUserID uuid.UUID) (*types.DefenseSession, error) {
	if id == uuid.Nil || ownerUserID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	var out types.DefenseSession
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

func (r *defenseSessionRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*types.DefenseSession, error) {
	if ownerUserID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	var out []*types.DefenseSession
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *defenseSessionRepo) MarkReady(dbc dbctx.Context, id uuid.UUID, totalChunks int) error {
	if id == uuid.Nil {
		return pkgerrors.ErrInvalidArgument
	}
	res := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.DefenseSession{}).
		Where("id = ? AND status = ?", id, types.SessionStatusPreparing).
		Updates(map[string]interface{}{
			"status":       types.SessionStatusReady,
			"total_chunks": totalChunks,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (r *defenseSessionRepo) AppendTranscript(dbc dbctx.Context, id uuid.UUID, msgs []types.ConversationMessage) error {
	if id == uuid.Nil {
		return pkgerrors.ErrInvalidArgument
	}
	if len(msgs) == 0 {
		return nil
	}
	payload, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshal transcript append: %w", err)
	}
	res := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.DefenseSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"transcript": gorm.Expr("transcript || ?::jsonb", string(payload)),
			"status": gorm.Expr(
				"CASE WHEN status = ? THEN status ELSE ? END",
				types.SessionStatusCompleted,
				types.SessionStatusInProgress,
			),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (r *defenseSessionRepo) Complete(dbc dbctx.Context, id, ownerUserID uuid.UUID) error {
	if id == uuid.Nil || ownerUserID == uuid.Nil {
		return pkgerrors.ErrInvalidArgument
	}
	res := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.DefenseSession{}).
		Where("id = ? AND owner_user_id = ? AND status <> ?", id, ownerUserID, types.SessionStatusCompleted).
		Updates(map[string]interface{}{
			"status":     types.SessionStatusCompleted,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (r *defenseSessionRepo) Delete(dbc dbctx.Context, id, ownerUserID uuid.UUID) error {
	if id == uuid.Nil || ownerUserID == uuid.Nil {
		return pkgerrors.ErrInvalidArgument
	}
	// Hard delete: teardown is irreversible by contract.
	return r.handle(dbc).WithContext(dbc.Ctx).
		Unscoped().
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		Delete(&types.DefenseSession{}).Error
}
