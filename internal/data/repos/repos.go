package repos

import (
	"github.com/vivavoce/defense-backend/internal/data/repos/defense"
	"github.com/vivavoce/defense-backend/internal/data/repos/materials"
	"github.com/vivavoce/defense-backend/internal/pkg/logger"
	"gorm.io/gorm"
)

type DocumentRepo = materials.DocumentRepo

type DefenseSessionRepo = defense.DefenseSessionRepo
type DocumentChunkRepo = defense.DocumentChunkRepo

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return materials.NewDocumentRepo(db, baseLog)
}

func NewDefenseSessionRepo(db *gorm.DB, baseLog *logger.Logger) DefenseSessionRepo {
	return defense.NewDefenseSessionRepo(db, baseLog)
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
	return defense.NewDocumentChunkRepo(db, baseLog)
}
