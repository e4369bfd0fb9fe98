package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
	"github.com/garyjia/membership-approvals/internal/infrastructure/persistence/sqlite"
)

// HierarchyRepository stores the forum, area and unit tree. It implements
// port.ForumRepository, port.AreaRepository and port.UnitRepository; use the
// narrow accessors to hand each port to its consumer.
type HierarchyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHierarchyRepository creates a new hierarchy repository
func NewHierarchyRepository(db *sql.DB, logger *zap.Logger) *HierarchyRepository {
	return &HierarchyRepository{
		db:     db,
		logger: logger,
	}
}

// Forums returns the forum view of the repository
func (r *HierarchyRepository) Forums() port.ForumRepository { return forumRepo{r} }

// Areas returns the area view of the repository
func (r *HierarchyRepository) Areas() port.AreaRepository { return areaRepo{r} }

// Units returns the unit view of the repository
func (r *HierarchyRepository) Units() port.UnitRepository { return unitRepo{r} }

type forumRepo struct{ *HierarchyRepository }

func (r forumRepo) Create(ctx context.Context, f *entity.Forum) error {
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`INSERT INTO forums (id, name, admin_user_id, created_at) VALUES (?, ?, ?, ?)`,
		f.ID, f.Name, nullString(f.AdminUserID), f.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create forum", zap.String("id", f.ID), zap.Error(err))
		return fmt.Errorf("failed to create forum: %w", err)
	}
	return nil
}

func (r forumRepo) GetByID(ctx context.Context, id string) (*entity.Forum, error) {
	var f entity.Forum
	var admin sql.NullString

	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, name, admin_user_id, created_at FROM forums WHERE id = ?`, id,
	).Scan(&f.ID, &f.Name, &admin, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get forum", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get forum: %w", err)
	}
	f.AdminUserID = admin.String
	return &f, nil
}

type areaRepo struct{ *HierarchyRepository }

func (r areaRepo) Create(ctx context.Context, a *entity.Area) error {
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`INSERT INTO areas (id, forum_id, name, admin_user_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.ForumID, a.Name, nullString(a.AdminUserID), a.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create area", zap.String("id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to create area: %w", err)
	}
	return nil
}

func (r areaRepo) GetByID(ctx context.Context, id string) (*entity.Area, error) {
	var a entity.Area
	var admin sql.NullString

	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, forum_id, name, admin_user_id, created_at FROM areas WHERE id = ?`, id,
	).Scan(&a.ID, &a.ForumID, &a.Name, &admin, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get area", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get area: %w", err)
	}
	a.AdminUserID = admin.String
	return &a, nil
}

type unitRepo struct{ *HierarchyRepository }

func (r unitRepo) Create(ctx context.Context, u *entity.Unit) error {
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`INSERT INTO units (id, area_id, name, admin_user_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.AreaID, u.Name, nullString(u.AdminUserID), u.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create unit", zap.String("id", u.ID), zap.Error(err))
		return fmt.Errorf("failed to create unit: %w", err)
	}
	return nil
}

func (r unitRepo) GetByID(ctx context.Context, id string) (*entity.Unit, error) {
	var u entity.Unit
	var admin sql.NullString

	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, area_id, name, admin_user_id, created_at FROM units WHERE id = ?`, id,
	).Scan(&u.ID, &u.AreaID, &u.Name, &admin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get unit", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	u.AdminUserID = admin.String
	return &u, nil
}

// Verify interface compliance
var (
	_ port.ForumRepository = forumRepo{}
	_ port.AreaRepository  = areaRepo{}
	_ port.UnitRepository  = unitRepo{}
)
