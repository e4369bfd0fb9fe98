// Package seed loads workflow definitions and the organizational hierarchy
// from a YAML file at start-up. Seeding is idempotent: workflow codes and
// hierarchy ids that already exist are left untouched.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/application/service"
	"github.com/garyjia/membership-approvals/internal/domain/apperr"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
)

// File is the root of a seed document
type File struct {
	Forums    []Forum                       `yaml:"forums"`
	Workflows []service.CreateWorkflowInput `yaml:"workflows"`
}

// Forum is a forum with its areas
type Forum struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	AdminUserID string `yaml:"admin_user_id"`
	Areas       []Area `yaml:"areas"`
}

// Area is an area with its units
type Area struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	AdminUserID string `yaml:"admin_user_id"`
	Units       []Unit `yaml:"units"`
}

// Unit is a leaf of the hierarchy
type Unit struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	AdminUserID string `yaml:"admin_user_id"`
}

// Result summarizes what Apply changed
type Result struct {
	NodesCreated     int
	WorkflowsCreated int
	WorkflowsSkipped int
}

// Load reads and strictly decodes a seed file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document, rejecting unknown keys
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

// Seeder applies seed documents
type Seeder struct {
	workflows service.WorkflowService
	forums    port.ForumRepository
	areas     port.AreaRepository
	units     port.UnitRepository
	txManager port.TransactionManager
	logger    *zap.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(
	workflows service.WorkflowService,
	forums port.ForumRepository,
	areas port.AreaRepository,
	units port.UnitRepository,
	txManager port.TransactionManager,
	logger *zap.Logger,
) *Seeder {
	return &Seeder{
		workflows: workflows,
		forums:    forums,
		areas:     areas,
		units:     units,
		txManager: txManager,
		logger:    logger,
	}
}

// Apply writes the hierarchy in one transaction, then creates each missing workflow
func (s *Seeder) Apply(ctx context.Context, f *File) (Result, error) {
	var res Result

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		n, err := s.applyHierarchy(txCtx, f.Forums)
		res.NodesCreated = n
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("seed hierarchy: %w", err)
	}

	actor := entity.Actor{UserID: entity.SystemActorID}
	for _, in := range f.Workflows {
		_, err := s.workflows.CreateWorkflow(ctx, actor, in)
		if errors.Is(err, apperr.ErrConflict) {
			res.WorkflowsSkipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed workflow %q: %w", in.Code, err)
		}
		res.WorkflowsCreated++
	}

	s.logger.Info("Seed applied",
		zap.Int("nodes_created", res.NodesCreated),
		zap.Int("workflows_created", res.WorkflowsCreated),
		zap.Int("workflows_skipped", res.WorkflowsSkipped))
	return res, nil
}

func (s *Seeder) applyHierarchy(ctx context.Context, forums []Forum) (int, error) {
	now := time.Now().UTC()
	created := 0

	for _, fs := range forums {
		existing, err := s.forums.GetByID(ctx, fs.ID)
		if err != nil {
			return created, err
		}
		if existing == nil {
			if err := s.forums.Create(ctx, &entity.Forum{ID: fs.ID, Name: fs.Name, AdminUserID: fs.AdminUserID, CreatedAt: now}); err != nil {
				return created, err
			}
			created++
		}

		for _, as := range fs.Areas {
			existing, err := s.areas.GetByID(ctx, as.ID)
			if err != nil {
				return created, err
			}
			if existing == nil {
				area := &entity.Area{ID: as.ID, ForumID: fs.ID, Name: as.Name, AdminUserID: as.AdminUserID, CreatedAt: now}
				if err := s.areas.Create(ctx, area); err != nil {
					return created, err
				}
				created++
			}

			for _, us := range as.Units {
				existing, err := s.units.GetByID(ctx, us.ID)
				if err != nil {
					return created, err
				}
				if existing != nil {
					continue
				}
				unit := &entity.Unit{ID: us.ID, AreaID: as.ID, Name: us.Name, AdminUserID: us.AdminUserID, CreatedAt: now}
				if err := s.units.Create(ctx, unit); err != nil {
					return created, err
				}
				created++
			}
		}
	}
	return created, nil
}
