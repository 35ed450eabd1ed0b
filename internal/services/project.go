package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dataagg "github.com/yungbote/trackflow-backend/internal/data/aggregates"
	"github.com/yungbote/trackflow-backend/internal/data/repos"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

var projectStatuses = []string{
	tracking.ProjectStatusActive,
	tracking.ProjectStatusOnHold,
	tracking.ProjectStatusFinished,
}

type ProjectService interface {
	List(dbc dbctx.Context, f repos.ProjectFilter) ([]*types.Project, int64, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Project, error)
	Create(ctx context.Context, in ProjectInput) (*types.Project, error)
	Update(ctx context.Context, id uuid.UUID, in ProjectPatch) (*types.Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProjectInput struct {
	Name       string `json:"name"`
	Code       string `json:"code"`
	ClientName string `json:"client_name"`
	Location   string `json:"location"`
	Status     string `json:"status"`
}

type ProjectPatch struct {
	Name       *string `json:"name"`
	ClientName *string `json:"client_name"`
	Location   *string `json:"location"`
	Status     *string `json:"status"`
}

type projectService struct {
	db          *gorm.DB
	log         *logger.Logger
	projectRepo repos.ProjectRepo
}

func NewProjectService(db *gorm.DB, log *logger.Logger, projectRepo repos.ProjectRepo) ProjectService {
	return &projectService{
		db:          db,
		log:         log.With("service", "ProjectService"),
		projectRepo: projectRepo,
	}
}

func (s *projectService) List(dbc dbctx.Context, f repos.ProjectFilter) ([]*types.Project, int64, error) {
	if f.Status != "" {
		f.Status = normalizeProjectStatus(f.Status)
	}
	return s.projectRepo.List(dbc, f)
}

func (s *projectService) Get(dbc dbctx.Context, id uuid.UUID) (*types.Project, error) {
	p, err := s.projectRepo.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if p == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, "Projects.Get", "project %s not found", id)
	}
	return p, nil
}

func (s *projectService) Create(ctx context.Context, in ProjectInput) (*types.Project, error) {
	const op = "Projects.Create"
	name := strings.TrimSpace(in.Name)
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if name == "" || code == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "name and code are required", nil)
	}
	status := tracking.ProjectStatusActive
	if strings.TrimSpace(in.Status) != "" {
		if status = normalizeProjectStatus(in.Status); status == "" {
			return nil, domainagg.Newf(domainagg.CodeValidation, op, "unknown project status %q", in.Status)
		}
	}
	p := &types.Project{
		Name:       name,
		Code:       code,
		ClientName: strings.TrimSpace(in.ClientName),
		Location:   strings.TrimSpace(in.Location),
		Status:     status,
	}
	if _, err := s.projectRepo.Create(dbctx.Context{Ctx: ctx}, p); err != nil {
		if mapped := dataagg.MapError(op, err); domainagg.IsCode(mapped, domainagg.CodeConflict) {
			return nil, domainagg.Newf(domainagg.CodeConflict, op, "project code %s already exists", code)
		}
		return nil, fmt.Errorf("create project: %w", err)
	}
	s.log.Info("project created", "project_id", p.ID, "code", p.Code)
	return p, nil
}

func (s *projectService) Update(ctx context.Context, id uuid.UUID, in ProjectPatch) (*types.Project, error) {
	const op = "Projects.Update"
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.Get(dbc, id); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Name != nil {
		v := strings.TrimSpace(*in.Name)
		if v == "" {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "name cannot be empty", nil)
		}
		updates["name"] = v
	}
	if in.ClientName != nil {
		updates["client_name"] = strings.TrimSpace(*in.ClientName)
	}
	if in.Location != nil {
		updates["location"] = strings.TrimSpace(*in.Location)
	}
	if in.Status != nil {
		st := normalizeProjectStatus(*in.Status)
		if st == "" {
			return nil, domainagg.Newf(domainagg.CodeValidation, op, "unknown project status %q", *in.Status)
		}
		updates["status"] = st
	}
	if err := s.projectRepo.UpdateFields(dbc, id, updates); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return s.Get(dbc, id)
}

// Delete refuses while assemblies or batches still reference the project.
func (s *projectService) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "Projects.Delete"
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		p, err := s.projectRepo.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if p == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "project %s not found", id)
		}
		n, err := s.projectRepo.CountDependents(dbc, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return domainagg.Newf(domainagg.CodeConflict, op, "project %s still has %d assemblies or batches", p.Code, n)
		}
		return s.projectRepo.Delete(dbc, id)
	})
}

func normalizeProjectStatus(s string) string {
	s = strings.TrimSpace(s)
	for _, v := range projectStatuses {
		if strings.EqualFold(s, v) {
			return v
		}
	}
	return ""
}
