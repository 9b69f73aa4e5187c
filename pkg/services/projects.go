package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"genalixir-backend/pkg/apperror"
	"genalixir-backend/pkg/database"
	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/metrics"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/utils"
)

// ProjectService 项目与项目成员关系
type ProjectService struct {
	db  database.DatabaseInterface
	now func() time.Time
}

func NewProjectService(db database.DatabaseInterface) *ProjectService {
	return &ProjectService{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create 创建项目，创建者即所有者，状态为 PLANNING
func (s *ProjectService) Create(ctx context.Context, ownerID string, req models.ProjectCreateRequest) (*models.Project, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	if _, err := s.db.GetMemberByID(ctx, ownerID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperror.Unauthenticated("member no longer exists")
		}
		return nil, storeError(err, "member")
	}

	project := &models.Project{
		Name:           req.Name,
		Description:    req.Description,
		Status:         models.ProjectPlanning,
		OwnerID:        ownerID,
		MaxMembers:     req.MaxMembers,
		SkillsRequired: append([]string{}, req.SkillsRequired...),
		MemberCount:    1,
	}
	if err := s.db.CreateProject(ctx, project); err != nil {
		return nil, storeError(err, "project")
	}

	logging.FromContext(ctx).WithField("project_id", project.ID).WithField("owner_id", ownerID).Info("🚀 Project created")
	return project, nil
}

// Get 获取项目
func (s *ProjectService) Get(ctx context.Context, id string) (*models.Project, error) {
	project, err := s.db.GetProject(ctx, id)
	if err != nil {
		return nil, storeError(err, "project")
	}
	return project, nil
}

// List 按状态或所有者筛选项目
func (s *ProjectService) List(ctx context.Context, status, ownerID string) ([]models.Project, error) {
	filter := models.ProjectFilter{
		Status:  models.ProjectStatus(strings.ToUpper(strings.TrimSpace(status))),
		OwnerID: strings.TrimSpace(ownerID),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperror.Validation("unknown project status %q", status)
	}
	projects, err := s.db.ListProjects(ctx, filter)
	if err != nil {
		return nil, storeError(err, "project")
	}
	return projects, nil
}

// Members 列出项目成员关系（所有者没有关系行）
func (s *ProjectService) Members(ctx context.Context, projectID string) ([]models.ProjectMembership, error) {
	if _, err := s.db.GetProject(ctx, projectID); err != nil {
		return nil, storeError(err, "project")
	}
	members, err := s.db.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, storeError(err, "project")
	}
	return members, nil
}

// Join 加入项目；状态、重复与容量由存储层在同一原子操作内复核
func (s *ProjectService) Join(ctx context.Context, projectID, memberID string) (result *models.ProjectMembership, err error) {
	defer func() { metrics.RecordProjectMembership("join", err) }()

	project, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return nil, storeError(err, "project")
	}
	if !project.Status.Joinable() {
		return nil, apperror.InvalidState("project is %s and no longer accepts members", project.Status)
	}
	if project.OwnerID == memberID {
		return nil, apperror.Conflict("already owner of this project")
	}

	membership := &models.ProjectMembership{
		ProjectID: projectID,
		MemberID:  memberID,
		Role:      models.ProjectRoleMember,
	}
	if err := s.db.AddProjectMember(ctx, membership); err != nil {
		switch {
		case errors.Is(err, database.ErrConflict):
			return nil, apperror.Conflict("already a member of this project")
		case errors.Is(err, database.ErrProjectClosed):
			return nil, apperror.InvalidState("project is %s and no longer accepts members", project.Status)
		}
		return nil, storeError(err, "project")
	}

	logging.FromContext(ctx).WithField("project_id", projectID).WithField("member_id", memberID).Info("🤝 Member joined project")
	return membership, nil
}

// Leave 退出项目；所有者不能退出
func (s *ProjectService) Leave(ctx context.Context, projectID, memberID string) (err error) {
	defer func() { metrics.RecordProjectMembership("leave", err) }()

	project, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return storeError(err, "project")
	}
	if project.OwnerID == memberID {
		return apperror.Forbidden("the owner cannot leave the project")
	}
	if _, err := s.db.GetProjectMembership(ctx, projectID, memberID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperror.NotFound("not a member of this project")
		}
		return storeError(err, "project membership")
	}
	if err := s.db.RemoveProjectMember(ctx, projectID, memberID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperror.NotFound("not a member of this project")
		}
		return storeError(err, "project")
	}

	logging.FromContext(ctx).WithField("project_id", projectID).WithField("member_id", memberID).Info("👋 Member left project")
	return nil
}

// Update 所有者更新项目；状态只能前进
func (s *ProjectService) Update(ctx context.Context, projectID, requesterID string, req models.ProjectUpdateRequest) (*models.Project, error) {
	return s.update(ctx, projectID, req, database.ProjectPatch{RequireOwner: requesterID, Monotonic: true})
}

// AdminUpdate 管理员或拥有 moderate_projects 能力的成员编辑项目，不做所有权与状态顺序检查
func (s *ProjectService) AdminUpdate(ctx context.Context, projectID string, req models.ProjectUpdateRequest) (*models.Project, error) {
	return s.update(ctx, projectID, req, database.ProjectPatch{})
}

// ModeratorUpdate 校验成员角色后执行 AdminUpdate
func (s *ProjectService) ModeratorUpdate(ctx context.Context, projectID, moderatorID string, req models.ProjectUpdateRequest) (*models.Project, error) {
	moderator, err := s.db.GetMemberByID(ctx, moderatorID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperror.Unauthenticated("member no longer exists")
		}
		return nil, storeError(err, "member")
	}
	if !moderator.Role.Can(models.CapModerateProjects) {
		return nil, apperror.Forbidden("role %s cannot moderate projects", moderator.Role)
	}
	return s.AdminUpdate(ctx, projectID, req)
}

// update 构造补丁交给存储层；所有权与状态顺序检查在行锁内执行
func (s *ProjectService) update(ctx context.Context, projectID string, req models.ProjectUpdateRequest, patch database.ProjectPatch) (*models.Project, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		req.Description = &description
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	patch.Name = req.Name
	patch.Description = req.Description
	patch.Status = req.Status
	patch.MaxMembers = req.MaxMembers
	patch.SkillsRequired = req.SkillsRequired
	patch.Now = s.now()

	project, err := s.db.UpdateProject(ctx, projectID, patch)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotOwner):
			return nil, apperror.Forbidden("only the project owner can update it")
		case errors.Is(err, database.ErrStatusRegression):
			return nil, apperror.InvalidState("status cannot move back to %s", *req.Status)
		case errors.Is(err, database.ErrCapacityExceeded):
			return nil, apperror.Validation("max_members cannot be below the current member count")
		}
		return nil, storeError(err, "project")
	}

	logging.FromContext(ctx).WithField("project_id", projectID).WithField("status", project.Status).Info("✏️  Project updated")
	return project, nil
}

// Delete 所有者删除项目，级联删除成员关系
func (s *ProjectService) Delete(ctx context.Context, projectID, requesterID string) error {
	project, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return storeError(err, "project")
	}
	if project.OwnerID != requesterID {
		return apperror.Forbidden("only the project owner can delete it")
	}
	if err := s.db.DeleteProject(ctx, projectID); err != nil {
		return storeError(err, "project")
	}
	logging.FromContext(ctx).WithField("project_id", projectID).Info("🗑️  Project deleted")
	return nil
}
