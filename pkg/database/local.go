package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/models"

	"github.com/google/uuid"
)

const localStateFileName = "genalixir.json"

// localState 本地数据库的完整内容
type localState struct {
	Adhesions   map[string]*models.AdhesionRequest
	Members     map[string]*models.Member
	Projects    map[string]*models.Project
	Memberships map[string]*models.ProjectMembership
}

// localMemberRecord keeps pin_hash in the file, models.Member hides it from JSON.
type localMemberRecord struct {
	*models.Member
	PinHash string `json:"pin_hash"`
}

type localStateFile struct {
	Adhesions   map[string]*models.AdhesionRequest   `json:"adhesions"`
	Members     map[string]localMemberRecord         `json:"members"`
	Projects    map[string]*models.Project           `json:"projects"`
	Memberships map[string]*models.ProjectMembership `json:"memberships"`
}

func (s localState) MarshalJSON() ([]byte, error) {
	file := localStateFile{
		Adhesions:   s.Adhesions,
		Members:     make(map[string]localMemberRecord, len(s.Members)),
		Projects:    s.Projects,
		Memberships: s.Memberships,
	}
	for id, m := range s.Members {
		file.Members[id] = localMemberRecord{Member: m, PinHash: m.PinHash}
	}
	return json.Marshal(file)
}

func (s *localState) UnmarshalJSON(data []byte) error {
	var file localStateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	fresh := newLocalState()
	for id, r := range file.Adhesions {
		fresh.Adhesions[id] = r
	}
	for id, rec := range file.Members {
		if rec.Member == nil {
			continue
		}
		rec.Member.PinHash = rec.PinHash
		fresh.Members[id] = rec.Member
	}
	for id, p := range file.Projects {
		fresh.Projects[id] = p
	}
	for id, m := range file.Memberships {
		fresh.Memberships[id] = m
	}
	*s = *fresh
	return nil
}

func newLocalState() *localState {
	return &localState{
		Adhesions:   map[string]*models.AdhesionRequest{},
		Members:     map[string]*models.Member{},
		Projects:    map[string]*models.Project{},
		Memberships: map[string]*models.ProjectMembership{},
	}
}

// LocalDatabase 本地文件数据库实现
//
// Every mutation runs under one mutex on a copy of the state and is swapped in
// only after it has been written to disk, so each call is atomic.
// An empty data directory keeps everything in memory.
type LocalDatabase struct {
	dataDir string
	mu      sync.RWMutex
	state   *localState
}

// NewLocalDatabase 创建本地数据库实例
func NewLocalDatabase(dataDir string) (*LocalDatabase, error) {
	db := &LocalDatabase{dataDir: dataDir, state: newLocalState()}
	if dataDir == "" {
		return db, nil
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		// 在只读文件系统中，使用临时目录
		logging.WithComponent("database").WithError(err).Warn("Failed to create data directory, falling back to temp dir")
		db.dataDir = filepath.Join(os.TempDir(), "genalixir-data")
		if err := os.MkdirAll(db.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	data, err := os.ReadFile(db.statePath())
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local database: %w", err)
	}
	state := newLocalState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse local database: %w", err)
	}
	db.state = state
	return db, nil
}

func (db *LocalDatabase) statePath() string {
	return filepath.Join(db.dataDir, localStateFileName)
}

// mutate 在状态副本上执行修改，持久化成功后再替换
func (db *LocalDatabase) mutate(fn func(s *localState) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	next, err := cloneState(db.state)
	if err != nil {
		return err
	}
	if err := fn(next); err != nil {
		return err
	}
	if err := db.persist(next); err != nil {
		return err
	}
	db.state = next
	return nil
}

func (db *LocalDatabase) persist(s *localState) error {
	if db.dataDir == "" {
		return nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal local database: %w", err)
	}
	tmp := db.statePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write local database: %w", err)
	}
	return os.Rename(tmp, db.statePath())
}

func cloneState(s *localState) (*localState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to clone local state: %w", err)
	}
	next := newLocalState()
	if err := json.Unmarshal(data, next); err != nil {
		return nil, fmt.Errorf("failed to clone local state: %w", err)
	}
	return next, nil
}

// ================= Adhesion requests =================

// CreateAdhesionRequest 创建入会申请
func (db *LocalDatabase) CreateAdhesionRequest(ctx context.Context, req *models.AdhesionRequest) error {
	return db.mutate(func(s *localState) error {
		for _, existing := range s.Adhesions {
			if existing.Email == req.Email && existing.Status == models.AdhesionPending {
				return ErrConflict
			}
		}
		if req.ID == "" {
			req.ID = uuid.New().String()
		}
		now := time.Now().UTC()
		req.CreatedAt = now
		req.UpdatedAt = now
		copied := *req
		s.Adhesions[req.ID] = &copied
		return nil
	})
}

// GetAdhesionRequest 获取入会申请
func (db *LocalDatabase) GetAdhesionRequest(ctx context.Context, id string) (*models.AdhesionRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	req, ok := db.state.Adhesions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *req
	return &copied, nil
}

// ListAdhesionRequests 列出入会申请，status 为空时返回全部
func (db *LocalDatabase) ListAdhesionRequests(ctx context.Context, status models.AdhesionStatus) ([]models.AdhesionRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := []models.AdhesionRequest{}
	for _, req := range db.state.Adhesions {
		if status != "" && req.Status != status {
			continue
		}
		result = append(result, *req)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// HasPendingAdhesion 检查邮箱是否已有待审核申请
func (db *LocalDatabase) HasPendingAdhesion(ctx context.Context, email string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, req := range db.state.Adhesions {
		if req.Email == email && req.Status == models.AdhesionPending {
			return true, nil
		}
	}
	return false, nil
}

// PromoteAdhesion 通过申请并创建成员
func (db *LocalDatabase) PromoteAdhesion(ctx context.Context, p PromoteParams) error {
	return db.mutate(func(s *localState) error {
		req, ok := s.Adhesions[p.RequestID]
		if !ok {
			return ErrNotFound
		}
		if req.Status != models.AdhesionPending {
			return ErrNotPending
		}
		for _, m := range s.Members {
			if m.GenAlixirID == p.Member.GenAlixirID {
				return ErrDuplicateGenID
			}
			if m.Email == p.Member.Email {
				return ErrDuplicateEmail
			}
		}

		if p.Member.ID == "" {
			p.Member.ID = uuid.New().String()
		}
		p.Member.AdhesionID = &req.ID
		p.Member.CreatedAt = p.ValidatedAt
		p.Member.UpdatedAt = p.ValidatedAt
		member := *p.Member
		s.Members[member.ID] = &member

		validatedBy := p.ValidatedBy
		validatedAt := p.ValidatedAt
		memberID := member.ID
		req.Status = models.AdhesionValidated
		req.ValidatedBy = &validatedBy
		req.ValidatedAt = &validatedAt
		req.MemberID = &memberID
		req.UpdatedAt = p.ValidatedAt
		return nil
	})
}

// RejectAdhesion 拒绝申请
func (db *LocalDatabase) RejectAdhesion(ctx context.Context, p RejectParams) (*models.AdhesionRequest, error) {
	var result models.AdhesionRequest
	err := db.mutate(func(s *localState) error {
		req, ok := s.Adhesions[p.RequestID]
		if !ok {
			return ErrNotFound
		}
		if req.Status != models.AdhesionPending {
			return ErrNotPending
		}
		validatedBy := p.ValidatedBy
		rejectedAt := p.RejectedAt
		req.Status = models.AdhesionRejected
		req.ValidatedBy = &validatedBy
		req.ValidatedAt = &rejectedAt
		req.RejectionReason = p.Reason
		req.UpdatedAt = p.RejectedAt
		result = *req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ================= Members =================

// GetMemberByID 根据ID获取成员
func (db *LocalDatabase) GetMemberByID(ctx context.Context, id string) (*models.Member, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.state.Members[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMember(m), nil
}

// GetMemberByEmail 根据邮箱获取成员
func (db *LocalDatabase) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, m := range db.state.Members {
		if m.Email == email {
			return cloneMember(m), nil
		}
	}
	return nil, ErrNotFound
}

// ListMembers 列出所有成员
func (db *LocalDatabase) ListMembers(ctx context.Context) ([]models.Member, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make([]models.Member, 0, len(db.state.Members))
	for _, m := range db.state.Members {
		result = append(result, *cloneMember(m))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// UpdateMemberProfile 更新成员档案
func (db *LocalDatabase) UpdateMemberProfile(ctx context.Context, id string, patch MemberPatch) (*models.Member, error) {
	var updated *models.Member
	err := db.mutate(func(s *localState) error {
		m, ok := s.Members[id]
		if !ok {
			return ErrNotFound
		}
		patch.apply(m)
		m.UpdatedAt = time.Now().UTC()
		updated = cloneMember(m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// VerifyMemberAura 认证成员的 Aura
func (db *LocalDatabase) VerifyMemberAura(ctx context.Context, id, aura, verifierID string) (*models.Member, error) {
	var updated *models.Member
	err := db.mutate(func(s *localState) error {
		m, ok := s.Members[id]
		if !ok {
			return ErrNotFound
		}
		if err := markAuraVerified(m, aura, verifierID); err != nil {
			return err
		}
		m.UpdatedAt = time.Now().UTC()
		updated = cloneMember(m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateMemberRole 更新成员角色
func (db *LocalDatabase) UpdateMemberRole(ctx context.Context, id string, role models.Role) error {
	return db.mutate(func(s *localState) error {
		m, ok := s.Members[id]
		if !ok {
			return ErrNotFound
		}
		m.Role = role
		m.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func cloneMember(m *models.Member) *models.Member {
	copied := *m
	copied.Skills = append([]string(nil), m.Skills...)
	copied.Auras = append(models.AuraTraits(nil), m.Auras...)
	return &copied
}

// ================= Projects =================

// CreateProject 创建项目
func (db *LocalDatabase) CreateProject(ctx context.Context, p *models.Project) error {
	return db.mutate(func(s *localState) error {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		now := time.Now().UTC()
		p.CreatedAt = now
		p.UpdatedAt = now
		p.MemberCount = 1
		copied := *p
		copied.SkillsRequired = append([]string(nil), p.SkillsRequired...)
		s.Projects[p.ID] = &copied
		return nil
	})
}

// GetProject 获取项目
func (db *LocalDatabase) GetProject(ctx context.Context, id string) (*models.Project, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	p, ok := db.state.Projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return projectView(db.state, p), nil
}

// ListProjects 列出项目
func (db *LocalDatabase) ListProjects(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := []models.Project{}
	for _, p := range db.state.Projects {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.OwnerID != "" && p.OwnerID != filter.OwnerID {
			continue
		}
		result = append(result, *projectView(db.state, p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// UpdateProject 在状态锁内检查并更新项目
func (db *LocalDatabase) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*models.Project, error) {
	var updated *models.Project
	err := db.mutate(func(s *localState) error {
		existing, ok := s.Projects[id]
		if !ok {
			return ErrNotFound
		}
		if err := patch.apply(existing, memberCount(s, id)); err != nil {
			return err
		}
		existing.UpdatedAt = time.Now().UTC()
		updated = projectView(s, existing)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteProject 删除项目及其所有成员关系
func (db *LocalDatabase) DeleteProject(ctx context.Context, id string) error {
	return db.mutate(func(s *localState) error {
		if _, ok := s.Projects[id]; !ok {
			return ErrNotFound
		}
		for key, m := range s.Memberships {
			if m.ProjectID == id {
				delete(s.Memberships, key)
			}
		}
		delete(s.Projects, id)
		return nil
	})
}

// ListProjectMembers 列出项目成员关系（不含所有者）
func (db *LocalDatabase) ListProjectMembers(ctx context.Context, projectID string) ([]models.ProjectMembership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := []models.ProjectMembership{}
	for _, m := range db.state.Memberships {
		if m.ProjectID == projectID {
			result = append(result, *m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.Before(result[j].JoinedAt) })
	return result, nil
}

// GetProjectMembership 获取单个成员关系
func (db *LocalDatabase) GetProjectMembership(ctx context.Context, projectID, memberID string) (*models.ProjectMembership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.state.Memberships[membershipKey(projectID, memberID)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m
	return &copied, nil
}

// AddProjectMember 加入项目（容量与状态在同一把锁内复核）
func (db *LocalDatabase) AddProjectMember(ctx context.Context, m *models.ProjectMembership) error {
	return db.mutate(func(s *localState) error {
		p, ok := s.Projects[m.ProjectID]
		if !ok {
			return ErrNotFound
		}
		if !p.Status.Joinable() {
			return ErrProjectClosed
		}
		key := membershipKey(m.ProjectID, m.MemberID)
		if _, exists := s.Memberships[key]; exists || p.OwnerID == m.MemberID {
			return ErrConflict
		}
		if memberCount(s, p.ID) >= p.MaxMembers {
			return ErrCapacityExceeded
		}
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.JoinedAt = time.Now().UTC()
		copied := *m
		s.Memberships[key] = &copied
		return nil
	})
}

// RemoveProjectMember 退出项目
func (db *LocalDatabase) RemoveProjectMember(ctx context.Context, projectID, memberID string) error {
	return db.mutate(func(s *localState) error {
		key := membershipKey(projectID, memberID)
		if _, ok := s.Memberships[key]; !ok {
			return ErrNotFound
		}
		delete(s.Memberships, key)
		return nil
	})
}

func membershipKey(projectID, memberID string) string {
	return projectID + "/" + memberID
}

// memberCount 包含所有者
func memberCount(s *localState, projectID string) int {
	count := 1
	for _, m := range s.Memberships {
		if m.ProjectID == projectID {
			count++
		}
	}
	return count
}

func projectView(s *localState, p *models.Project) *models.Project {
	copied := *p
	copied.SkillsRequired = append([]string(nil), p.SkillsRequired...)
	copied.MemberCount = memberCount(s, p.ID)
	return &copied
}

// ================= Dashboard =================

// Stats 统计
func (db *LocalDatabase) Stats(ctx context.Context) (*models.Stats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stats := &models.Stats{
		Adhesions: map[models.AdhesionStatus]int{},
		Members:   len(db.state.Members),
		Projects:  map[models.ProjectStatus]int{},
	}
	for _, req := range db.state.Adhesions {
		stats.Adhesions[req.Status]++
	}
	for _, p := range db.state.Projects {
		stats.Projects[p.Status]++
	}
	return stats, nil
}

// HealthCheck 健康检查
func (db *LocalDatabase) HealthCheck(ctx context.Context) error {
	if db.dataDir == "" {
		return nil
	}
	_, err := os.Stat(db.dataDir)
	return err
}

// Close 关闭数据库
func (db *LocalDatabase) Close() error {
	return nil
}
