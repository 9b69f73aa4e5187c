package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"genalixir-backend/pkg/models"
)

// SupabaseDatabase Supabase数据库实现（PostgREST）
//
// Multi-row invariants run inside the SQL functions shipped with the
// migrations (promote_adhesion, join_project, update_project,
// update_member_profile, verify_member_aura).
type SupabaseDatabase struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSupabaseDatabase 创建Supabase数据库实例
func NewSupabaseDatabase(url, key string) *SupabaseDatabase {
	// 确保URL格式正确
	if !strings.HasPrefix(url, "http") {
		url = "https://" + url
	}

	return &SupabaseDatabase{
		baseURL: strings.TrimRight(url, "/"),
		apiKey:  key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// supabaseError PostgREST 错误响应
type supabaseError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (e *supabaseError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s %s", e.Status, e.Code, e.Message)
}

// makeRequest 发送HTTP请求到Supabase
func (db *SupabaseDatabase) makeRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, db.baseURL+"/rest/v1"+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// 设置请求头
	req.Header.Set("apikey", db.apiKey)
	req.Header.Set("Authorization", "Bearer "+db.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := db.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &supabaseError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil {
			apiErr.Message = string(respBody)
		}
		return nil, translateSupabaseError(apiErr)
	}

	return respBody, nil
}

// translateSupabaseError 将 PostgREST 错误映射为存储层哨兵错误
func translateSupabaseError(e *supabaseError) error {
	switch e.Code {
	case "23505":
		switch {
		case strings.Contains(e.Message, "members_gen_alixir_id_key"):
			return ErrDuplicateGenID
		case strings.Contains(e.Message, "members_email_key"):
			return ErrDuplicateEmail
		}
		return ErrConflict
	case "22P02":
		return ErrNotFound
	case "P0001":
		// RAISE EXCEPTION from the migration functions
		switch strings.TrimSpace(e.Message) {
		case "NOT_FOUND":
			return ErrNotFound
		case "NOT_PENDING":
			return ErrNotPending
		case "CAPACITY_EXCEEDED":
			return ErrCapacityExceeded
		case "PROJECT_CLOSED":
			return ErrProjectClosed
		case "CONFLICT":
			return ErrConflict
		case "NOT_OWNER":
			return ErrNotOwner
		case "STATUS_REGRESSION":
			return ErrStatusRegression
		case "AURA_MISSING":
			return ErrAuraMissing
		}
	}
	return e
}

func eq(value string) string {
	return "eq." + url.QueryEscape(value)
}

// fetchOne 读取单行，空结果返回 ErrNotFound
func fetchOne[T any](data []byte) (*T, error) {
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func fetchAll[T any](data []byte) ([]T, error) {
	rows := []T{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return rows, nil
}

// supabaseMember exposes pin_hash, which models.Member hides from JSON.
type supabaseMember struct {
	models.Member
	PinHash string `json:"pin_hash"`
}

func (r supabaseMember) toMember() *models.Member {
	m := r.Member
	m.PinHash = r.PinHash
	return &m
}

// ================= Adhesion requests =================

// CreateAdhesionRequest 创建入会申请
func (db *SupabaseDatabase) CreateAdhesionRequest(ctx context.Context, req *models.AdhesionRequest) error {
	payload := map[string]interface{}{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
		"email":      req.Email,
		"country":    req.Country,
		"pole":       req.Pole,
		"skills":     nonNil(req.Skills),
		"aura":       req.Aura,
		"motivation": req.Motivation,
		"status":     req.Status,
	}
	data, err := db.makeRequest(ctx, http.MethodPost, "/adhesion_requests", payload)
	if err != nil {
		return err
	}
	created, err := fetchOne[models.AdhesionRequest](data)
	if err != nil {
		return err
	}
	req.ID = created.ID
	req.CreatedAt = created.CreatedAt
	req.UpdatedAt = created.UpdatedAt
	return nil
}

// GetAdhesionRequest 获取入会申请
func (db *SupabaseDatabase) GetAdhesionRequest(ctx context.Context, id string) (*models.AdhesionRequest, error) {
	data, err := db.makeRequest(ctx, http.MethodGet, "/adhesion_requests?select=*&id="+eq(id), nil)
	if err != nil {
		return nil, err
	}
	return fetchOne[models.AdhesionRequest](data)
}

// ListAdhesionRequests 列出入会申请
func (db *SupabaseDatabase) ListAdhesionRequests(ctx context.Context, status models.AdhesionStatus) ([]models.AdhesionRequest, error) {
	endpoint := "/adhesion_requests?select=*&order=created_at.desc"
	if status != "" {
		endpoint += "&status=" + eq(string(status))
	}
	data, err := db.makeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return fetchAll[models.AdhesionRequest](data)
}

// HasPendingAdhesion 检查邮箱是否已有待审核申请
func (db *SupabaseDatabase) HasPendingAdhesion(ctx context.Context, email string) (bool, error) {
	data, err := db.makeRequest(ctx, http.MethodGet,
		"/adhesion_requests?select=id&status=eq.pending&limit=1&email="+eq(email), nil)
	if err != nil {
		return false, err
	}
	rows, err := fetchAll[map[string]interface{}](data)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// PromoteAdhesion 调用 promote_adhesion 函数
func (db *SupabaseDatabase) PromoteAdhesion(ctx context.Context, p PromoteParams) error {
	m := p.Member
	auras := m.Auras
	if auras == nil {
		auras = models.AuraTraits{}
	}
	payload := map[string]interface{}{
		"p_request_id":    p.RequestID,
		"p_validated_by":  p.ValidatedBy,
		"p_validated_at":  p.ValidatedAt,
		"p_gen_alixir_id": m.GenAlixirID,
		"p_email":         m.Email,
		"p_pin_hash":      m.PinHash,
		"p_full_name":     m.FullName,
		"p_country":       m.Country,
		"p_pole":          m.Pole,
		"p_skills":        nonNil(m.Skills),
		"p_auras":         auras,
		"p_role":          m.Role,
	}
	data, err := db.makeRequest(ctx, http.MethodPost, "/rpc/promote_adhesion", payload)
	if err != nil {
		return err
	}
	var memberID string
	if err := json.Unmarshal(data, &memberID); err != nil {
		return fmt.Errorf("failed to decode promote_adhesion result: %w", err)
	}

	requestID := p.RequestID
	m.ID = memberID
	m.AdhesionID = &requestID
	m.CreatedAt = p.ValidatedAt
	m.UpdatedAt = p.ValidatedAt
	return nil
}

// RejectAdhesion 条件更新：仅当申请仍待审核时生效
func (db *SupabaseDatabase) RejectAdhesion(ctx context.Context, p RejectParams) (*models.AdhesionRequest, error) {
	payload := map[string]interface{}{
		"status":           models.AdhesionRejected,
		"validated_by":     p.ValidatedBy,
		"validated_at":     p.RejectedAt,
		"rejection_reason": p.Reason,
		"updated_at":       p.RejectedAt,
	}
	data, err := db.makeRequest(ctx, http.MethodPatch,
		"/adhesion_requests?status=eq.pending&id="+eq(p.RequestID), payload)
	if err != nil {
		return nil, err
	}
	req, err := fetchOne[models.AdhesionRequest](data)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := db.GetAdhesionRequest(ctx, p.RequestID); err != nil {
		return nil, err
	}
	return nil, ErrNotPending
}

// ================= Members =================

// GetMemberByID 根据ID获取成员
func (db *SupabaseDatabase) GetMemberByID(ctx context.Context, id string) (*models.Member, error) {
	return db.getMember(ctx, "id="+eq(id))
}

// GetMemberByEmail 根据邮箱获取成员
func (db *SupabaseDatabase) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	return db.getMember(ctx, "email="+eq(email))
}

func (db *SupabaseDatabase) getMember(ctx context.Context, filter string) (*models.Member, error) {
	data, err := db.makeRequest(ctx, http.MethodGet, "/members?select=*&"+filter, nil)
	if err != nil {
		return nil, err
	}
	row, err := fetchOne[supabaseMember](data)
	if err != nil {
		return nil, err
	}
	return row.toMember(), nil
}

// ListMembers 列出所有成员
func (db *SupabaseDatabase) ListMembers(ctx context.Context) ([]models.Member, error) {
	data, err := db.makeRequest(ctx, http.MethodGet, "/members?select=*&order=created_at.asc", nil)
	if err != nil {
		return nil, err
	}
	rows, err := fetchAll[supabaseMember](data)
	if err != nil {
		return nil, err
	}
	result := make([]models.Member, 0, len(rows))
	for _, row := range rows {
		result = append(result, *row.toMember())
	}
	return result, nil
}

// UpdateMemberProfile 调用 update_member_profile 函数
func (db *SupabaseDatabase) UpdateMemberProfile(ctx context.Context, id string, patch MemberPatch) (*models.Member, error) {
	payload := map[string]interface{}{
		"p_member_id": id,
		"p_full_name": patch.FullName,
		"p_country":   patch.Country,
		"p_skills":    patch.Skills,
		"p_auras":     patch.Auras,
	}
	return db.memberRPC(ctx, "/rpc/update_member_profile", payload)
}

// VerifyMemberAura 调用 verify_member_aura 函数
func (db *SupabaseDatabase) VerifyMemberAura(ctx context.Context, id, aura, verifierID string) (*models.Member, error) {
	payload := map[string]interface{}{
		"p_member_id": id,
		"p_aura":      aura,
		"p_verifier":  verifierID,
	}
	return db.memberRPC(ctx, "/rpc/verify_member_aura", payload)
}

func (db *SupabaseDatabase) memberRPC(ctx context.Context, path string, payload map[string]interface{}) (*models.Member, error) {
	data, err := db.makeRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	row, err := fetchOne[supabaseMember](data)
	if err != nil {
		return nil, err
	}
	return row.toMember(), nil
}

// UpdateMemberRole 更新成员角色
func (db *SupabaseDatabase) UpdateMemberRole(ctx context.Context, id string, role models.Role) error {
	payload := map[string]interface{}{
		"role":       role,
		"updated_at": time.Now().UTC(),
	}
	data, err := db.makeRequest(ctx, http.MethodPatch, "/members?id="+eq(id), payload)
	if err != nil {
		return err
	}
	_, err = fetchOne[supabaseMember](data)
	return err
}

// ================= Projects =================

// CreateProject 创建项目
func (db *SupabaseDatabase) CreateProject(ctx context.Context, p *models.Project) error {
	payload := map[string]interface{}{
		"name":            p.Name,
		"description":     p.Description,
		"status":          p.Status,
		"owner_id":        p.OwnerID,
		"max_members":     p.MaxMembers,
		"skills_required": nonNil(p.SkillsRequired),
	}
	data, err := db.makeRequest(ctx, http.MethodPost, "/projects", payload)
	if err != nil {
		return err
	}
	created, err := fetchOne[models.Project](data)
	if err != nil {
		return err
	}
	p.ID = created.ID
	p.CreatedAt = created.CreatedAt
	p.UpdatedAt = created.UpdatedAt
	p.MemberCount = 1
	return nil
}

// GetProject 获取项目（含成员数）
func (db *SupabaseDatabase) GetProject(ctx context.Context, id string) (*models.Project, error) {
	data, err := db.makeRequest(ctx, http.MethodGet, "/projects_with_counts?select=*&id="+eq(id), nil)
	if err != nil {
		return nil, err
	}
	return fetchOne[models.Project](data)
}

// ListProjects 列出项目
func (db *SupabaseDatabase) ListProjects(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	endpoint := "/projects_with_counts?select=*&order=created_at.desc"
	if filter.Status != "" {
		endpoint += "&status=" + eq(string(filter.Status))
	}
	if filter.OwnerID != "" {
		endpoint += "&owner_id=" + eq(filter.OwnerID)
	}
	data, err := db.makeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []models.Project{}, nil
		}
		return nil, err
	}
	return fetchAll[models.Project](data)
}

// UpdateProject 调用 update_project 函数，检查在函数的行锁内执行
func (db *SupabaseDatabase) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*models.Project, error) {
	var owner interface{}
	if patch.RequireOwner != "" {
		owner = patch.RequireOwner
	}
	now := patch.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	payload := map[string]interface{}{
		"p_project_id":      id,
		"p_name":            patch.Name,
		"p_description":     patch.Description,
		"p_status":          patch.Status,
		"p_max_members":     patch.MaxMembers,
		"p_skills_required": patch.SkillsRequired,
		"p_owner_id":        owner,
		"p_monotonic":       patch.Monotonic,
		"p_now":             now,
	}
	data, err := db.makeRequest(ctx, http.MethodPost, "/rpc/update_project", payload)
	if err != nil {
		return nil, err
	}
	return fetchOne[models.Project](data)
}

// DeleteProject 删除项目（成员关系由外键级联删除）
func (db *SupabaseDatabase) DeleteProject(ctx context.Context, id string) error {
	data, err := db.makeRequest(ctx, http.MethodDelete, "/projects?id="+eq(id), nil)
	if err != nil {
		return err
	}
	_, err = fetchOne[models.Project](data)
	return err
}

// ListProjectMembers 列出项目成员关系
func (db *SupabaseDatabase) ListProjectMembers(ctx context.Context, projectID string) ([]models.ProjectMembership, error) {
	data, err := db.makeRequest(ctx, http.MethodGet,
		"/project_memberships?select=*&order=joined_at.asc&project_id="+eq(projectID), nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []models.ProjectMembership{}, nil
		}
		return nil, err
	}
	return fetchAll[models.ProjectMembership](data)
}

// GetProjectMembership 获取单个成员关系
func (db *SupabaseDatabase) GetProjectMembership(ctx context.Context, projectID, memberID string) (*models.ProjectMembership, error) {
	data, err := db.makeRequest(ctx, http.MethodGet,
		"/project_memberships?select=*&project_id="+eq(projectID)+"&member_id="+eq(memberID), nil)
	if err != nil {
		return nil, err
	}
	return fetchOne[models.ProjectMembership](data)
}

// AddProjectMember 调用 join_project 函数
func (db *SupabaseDatabase) AddProjectMember(ctx context.Context, m *models.ProjectMembership) error {
	payload := map[string]interface{}{
		"p_project_id": m.ProjectID,
		"p_member_id":  m.MemberID,
	}
	data, err := db.makeRequest(ctx, http.MethodPost, "/rpc/join_project", payload)
	if err != nil {
		return err
	}
	created, err := fetchOne[models.ProjectMembership](data)
	if err != nil {
		return err
	}
	m.ID = created.ID
	m.Role = created.Role
	m.JoinedAt = created.JoinedAt
	return nil
}

// RemoveProjectMember 退出项目
func (db *SupabaseDatabase) RemoveProjectMember(ctx context.Context, projectID, memberID string) error {
	data, err := db.makeRequest(ctx, http.MethodDelete,
		"/project_memberships?project_id="+eq(projectID)+"&member_id="+eq(memberID), nil)
	if err != nil {
		return err
	}
	_, err = fetchOne[models.ProjectMembership](data)
	return err
}

// ================= Dashboard =================

// Stats 调用 dashboard_stats 函数
func (db *SupabaseDatabase) Stats(ctx context.Context) (*models.Stats, error) {
	data, err := db.makeRequest(ctx, http.MethodPost, "/rpc/dashboard_stats", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	stats := &models.Stats{}
	if err := json.Unmarshal(data, stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	if stats.Adhesions == nil {
		stats.Adhesions = map[models.AdhesionStatus]int{}
	}
	if stats.Projects == nil {
		stats.Projects = map[models.ProjectStatus]int{}
	}
	return stats, nil
}

// HealthCheck 健康检查
func (db *SupabaseDatabase) HealthCheck(ctx context.Context) error {
	_, err := db.makeRequest(ctx, http.MethodGet, "/members?select=id&limit=1", nil)
	return err
}

// Close 关闭连接
func (db *SupabaseDatabase) Close() error {
	db.httpClient.CloseIdleConnections()
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
