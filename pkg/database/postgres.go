package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db *sqlx.DB
}

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string) (*PostgresDatabase, error) {
	log := logging.WithComponent("database")

	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	// 尝试多种连接策略来解决Vercel Lambda的IPv6问题
	strategies := []string{
		addConnectionParams(dsn, "connect_timeout=10"),
		dsn, // 最后尝试原始DSN
	}

	var lastErr error
	for i, strategy := range strategies {
		db, err := sqlx.Open("postgres", strategy)
		if err != nil {
			log.WithError(err).Warnf("❌ Strategy %d failed to open", i+1)
			lastErr = err
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			log.WithError(err).Warnf("❌ Strategy %d failed to ping", i+1)
			db.Close()
			lastErr = err
			continue
		}

		log.Infof("✅ PostgreSQL connection established with strategy %d", i+1)
		return &PostgresDatabase{db: db}, nil
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL with all strategies: %w", lastErr)
}

// NewPostgresFromDB wraps an existing connection (tests, scripts).
func NewPostgresFromDB(db *sqlx.DB) *PostgresDatabase {
	return &PostgresDatabase{db: db}
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + params
}

// translatePQError 将驱动错误映射为存储层哨兵错误
func translatePQError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			switch pqErr.Constraint {
			case "members_gen_alixir_id_key":
				return ErrDuplicateGenID
			case "members_email_key":
				return ErrDuplicateEmail
			}
			return ErrConflict
		case "22P02":
			// malformed uuid in a lookup
			return ErrNotFound
		}
	}
	return err
}

// textArray 避免 nil 切片写入 NULL
func textArray(values []string) pq.StringArray {
	if values == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(values)
}

// ================= Adhesion requests =================

// CreateAdhesionRequest 创建入会申请
func (db *PostgresDatabase) CreateAdhesionRequest(ctx context.Context, req *models.AdhesionRequest) error {
	query := `
		INSERT INTO adhesion_requests (first_name, last_name, email, country, pole, skills, aura, motivation, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := db.db.QueryRowxContext(ctx, query,
		req.FirstName, req.LastName, req.Email, req.Country, req.Pole, textArray(req.Skills), req.Aura, req.Motivation, req.Status,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(translatePQError(err), ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create adhesion request: %w", err)
	}
	return nil
}

// GetAdhesionRequest 获取入会申请
func (db *PostgresDatabase) GetAdhesionRequest(ctx context.Context, id string) (*models.AdhesionRequest, error) {
	var req models.AdhesionRequest
	if err := db.db.GetContext(ctx, &req, `SELECT * FROM adhesion_requests WHERE id = $1`, id); err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get adhesion request: %w", err)
	}
	return &req, nil
}

// ListAdhesionRequests 列出入会申请
func (db *PostgresDatabase) ListAdhesionRequests(ctx context.Context, status models.AdhesionStatus) ([]models.AdhesionRequest, error) {
	result := []models.AdhesionRequest{}
	var err error
	if status == "" {
		err = db.db.SelectContext(ctx, &result, `SELECT * FROM adhesion_requests ORDER BY created_at DESC`)
	} else {
		err = db.db.SelectContext(ctx, &result, `SELECT * FROM adhesion_requests WHERE status = $1 ORDER BY created_at DESC`, status)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list adhesion requests: %w", err)
	}
	return result, nil
}

// HasPendingAdhesion 检查邮箱是否已有待审核申请
func (db *PostgresDatabase) HasPendingAdhesion(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM adhesion_requests WHERE email = $1 AND status = 'pending')`, email)
	if err != nil {
		return false, fmt.Errorf("failed to check pending adhesion: %w", err)
	}
	return exists, nil
}

// PromoteAdhesion 在一个事务中通过申请并创建成员
func (db *PostgresDatabase) PromoteAdhesion(ctx context.Context, p PromoteParams) error {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status models.AdhesionStatus
	err = tx.GetContext(ctx, &status, `SELECT status FROM adhesion_requests WHERE id = $1 FOR UPDATE`, p.RequestID)
	if err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock adhesion request: %w", err)
	}
	if status != models.AdhesionPending {
		return ErrNotPending
	}

	m := p.Member
	insert := `
		INSERT INTO members (gen_alixir_id, email, pin_hash, full_name, country, pole, pco, skills, auras, role,
		                     adhesion_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id
	`
	err = tx.QueryRowxContext(ctx, insert,
		m.GenAlixirID, m.Email, m.PinHash, m.FullName, m.Country, m.Pole, m.PCO, textArray(m.Skills), m.Auras, m.Role,
		p.RequestID, p.ValidatedAt,
	).Scan(&m.ID)
	if err != nil {
		translated := translatePQError(err)
		if errors.Is(translated, ErrDuplicateGenID) || errors.Is(translated, ErrDuplicateEmail) {
			return translated
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}

	update := `
		UPDATE adhesion_requests
		SET status = 'validated', validated_by = $2, validated_at = $3, member_id = $4, updated_at = $3
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update, p.RequestID, p.ValidatedBy, p.ValidatedAt, m.ID); err != nil {
		return fmt.Errorf("failed to mark adhesion validated: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit promotion: %w", err)
	}

	requestID := p.RequestID
	m.AdhesionID = &requestID
	m.CreatedAt = p.ValidatedAt
	m.UpdatedAt = p.ValidatedAt
	return nil
}

// RejectAdhesion 条件更新：仅当申请仍待审核时生效
func (db *PostgresDatabase) RejectAdhesion(ctx context.Context, p RejectParams) (*models.AdhesionRequest, error) {
	query := `
		UPDATE adhesion_requests
		SET status = 'rejected', validated_by = $2, validated_at = $3, rejection_reason = $4, updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`
	var req models.AdhesionRequest
	err := db.db.GetContext(ctx, &req, query, p.RequestID, p.ValidatedBy, p.RejectedAt, p.Reason)
	if err == nil {
		return &req, nil
	}
	if !errors.Is(translatePQError(err), ErrNotFound) {
		return nil, fmt.Errorf("failed to reject adhesion request: %w", err)
	}

	// 区分不存在与状态不符
	if _, err := db.GetAdhesionRequest(ctx, p.RequestID); err != nil {
		return nil, err
	}
	return nil, ErrNotPending
}

// ================= Members =================

// GetMemberByID 根据ID获取成员
func (db *PostgresDatabase) GetMemberByID(ctx context.Context, id string) (*models.Member, error) {
	return db.getMember(ctx, `SELECT * FROM members WHERE id = $1`, id)
}

// GetMemberByEmail 根据邮箱获取成员
func (db *PostgresDatabase) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	return db.getMember(ctx, `SELECT * FROM members WHERE email = $1`, email)
}

func (db *PostgresDatabase) getMember(ctx context.Context, query string, arg string) (*models.Member, error) {
	var m models.Member
	if err := db.db.GetContext(ctx, &m, query, arg); err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

// ListMembers 列出所有成员
func (db *PostgresDatabase) ListMembers(ctx context.Context) ([]models.Member, error) {
	result := []models.Member{}
	if err := db.db.SelectContext(ctx, &result, `SELECT * FROM members ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return result, nil
}

// UpdateMemberProfile 在成员行锁内合并档案修改
func (db *PostgresDatabase) UpdateMemberProfile(ctx context.Context, id string, patch MemberPatch) (*models.Member, error) {
	return db.modifyMember(ctx, id, func(m *models.Member) error {
		patch.apply(m)
		return nil
	})
}

// VerifyMemberAura 在成员行锁内认证 Aura
func (db *PostgresDatabase) VerifyMemberAura(ctx context.Context, id, aura, verifierID string) (*models.Member, error) {
	return db.modifyMember(ctx, id, func(m *models.Member) error {
		return markAuraVerified(m, aura, verifierID)
	})
}

// modifyMember locks the member row, applies fn and writes the profile columns back.
func (db *PostgresDatabase) modifyMember(ctx context.Context, id string, fn func(m *models.Member) error) (*models.Member, error) {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var m models.Member
	if err := tx.GetContext(ctx, &m, `SELECT * FROM members WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock member: %w", err)
	}
	if err := fn(&m); err != nil {
		return nil, err
	}

	query := `
		UPDATE members
		SET full_name = $2, country = $3, skills = $4, auras = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := tx.QueryRowxContext(ctx, query, m.ID, m.FullName, m.Country, textArray(m.Skills), m.Auras).Scan(&m.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update member profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit member update: %w", err)
	}
	return &m, nil
}

// UpdateMemberRole 更新成员角色
func (db *PostgresDatabase) UpdateMemberRole(ctx context.Context, id string, role models.Role) error {
	res, err := db.db.ExecContext(ctx, `UPDATE members SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
	if err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ================= Projects =================

// CreateProject 创建项目
func (db *PostgresDatabase) CreateProject(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (name, description, status, owner_id, max_members, skills_required)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := db.db.QueryRowxContext(ctx, query,
		p.Name, p.Description, p.Status, p.OwnerID, p.MaxMembers, textArray(p.SkillsRequired),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	p.MemberCount = 1
	return nil
}

// GetProject 获取项目（含成员数）
func (db *PostgresDatabase) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := db.db.GetContext(ctx, &p, `SELECT * FROM projects_with_counts WHERE id = $1`, id); err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// ListProjects 列出项目
func (db *PostgresDatabase) ListProjects(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	query := `SELECT * FROM projects_with_counts`
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	result := []models.Project{}
	if err := db.db.SelectContext(ctx, &result, query, args...); err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return result, nil
}

// UpdateProject 在项目行锁内检查并更新，completed_at 只写一次
func (db *PostgresDatabase) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*models.Project, error) {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	project, count, err := lockProjectAndCount(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := patch.apply(project, count); err != nil {
		return nil, err
	}

	query := `
		UPDATE projects
		SET name = $2, description = $3, status = $4, max_members = $5, skills_required = $6,
		    completed_at = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = tx.QueryRowxContext(ctx, query,
		project.ID, project.Name, project.Description, project.Status, project.MaxMembers,
		textArray(project.SkillsRequired), project.CompletedAt,
	).Scan(&project.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit project update: %w", err)
	}
	return project, nil
}

// lockProjectAndCount 锁定项目行并返回成员数（含所有者）
func lockProjectAndCount(ctx context.Context, tx *sqlx.Tx, projectID string) (*models.Project, int, error) {
	var project models.Project
	if err := tx.GetContext(ctx, &project, `SELECT * FROM projects WHERE id = $1 FOR UPDATE`, projectID); err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("failed to lock project: %w", err)
	}
	var count int
	if err := tx.GetContext(ctx, &count,
		`SELECT 1 + COUNT(*) FROM project_memberships WHERE project_id = $1`, projectID); err != nil {
		return nil, 0, fmt.Errorf("failed to count project members: %w", err)
	}
	return &project, count, nil
}

// DeleteProject 删除项目（成员关系由外键级联删除）
func (db *PostgresDatabase) DeleteProject(ctx context.Context, id string) error {
	res, err := db.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireAffected(res)
}

// ListProjectMembers 列出项目成员关系
func (db *PostgresDatabase) ListProjectMembers(ctx context.Context, projectID string) ([]models.ProjectMembership, error) {
	result := []models.ProjectMembership{}
	err := db.db.SelectContext(ctx, &result,
		`SELECT * FROM project_memberships WHERE project_id = $1 ORDER BY joined_at`, projectID)
	if err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to list project members: %w", err)
	}
	return result, nil
}

// GetProjectMembership 获取单个成员关系
func (db *PostgresDatabase) GetProjectMembership(ctx context.Context, projectID, memberID string) (*models.ProjectMembership, error) {
	var m models.ProjectMembership
	err := db.db.GetContext(ctx, &m,
		`SELECT * FROM project_memberships WHERE project_id = $1 AND member_id = $2`, projectID, memberID)
	if err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project membership: %w", err)
	}
	return &m, nil
}

type projectLockRow struct {
	Status     models.ProjectStatus `db:"status"`
	OwnerID    string               `db:"owner_id"`
	MaxMembers int                  `db:"max_members"`
}

// AddProjectMember 加入项目：在项目行锁内复核状态、重复与容量
func (db *PostgresDatabase) AddProjectMember(ctx context.Context, m *models.ProjectMembership) error {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var row projectLockRow
	err = tx.GetContext(ctx, &row,
		`SELECT status, owner_id, max_members FROM projects WHERE id = $1 FOR UPDATE`, m.ProjectID)
	if err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock project: %w", err)
	}
	if !row.Status.Joinable() {
		return ErrProjectClosed
	}
	if row.OwnerID == m.MemberID {
		return ErrConflict
	}

	var count int
	if err := tx.GetContext(ctx, &count,
		`SELECT 1 + COUNT(*) FROM project_memberships WHERE project_id = $1`, m.ProjectID); err != nil {
		return fmt.Errorf("failed to count project members: %w", err)
	}
	if count >= row.MaxMembers {
		return ErrCapacityExceeded
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO project_memberships (project_id, member_id, role) VALUES ($1, $2, $3) RETURNING id, joined_at`,
		m.ProjectID, m.MemberID, m.Role,
	).Scan(&m.ID, &m.JoinedAt)
	if err != nil {
		if errors.Is(translatePQError(err), ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert project membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project join: %w", err)
	}
	return nil
}

// RemoveProjectMember 退出项目
func (db *PostgresDatabase) RemoveProjectMember(ctx context.Context, projectID, memberID string) error {
	res, err := db.db.ExecContext(ctx,
		`DELETE FROM project_memberships WHERE project_id = $1 AND member_id = $2`, projectID, memberID)
	if err != nil {
		if errors.Is(translatePQError(err), ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to remove project member: %w", err)
	}
	return requireAffected(res)
}

// ================= Dashboard =================

type statusCount struct {
	Status string `db:"status"`
	Count  int    `db:"n"`
}

// Stats 管理面板统计
func (db *PostgresDatabase) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{
		Adhesions: map[models.AdhesionStatus]int{},
		Projects:  map[models.ProjectStatus]int{},
	}

	var adhesions []statusCount
	if err := db.db.SelectContext(ctx, &adhesions,
		`SELECT status, COUNT(*) AS n FROM adhesion_requests GROUP BY status`); err != nil {
		return nil, fmt.Errorf("failed to count adhesions: %w", err)
	}
	for _, row := range adhesions {
		stats.Adhesions[models.AdhesionStatus(row.Status)] = row.Count
	}

	if err := db.db.GetContext(ctx, &stats.Members, `SELECT COUNT(*) FROM members`); err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	var projects []statusCount
	if err := db.db.SelectContext(ctx, &projects,
		`SELECT status, COUNT(*) AS n FROM projects GROUP BY status`); err != nil {
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}
	for _, row := range projects {
		stats.Projects[models.ProjectStatus(row.Status)] = row.Count
	}
	return stats, nil
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Close 关闭数据库连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}
