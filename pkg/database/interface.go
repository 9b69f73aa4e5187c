package database

import (
	"context"
	"errors"
	"os"
	"time"

	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/models"
)

// 存储层哨兵错误，由服务层翻译为 apperror
var (
	ErrNotFound         = errors.New("record not found")
	ErrConflict         = errors.New("record already exists")
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrDuplicateGenID   = errors.New("gen alixir id already taken")
	ErrNotPending       = errors.New("adhesion request is not pending")
	ErrCapacityExceeded = errors.New("project member capacity reached")
	ErrProjectClosed    = errors.New("project does not accept members")
	ErrNotOwner         = errors.New("requester does not own the project")
	ErrStatusRegression = errors.New("project status cannot move backwards")
	ErrAuraMissing      = errors.New("aura is not on the member profile")
)

// DatabaseInterface 定义数据库访问接口
//
// Mutations that guard a workflow invariant (PromoteAdhesion, RejectAdhesion,
// AddProjectMember, UpdateProject, DeleteProject, UpdateMemberProfile,
// VerifyMemberAura) are each one atomic unit.
type DatabaseInterface interface {
	// 入会申请
	CreateAdhesionRequest(ctx context.Context, req *models.AdhesionRequest) error
	GetAdhesionRequest(ctx context.Context, id string) (*models.AdhesionRequest, error)
	ListAdhesionRequests(ctx context.Context, status models.AdhesionStatus) ([]models.AdhesionRequest, error)
	HasPendingAdhesion(ctx context.Context, email string) (bool, error)
	// PromoteAdhesion flips a pending request to validated and inserts the member.
	// Returns ErrNotPending, ErrDuplicateGenID or ErrDuplicateEmail without side effects.
	PromoteAdhesion(ctx context.Context, p PromoteParams) error
	// RejectAdhesion flips a pending request to rejected. Returns ErrNotPending otherwise.
	RejectAdhesion(ctx context.Context, p RejectParams) (*models.AdhesionRequest, error)

	// 成员
	GetMemberByID(ctx context.Context, id string) (*models.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (*models.Member, error)
	ListMembers(ctx context.Context) ([]models.Member, error)
	// UpdateMemberProfile applies the non-nil fields of the patch to the current row;
	// auras that remain keep their verification.
	UpdateMemberProfile(ctx context.Context, id string, patch MemberPatch) (*models.Member, error)
	// VerifyMemberAura marks one aura of the current row verified. Returns ErrAuraMissing
	// when the member does not carry it.
	VerifyMemberAura(ctx context.Context, id, aura, verifierID string) (*models.Member, error)
	UpdateMemberRole(ctx context.Context, id string, role models.Role) error

	// 项目
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error)
	// UpdateProject applies the patch under the project lock, gates included.
	// Returns ErrNotFound, ErrNotOwner, ErrStatusRegression or ErrCapacityExceeded.
	UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*models.Project, error)
	// DeleteProject removes the project and all of its memberships.
	DeleteProject(ctx context.Context, id string) error
	ListProjectMembers(ctx context.Context, projectID string) ([]models.ProjectMembership, error)
	GetProjectMembership(ctx context.Context, projectID, memberID string) (*models.ProjectMembership, error)
	// AddProjectMember re-checks status, duplicates and capacity under a per-project lock.
	// Returns ErrNotFound, ErrProjectClosed, ErrConflict or ErrCapacityExceeded.
	AddProjectMember(ctx context.Context, m *models.ProjectMembership) error
	RemoveProjectMember(ctx context.Context, projectID, memberID string) error

	// 管理面板
	Stats(ctx context.Context) (*models.Stats, error)

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

// PromoteParams 入会申请通过时写入的数据
type PromoteParams struct {
	RequestID   string
	ValidatedBy string
	ValidatedAt time.Time
	Member      *models.Member
}

// RejectParams 入会申请拒绝时写入的数据
type RejectParams struct {
	RequestID   string
	ValidatedBy string
	Reason      *string
	RejectedAt  time.Time
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	UseLocalDB   bool
	LocalDataDir string
	PostgresDSN  string
	SupabaseURL  string
	SupabaseKey  string
	Debug        bool
}

// NewDatabase 根据环境与配置选择数据库实现
func NewDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	log := logging.WithComponent("database")

	if config.UseLocalDB {
		log.WithField("dir", config.LocalDataDir).Info("🗂️  Using local file database")
		db, err := NewLocalDatabase(config.LocalDataDir)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	if IsVercelEnvironment() {
		// Vercel 优先使用 Supabase（避免 IPv6）
		if config.SupabaseURL != "" && config.SupabaseKey != "" {
			log.Info("🚀  Using Supabase REST API (Vercel optimized)")
			return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey), nil
		}
		if config.PostgresDSN != "" {
			log.Warn("🌐  Using PostgreSQL in Vercel (may have IPv6 issues)")
			return openPostgres(config.PostgresDSN)
		}
		return nil, errors.New("no valid database configured for Vercel environment: set SUPABASE_URL+SUPABASE_SERVICE_KEY or POSTGRES_DSN")
	}

	// 非 Vercel 环境：PostgreSQL > Supabase
	if config.PostgresDSN != "" {
		log.Info("🗄️  Using PostgreSQL database")
		return openPostgres(config.PostgresDSN)
	}

	if config.SupabaseURL != "" && config.SupabaseKey != "" {
		log.Info("🧰  Using Supabase REST API")
		return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey), nil
	}

	return nil, errors.New("no valid database configuration found: configure POSTGRES_DSN or SUPABASE_URL+SUPABASE_SERVICE_KEY")
}

// IsVercelEnvironment 检查是否在Vercel环境中
func IsVercelEnvironment() bool {
	vercelEnv := os.Getenv("VERCEL_ENV")
	vercelURL := os.Getenv("VERCEL_URL")
	awsLambda := os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
	return vercelEnv != "" || vercelURL != "" || awsLambda != ""
}

func openPostgres(dsn string) (DatabaseInterface, error) {
	db, err := NewPostgresDatabase(dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}
