// Package container provides dependency injection and lifecycle management
// for the membership back office.
package container

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/membership-approvals/internal/application/dispatcher"
	"github.com/garyjia/membership-approvals/internal/application/handler"
	"github.com/garyjia/membership-approvals/internal/application/port"
	"github.com/garyjia/membership-approvals/internal/application/service"
	"github.com/garyjia/membership-approvals/internal/config"
	"github.com/garyjia/membership-approvals/internal/domain/event"
	infraLark "github.com/garyjia/membership-approvals/internal/infrastructure/external/lark"
	"github.com/garyjia/membership-approvals/internal/infrastructure/persistence/repository"
	"github.com/garyjia/membership-approvals/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/membership-approvals/internal/infrastructure/relay"
	"github.com/garyjia/membership-approvals/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Workflow   port.WorkflowRepository
	Stage      port.StageRepository
	Request    port.RequestRepository
	Execution  port.ExecutionRepository
	Forum      port.ForumRepository
	Area       port.AreaRepository
	Unit       port.UnitRepository
	Agent      port.AgentRepository
	Invitation port.InvitationRepository
	Member     port.MemberRepository
	Ledger     port.LedgerRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Workflow     service.WorkflowService
	Request      service.RequestService
	Registration service.RegistrationService
}

// ProvideDatabase opens the database and applies pending migrations.
// Migrations come from cfg.MigrationsDir when set, else from the binary.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrations := database.EmbeddedMigrations()
	if cfg.MigrationsDir != "" {
		migrations = os.DirFS(cfg.MigrationsDir)
	}
	if err := database.NewMigrator(conn, logger).RunMigrations(migrations); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database bundle.
func ProvideRepositories(db *DatabaseBundle, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil || db.Conn == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	sqlDB := db.Conn.DB
	hierarchy := repository.NewHierarchyRepository(sqlDB, logger)

	return &RepositoryBundle{
		Workflow:   repository.NewWorkflowRepository(sqlDB, logger),
		Stage:      repository.NewStageRepository(sqlDB, logger),
		Request:    repository.NewRequestRepository(sqlDB, logger),
		Execution:  repository.NewExecutionRepository(sqlDB, logger),
		Forum:      hierarchy.Forums(),
		Area:       hierarchy.Areas(),
		Unit:       hierarchy.Units(),
		Agent:      repository.NewAgentRepository(sqlDB, logger),
		Invitation: repository.NewInvitationRepository(sqlDB, logger),
		Member:     repository.NewMemberRepository(sqlDB, logger),
		Ledger:     repository.NewLedgerRepository(sqlDB, logger),
	}, nil
}

// ProvideDispatcher creates the event bus in the configured delivery mode.
func ProvideDispatcher(cfg *config.EventsConfig, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{dispatcher.WithLogger(NewLoggerAdapter(logger))}
	if cfg != nil && cfg.Delivery == config.DeliverySync {
		opts = append(opts, dispatcher.WithSyncDelivery())
	}
	return dispatcher.NewDispatcher(opts...), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Config     *config.Config
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Config == nil || deps.Logger == nil {
		return nil, fmt.Errorf("config and logger are required")
	}

	serviceLogger := NewLoggerAdapter(deps.Logger)
	repos := deps.Repos
	conditions := service.NewConditionEvaluator()
	resolver := service.NewApproverResolver(repos.Forum, repos.Area, repos.Unit)

	requests := service.NewRequestService(
		repos.Workflow,
		repos.Stage,
		repos.Request,
		repos.Execution,
		resolver,
		conditions,
		deps.TxManager,
		deps.Dispatcher,
		serviceLogger,
		service.RequestServiceConfig{EnforceAssignment: deps.Config.Approval.EnforceAssignment},
	)

	return &ServiceBundle{
		Workflow: service.NewWorkflowService(
			repos.Workflow,
			repos.Stage,
			conditions,
			deps.TxManager,
			serviceLogger,
		),
		Request: requests,
		Registration: service.NewRegistrationService(
			repos.Agent,
			repos.Member,
			repos.Area,
			repos.Unit,
			requests,
			deps.TxManager,
			serviceLogger,
			service.RegistrationConfig{
				AgentWorkflowCode:     deps.Config.Registration.AgentWorkflowCode,
				MemberWorkflowCode:    deps.Config.Registration.MemberWorkflowCode,
				DefaultMemberFeeCents: deps.Config.Registration.DefaultMemberFeeCents,
			},
		),
	}, nil
}

// HandlerDeps holds dependencies required for the outcome handlers.
type HandlerDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Config     *config.Config
	Logger     *zap.Logger
}

// RegisterHandlers subscribes the agent and member outcome handlers.
func RegisterHandlers(deps *HandlerDeps) error {
	if deps == nil || deps.Repos == nil || deps.Dispatcher == nil || deps.Config == nil {
		return fmt.Errorf("handler dependencies are required")
	}

	log := NewLoggerAdapter(deps.Logger)
	repos, disp, cfg := deps.Repos, deps.Dispatcher, deps.Config
	agentCode, memberCode := cfg.Registration.AgentWorkflowCode, cfg.Registration.MemberWorkflowCode

	disp.SubscribeNamed(event.TypeRequestApproved, "activate_agent",
		handler.NewActivateAgentOnApproval(repos.Agent, repos.Invitation, deps.TxManager, disp, log, agentCode, cfg.Registration.InvitationTTL))
	disp.SubscribeNamed(event.TypeRequestRejected, "reject_agent",
		handler.NewRejectAgentOnRejection(repos.Agent, deps.TxManager, disp, log, agentCode))
	disp.SubscribeNamed(event.TypeRequestApproved, "activate_member",
		handler.NewActivateMemberOnApproval(repos.Member, repos.Ledger, deps.TxManager, disp, log, memberCode, handler.LedgerAccounts{
			Receivable: cfg.Ledger.ReceivableAccount,
			FeeIncome:  cfg.Ledger.FeeIncomeAccount,
		}))
	disp.SubscribeNamed(event.TypeRequestRejected, "reject_member",
		handler.NewRejectMemberOnRejection(repos.Member, deps.TxManager, disp, log, memberCode))
	return nil
}

// ProvideRelay connects to Redis and subscribes the stream relay to every event type.
// The returned func closes the Redis client.
func ProvideRelay(cfg *config.RedisConfig, disp dispatcher.Dispatcher, logger *zap.Logger) (func() error, error) {
	opts := relay.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
		Stream:   cfg.Stream,
		MaxLen:   cfg.MaxLen,
	}
	client, err := relay.NewRedisClient(opts)
	if err != nil {
		return nil, err
	}

	streamRelay := relay.NewStreamRelay(client, opts, logger)
	for _, t := range event.AllTypes() {
		disp.SubscribeNamed(t, "redis_relay", streamRelay)
	}
	return client.Close, nil
}

// ProvideNotifier subscribes the Lark approver notifier to stage assignments.
func ProvideNotifier(cfg *config.LarkConfig, disp dispatcher.Dispatcher, logger *zap.Logger) *infraLark.SDKClient {
	larkCfg := infraLark.Config{
		AppID:         cfg.AppID,
		AppSecret:     cfg.AppSecret,
		ReceiveIDType: cfg.ReceiveIDType,
		RoleChats:     cfg.RoleChats,
		BaseURL:       cfg.BaseURL,
	}
	client := infraLark.NewSDKClient(larkCfg, logger)
	disp.SubscribeNamed(event.TypeStageAssigned, "lark_notifier", infraLark.NewApproverNotifier(client, larkCfg, logger))
	return client
}
