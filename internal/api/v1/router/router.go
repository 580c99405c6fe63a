package router

import (
	"context"
	"net/http"
	"strings"

	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/notify"
	"app/internal/pgmq"
	"app/internal/repository"
	"app/internal/service"
	"app/internal/tenant"

	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// TenantStack bundles one tenant's wired service layer. The periodic jobs
// iterate these instead of rebuilding repositories per run.
type TenantStack struct {
	Tenant   *tenant.Tenant
	Credits  service.CreditService
	Schedule service.ScheduleService
}

// New loads the tenant registry, wires a full repository/service/handler
// stack per tenant and returns the assembled HTTP handler. Requests are
// routed to a tenant stack by the X-Tenant-ID header.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, *tenant.Registry, []*TenantStack, error) {
	logger.Info().Msg("Router initialized")

	// 1. Load tenants: open every configured database and provision the
	// universal class type and the notification outbox queues up front.
	registry, err := tenant.Load(ctx, cfg, logger,
		func(ctx context.Context, t *tenant.Tenant) error {
			return repository.NewClassTypeRepo(t.DB).EnsureUniversal(ctx)
		},
		func(ctx context.Context, t *tenant.Tenant) error {
			client := pgmq.New(t.DB)
			if err := client.EnsureQueue(ctx, cfg.NotificationQueueName); err != nil {
				return err
			}
			return client.EnsureQueue(ctx, cfg.NotificationDLQName)
		},
	)
	if err != nil {
		return nil, nil, nil, err
	}

	// 2. Initialize validator (shared across tenants, it is stateless)
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 3. Build one repository/service/handler stack and one mux per tenant.
	// The JWT secret differs per tenant, so the auth middleware does too.
	muxes := make(map[string]*http.ServeMux, len(registry.IDs()))
	stacks := make([]*TenantStack, 0, len(registry.IDs()))
	for _, id := range registry.IDs() {
		t := registry.Get(id)
		tenantLogger := logger.With().Str("tenant", t.ID).Logger()

		classTypeRepo := repository.NewClassTypeRepo(t.DB)
		classRepo := repository.NewClassRepo(t.DB)
		userRepo := repository.NewUserRepo(t.DB)
		jobRepo := repository.NewJobRunRepo(t.DB)

		dispatcher := notify.NewOutboxDispatcher(pgmq.New(t.DB), cfg.NotificationQueueName, t.ID, tenantLogger)

		creditSvc := service.NewCreditService(userRepo, classTypeRepo, jobRepo, tenantLogger)
		classTypeSvc := service.NewClassTypeService(classTypeRepo, tenantLogger)
		classSvc := service.NewClassService(classRepo, classTypeRepo, userRepo, dispatcher, tenantLogger)
		enrollSvc := service.NewEnrollmentService(classRepo, classTypeRepo, userRepo, creditSvc, dispatcher, t.UTCOffsetMin, tenantLogger)
		scheduleSvc := service.NewScheduleService(classRepo, classTypeRepo, tenantLogger)

		classTypeHandler := handler.NewClassTypeHandler(classTypeSvc, validate, tenantLogger)
		classHandler := handler.NewClassHandler(classSvc, validate, tenantLogger)
		enrollHandler := handler.NewEnrollmentHandler(enrollSvc, validate, tenantLogger)
		creditHandler := handler.NewCreditHandler(creditSvc, validate, tenantLogger)
		scheduleHandler := handler.NewScheduleHandler(scheduleSvc, validate, tenantLogger)
		userHandler := handler.NewUserHandler(creditSvc, enrollSvc, validate, tenantLogger)

		authMiddleware := middleware.AuthMiddleware(t.APISecret, tenantLogger)

		tenantMux := http.NewServeMux()
		classTypeHandler.RegisterRoutes(tenantMux, authMiddleware)
		classHandler.RegisterRoutes(tenantMux, authMiddleware)
		enrollHandler.RegisterRoutes(tenantMux, authMiddleware)
		creditHandler.RegisterRoutes(tenantMux, authMiddleware)
		scheduleHandler.RegisterRoutes(tenantMux, authMiddleware)
		userHandler.RegisterRoutes(tenantMux, authMiddleware)
		muxes[t.ID] = tenantMux

		stacks = append(stacks, &TenantStack{Tenant: t, Credits: creditSvc, Schedule: scheduleSvc})
	}

	// 4. Tenant dispatch: X-Tenant-ID selects the stack.
	dispatch := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get("X-Tenant-ID")
		if tenantID == "" {
			http.Error(w, "Missing X-Tenant-ID header", http.StatusBadRequest)
			return
		}
		tenantMux, ok := muxes[tenantID]
		if !ok {
			http.Error(w, "Unknown tenant", http.StatusNotFound)
			return
		}
		tenantMux.ServeHTTP(w, r)
	})

	// 5. Create ServeMux router and mount the API under /v1
	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", dispatch))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Add Swagger documentation
	mux.HandleFunc("/swagger/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger/swagger.json")
	})
	mux.Handle("/swagger/", http.StripPrefix("/swagger/", http.FileServer(http.Dir("./docs/swagger/swagger-ui"))))

	// Redirect all other root-level requests to /v1/{path}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || strings.HasPrefix(r.URL.Path, "/swagger/") {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/v1"+r.URL.Path, http.StatusMovedPermanently)
	})

	// 6. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	})

	return middleware.LoggerMiddleware(c.Handler(mux)), registry, stacks, nil
}
