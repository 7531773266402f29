package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"punchd/config"
	"punchd/internal/adminapi"
	"punchd/internal/auth"
	"punchd/internal/db"
	"punchd/internal/health"
	"punchd/internal/iclock"
	"punchd/internal/logs"
	"punchd/internal/middleware"
	"punchd/internal/models"
	"punchd/internal/repo"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type App struct {
	cfg        *config.Config
	Router     *mux.Router
	httpServer *http.Server

	db     *gorm.DB
	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	// 1) Логи
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	// 2) БД (опционально: без драйвера сервер живёт в in-memory режиме)
	if drv := a.cfg.Database.Driver; drv != "" {
		d, err := db.Open(drv, a.cfg.Database.DSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		a.db = d
	}

	// ---- DB migrations (only if DB is connected) ----
	if a.db != nil {
		if err := a.db.AutoMigrate(
			// протокол/журнал
			&models.Device{},
			&models.PunchLog{},

			// конфигурация классификации и справочники
			&models.TimeWindow{},
			&models.Setting{},
			&models.Employee{},

			// auth/RBAC
			&models.User{},
			&models.Role{},
			&models.UserRole{},
			&models.AuditLog{},
		); err != nil {
			log.Fatalf("db migrate failed: %v", err)
		}
		if err := db.MigrateLegacyColumns(a.db); err != nil {
			logs.Logger.Warnf("legacy columns migration: %v", err)
		}
	}

	// 3) Роутер + middleware
	a.Router = mux.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.LoggerMW)

	// 4) Health маршруты
	if a.db != nil {
		health.RegisterRoutesWithDB(a.Router, a.db) // /healthz и /readyz
	} else {
		health.RegisterRoutes(a.Router) // только /healthz
	}

	// 5) Таймзона организации — для ServerTime терминалов
	tz, err := time.LoadLocation(a.cfg.Org.Timezone)
	if err != nil {
		logs.Logger.Warnf("timezone %q: %v; falling back to UTC", a.cfg.Org.Timezone, err)
		tz = time.UTC
	}

	// 6) Реестр устройств + хранилище посещаемости + протокольный контроллер
	registry := iclock.NewRegistry(a.cfg.Iclock.QueueCap)

	var (
		ctrl     *iclock.Controller
		attStore adminapi.Store
	)
	if a.db != nil {
		rep := repo.NewAttendanceRepo(a.db)
		if err := rep.SeedDefaults(); err != nil {
			logs.Logger.Errorf("seed defaults: %v", err)
		}
		ctrl = iclock.NewControllerWithSink(registry, rep, repo.NewDeviceStore(a.db), tz)
		attStore = rep
	} else {
		mem := repo.NewMemStore()
		ctrl = iclock.NewController(registry, mem, tz)
		attStore = mem
	}
	iclock.RegisterRoutes(a.Router, ctrl)

	// 7) Auth + админ-API
	authSvc := auth.NewService(a.db, a.cfg.Auth.Secret,
		time.Duration(a.cfg.Auth.TokenTTLMins)*time.Minute, a.cfg.Auth.Disabled)
	if authSvc.Enabled() {
		if err := authSvc.SeedDefaults(); err != nil {
			logs.Logger.Errorf("seed auth defaults: %v", err)
		}
		authSvc.RegisterRoutes(a.Router)
	}

	adminHTTP := adminapi.NewHTTP(attStore, registry, ctrl, authSvc, tz)
	adminHTTP.RegisterRoutes(a.Router)

	a.Router.Walk(func(rt *mux.Route, r *mux.Router, ancestors []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		log.Printf("route: %-6v %s", methods, path)
		return nil
	})
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return ErrNotInitialized
	}
	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; a.cancel() }()

	a.httpServer = &http.Server{
		Addr:         bind,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.httpServer.Shutdown(ctx)
	return nil
}

var ErrNotInitialized = &initError{"server not initialized (call Initialize(cfg) first)"}

type initError struct{ s string }

func (e *initError) Error() string { return e.s }
