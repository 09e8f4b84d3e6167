package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"

	"memberdir/internal/config"
	"memberdir/internal/database"
	"memberdir/internal/handlers"
	"memberdir/internal/metrics"
	"memberdir/internal/security"
	"memberdir/internal/service"
	"memberdir/internal/store"
	"memberdir/internal/uploads"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.CheckSecrets(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	status := handlers.NewStartupStatus()

	// Routes are registered once initialization finishes; until then the
	// startup gate answers everything except the health check.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", status.Health)

	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handlers.Logging(status.Gate(mux), m),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// Initialize database with config (supports sqlite, postgres, mysql)
	status.SetCurrentStep(handlers.StepDatabase)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	log.Printf("Database connection established (type: %s)", cfg.DatabaseType)
	status.CompleteStep(handlers.StepDatabase)

	// Run migrations
	status.SetCurrentStep(handlers.StepMigrations)
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")
	status.CompleteStep(handlers.StepMigrations)

	// Load templates
	status.SetCurrentStep(handlers.StepTemplates)
	templates, err := handlers.LoadTemplates(cfg.TemplatesPath)
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}
	log.Println("Templates loaded successfully")
	status.CompleteStep(handlers.StepTemplates)

	// Initialize services
	status.SetCurrentStep(handlers.StepServices)
	backend, err := uploads.NewBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize upload backend: %v", err)
	}
	log.Printf("Upload backend: %s", backend.Name())
	images := uploads.NewStorage(backend, cfg.UploadMaxSize)

	memberStore := store.New("members", db)
	codeStore := store.New("registration_codes", db)
	adminStore := store.New("admins", db)

	emailService, err := service.NewEmailService(cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to initialize email service: %v", err)
	}
	authService := service.NewAuthService(adminStore, cfg.SessionDuration, m)
	memberService := service.NewMemberService(memberStore, images, m)
	codeService := service.NewCodeService(codeStore, cfg.CodeExpiry, m)
	registrationService := service.NewRegistrationService(codeService, memberService, emailService, m)
	backupService := service.NewBackupService(memberStore, codeStore, adminStore)

	if created, err := authService.EnsureBootstrapAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to create bootstrap admin: %v", err)
	} else if created {
		log.Printf("Bootstrap admin %s created", cfg.AdminUsername)
	}

	var googleOAuth *oauth2.Config
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		googleOAuth = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		}
	}

	// Initialize handlers
	sessions := handlers.NewSessionStore(cfg.SessionSecret)
	invites := security.NewInviteSigner(cfg.SessionSecret)
	middleware := handlers.NewMiddleware(authService, security.NewCSRFGenerator(cfg.SessionSecret), security.NewRateLimiter(10, time.Minute))
	directoryHandler := handlers.NewDirectoryHandler(memberService, images, sessions, templates)
	registerHandler := handlers.NewRegisterHandler(registrationService, invites, sessions, templates)
	authHandler := handlers.NewAuthHandler(authService, templates, googleOAuth, cfg.AppBaseURL)
	adminHandler := handlers.NewAdminHandler(templates, memberService, codeService, emailService, backupService, invites, middleware, sessions, cfg.AppBaseURL)
	status.CompleteStep(handlers.StepServices)

	// Static files and images
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticFilesPath))))
	mux.HandleFunc("GET /uploads/{kind}/{name}", directoryHandler.ServeUpload)
	mux.Handle("GET /metrics", m.Handler())

	// Public routes
	mux.HandleFunc("GET /", directoryHandler.Directory)
	mux.HandleFunc("GET /profile", directoryHandler.Profile)
	mux.HandleFunc("GET /register", registerHandler.ShowRegister)
	mux.HandleFunc("POST /register", middleware.RateLimit(registerHandler.Register))
	mux.HandleFunc("GET /register/invite", registerHandler.Invite)
	mux.HandleFunc("GET /register/success", registerHandler.Success)

	// Admin authentication
	mux.HandleFunc("GET /admin/login", authHandler.ShowLogin)
	mux.HandleFunc("POST /admin/login", middleware.RateLimit(authHandler.Login))
	mux.HandleFunc("POST /admin/logout", authHandler.Logout)
	mux.HandleFunc("GET /auth/google/start", authHandler.StartGoogle)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)

	// Admin routes
	mux.HandleFunc("GET /admin", middleware.RequireAdmin(adminHandler.ShowAdminDashboard))
	mux.HandleFunc("GET /admin/members/add", middleware.RequireAdmin(adminHandler.ShowAddMember))
	mux.HandleFunc("POST /admin/members/add", middleware.RequireAdmin(middleware.CSRFProtect(adminHandler.AddMember)))
	mux.HandleFunc("GET /admin/members/edit", middleware.RequireAdmin(adminHandler.ShowEditMember))
	mux.HandleFunc("POST /admin/members/edit", middleware.RequireAdmin(middleware.CSRFProtect(adminHandler.EditMember)))
	mux.HandleFunc("POST /admin/members/delete", middleware.RequireAdmin(middleware.CSRFProtect(adminHandler.DeleteMember)))
	mux.HandleFunc("GET /admin/pending", middleware.RequireAdmin(adminHandler.ShowPending))
	mux.HandleFunc("POST /admin/pending/approve", middleware.RequireAdmin(middleware.CSRFProtect(adminHandler.ApprovePending)))
	mux.HandleFunc("POST /admin/pending/reject", middleware.RequireAdmin(middleware.CSRFProtect(adminHandler.RejectPending)))
	mux.HandleFunc("GET /admin/codes", middleware.RequireAdmin(adminHandler.ShowCodes))
	mux.HandleFunc("POST /admin/codes", middleware.RequireAdmin(middleware.CSRFProtect(adminHandler.PostCodes)))
	mux.HandleFunc("POST /admin/codes/invite", middleware.RequireAdmin(middleware.CSRFProtect(adminHandler.InviteCode)))
	mux.HandleFunc("GET /admin/backup", middleware.RequireAdmin(adminHandler.ShowBackup))
	mux.HandleFunc("GET /admin/backup/export", middleware.RequireAdmin(adminHandler.ExportDatabase))
	mux.HandleFunc("POST /admin/backup/import", middleware.RequireAdmin(middleware.CSRFProtect(adminHandler.ImportDatabase)))

	// Hourly expired session cleanup
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", func() {
		n, err := authService.CleanupExpiredSessions()
		if err != nil {
			log.Printf("Error cleaning up expired sessions: %v", err)
			return
		}
		if n > 0 {
			log.Printf("Removed %d expired admin sessions", n)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule session cleanup: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	status.MarkReady()
	log.Println("Server ready")

	if err := g.Wait(); err != nil {
		log.Printf("Server failed: %v", err)
	}
}
