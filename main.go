package main

import (
	"context"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"

	ginGzip "github.com/gin-contrib/gzip"

	"github.com/gin-gonic/gin"

	config "github.com/CodeAndHammer/lockcards/internal/config"
	constants "github.com/CodeAndHammer/lockcards/internal/constants"
	drill "github.com/CodeAndHammer/lockcards/internal/drill"
	handlers "github.com/CodeAndHammer/lockcards/internal/handlers"
	ledger "github.com/CodeAndHammer/lockcards/internal/ledger"
	session "github.com/CodeAndHammer/lockcards/internal/session"
	speech "github.com/CodeAndHammer/lockcards/internal/speech"
	util "github.com/CodeAndHammer/lockcards/internal/util"
	words "github.com/CodeAndHammer/lockcards/internal/words"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		util.LogFatal("Failed to load configuration: %v", err)
	}

	isProduction := cfg.IsProduction()
	util.LogInfo("Starting Lockcards in %s mode", map[bool]string{true: "production", false: "development"}[isProduction])

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		util.LogFatal("Failed to open ledger store: %v", err)
	}
	defer closeStore()

	source := newWordSource(cfg.Words)
	langs := cfg.Languages()
	util.LogInfo("Drilling %s (%s) and %s (%s) with lock thresholds %v",
		langs[0].Name, langs[0].ID, langs[1].Name, langs[1].ID, cfg.Drill.LockCounts)

	sessions := session.NewManager(newClientFactory(cfg, store, source), cfg.Server.SessionTTL)

	app := &App{
		Config:         cfg,
		Sessions:       sessions,
		IsProduction:   isProduction,
		CookieMaxAge:   cfg.Server.CookieMaxAge,
		StaticCacheAge: cfg.Server.StaticCacheAge,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		RateLimiterTTL: cfg.Server.RateLimiterTTL,
		LimiterMap:     make(map[string]*RateLimiterWithTime),
	}
	app.Handlers = &handlers.App{
		Sessions:     sessions,
		IsProduction: isProduction,
		CookieMaxAge: cfg.Server.CookieMaxAge,
		StartTime:    time.Now(),
		LimiterCount: app.limiterCount,
	}

	if isProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.Use(requestIDMiddleware())
	router.Use(securityHeadersMiddleware())

	router.Use(app.csrfMiddleware())
	router.Use(app.validateCSRFMiddleware())

	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression,
		ginGzip.WithExcludedExtensions([]string{".svg", ".ico", ".png", ".jpg", ".jpeg", ".gif"})))

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		util.LogWarn("Failed to set trusted proxies: %v", err)
	}

	router.Use(func(c *gin.Context) {
		app.applyCacheHeaders(c, isProduction)
	})

	tpl, err := app.loadTemplates(router)
	if err != nil {
		util.LogFatal("Failed to parse templates: %v", err)
	}
	router.SetHTMLTemplate(tpl)

	handlers.Register(router, app.Handlers, app.rateLimitMiddleware())

	scheduler, err := app.startCleanupJobs()
	if err != nil {
		util.LogFatal("Failed to schedule cleanup jobs: %v", err)
	}
	defer scheduler.Stop()

	app.startServer(router)
}

func openStore(cfg config.StoreConfig) (ledger.Store, func(), error) {
	if cfg.Driver == "memory" {
		util.LogWarn("Using in-memory ledger store, progress is lost on restart")
		return ledger.NewMemoryStore(), func() {}, nil
	}
	store, err := ledger.OpenSQLiteStore(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	util.LogInfo("Ledger store opened at %s", cfg.Path)
	return store, func() {
		if err := store.Close(); err != nil {
			util.LogWarn("Failed to close ledger store: %v", err)
		}
	}, nil
}

func newWordSource(cfg config.WordsConfig) words.Source {
	if cfg.BaseURL != "" {
		util.LogInfo("Loading word lists from %s", cfg.BaseURL)
		return words.NewHTTPSource(cfg.BaseURL, cfg.Timeout)
	}
	util.LogInfo("Loading word lists from %s/", cfg.Dir)
	return words.NewDirSource(cfg.Dir)
}

// newClientFactory gives every browser its own ledger namespace. With TTS_COMMAND set,
// all clients share one local speaker; otherwise each browser plays its own relay.
func newClientFactory(cfg *config.Config, store ledger.Store, source words.Source) session.Factory {
	var shared *speech.Command
	if cfg.Drill.TTSCommand != "" {
		shared = speech.NewCommand(cfg.Drill.TTSCommand)
	}
	return func(clientID string) *session.Client {
		client := &session.Client{ID: clientID}
		var speaker speech.Speaker
		if shared != nil {
			speaker = shared
		} else {
			client.Relay = speech.NewRelay()
			speaker = client.Relay
		}
		client.Drill = drill.New(drill.Options{
			Languages:  cfg.Languages(),
			LockCounts: cfg.Drill.LockCounts,
			Store:      ledger.NewPrefixStore(store, constants.ClientKeyPrefix+clientID+":"),
			Source:     source,
			Speaker:    speaker,
		})
		return client
	}
}

func (app *App) loadTemplates(router *gin.Engine) (*template.Template, error) {
	if app.IsProduction && util.DirExists("dist") {
		util.LogInfo("Serving assets from dist/ directory")
		router.Static("/static", "./dist/static")
		baseTplDir := filepath.ToSlash(filepath.Join("dist", "templates"))
		master := template.New("")
		if _, err := master.ParseGlob(filepath.ToSlash(filepath.Join(baseTplDir, "*.html"))); err != nil {
			return nil, err
		}
		if _, err := master.ParseGlob(filepath.ToSlash(filepath.Join(baseTplDir, "partials", "*.html"))); err != nil {
			return nil, err
		}
		return master, nil
	}

	util.LogInfo("Serving development assets from source directories")
	router.Static("/static", "./static")
	return handlers.Templates()
}

func (app *App) startCleanupJobs() (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	if _, err := s.Every(10).Minutes().Do(func() { app.Sessions.CleanupExpired() }); err != nil {
		return nil, err
	}
	if _, err := s.Every(30).Minutes().Do(app.cleanupStaleRateLimiters); err != nil {
		return nil, err
	}
	s.StartAsync()
	util.LogInfo("Started cleanup jobs for sessions and rate limiters")
	return s, nil
}

func (app *App) startServer(router *gin.Engine) {
	port := app.Config.Server.Port

	var handler http.Handler = router
	if origins := app.Config.CORSOrigins(); len(origins) > 0 {
		util.LogInfo("Allowing cross-origin requests from %v", origins)
		handler = cors.New(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token", "HX-Request", "HX-Target", "HX-Current-URL"},
			ExposedHeaders:   []string{"HX-Trigger", "X-Request-Id"},
			AllowCredentials: true,
		}).Handler(router)
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		util.LogInfo("Shutdown signal received, shutting down server gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			util.LogWarn("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	util.LogInfo("Server starting on http://localhost:%s", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		util.LogFatal("Server failed to start: %v", err)
	}
	<-idleConnsClosed
	util.LogInfo("Server shutdown complete")
}

func (app *App) applyCacheHeaders(c *gin.Context, production bool) {
	if production && strings.HasPrefix(c.Request.URL.Path, "/static/") {
		cachecontrol.New(cachecontrol.Config{
			Public: true,
			MaxAge: cachecontrol.Duration(app.StaticCacheAge),
		})(c)
		c.Header("Vary", "Accept-Encoding")
		return
	}
	cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	})(c)
}
