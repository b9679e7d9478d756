package main

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	config "github.com/CodeAndHammer/lockcards/internal/config"
	handlers "github.com/CodeAndHammer/lockcards/internal/handlers"
	session "github.com/CodeAndHammer/lockcards/internal/session"
)

type RateLimiterWithTime struct {
	Limiter    *rate.Limiter
	LastAccess time.Time
}

type App struct {
	Config         *config.Config
	Handlers       *handlers.App
	Sessions       *session.Manager
	IsProduction   bool
	CookieMaxAge   time.Duration
	StaticCacheAge time.Duration
	RateLimitRPS   int
	RateLimitBurst int
	RateLimiterTTL time.Duration
	LimiterMap     map[string]*RateLimiterWithTime
	LimiterMutex   sync.RWMutex
}

func (app *App) limiterCount() int {
	app.LimiterMutex.RLock()
	defer app.LimiterMutex.RUnlock()
	return len(app.LimiterMap)
}
