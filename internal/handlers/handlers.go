package handlers

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	constants "github.com/CodeAndHammer/lockcards/internal/constants"
	drill "github.com/CodeAndHammer/lockcards/internal/drill"
	session "github.com/CodeAndHammer/lockcards/internal/session"
	util "github.com/CodeAndHammer/lockcards/internal/util"
)

//go:embed templates/*.html templates/partials/*.html
var templateFS embed.FS

const pageTitle = "Lockcards - Vocabulary Drill"

type App struct {
	Sessions     *session.Manager
	IsProduction bool
	CookieMaxAge time.Duration
	StartTime    time.Time
	// LimiterCount reports active rate limiters for the health endpoint.
	LimiterCount func() int
}

// Templates parses the embedded page and partial templates.
func Templates() (*template.Template, error) {
	return template.New("").ParseFS(templateFS, "templates/*.html", "templates/partials/*.html")
}

// HomeHandler renders the page. A reload retries a failed word list load; the first
// visit does not, since creating the drill already made its load attempt.
func HomeHandler(app *App, c *gin.Context) {
	client, created := app.clientWithState(c)
	errCode := ""
	if !client.Drill.Loaded() {
		if created {
			errCode = constants.ErrorCodeLoadFailed
		} else {
			errCode = errorCode(client.Drill.Start(c.Request.Context()))
		}
	}
	renderPage(c, client, errCode)
}

func CardHandler(app *App, c *gin.Context) {
	client := app.client(c)
	err := client.Drill.ToggleMeaning(c.Request.Context())
	respond(c, client, errorCode(err))
}

func NextHandler(app *App, c *gin.Context) {
	client := app.client(c)
	err := client.Drill.Advance(c.Request.Context())
	respond(c, client, errorCode(err))
}

func LockHandler(app *App, c *gin.Context) {
	client := app.client(c)
	count, err := strconv.Atoi(c.Param(constants.LockCountParam))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidThreshold})
		return
	}
	err = client.Drill.Lock(c.Request.Context(), count)
	if errors.Is(err, drill.ErrInvalidThreshold) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidThreshold})
		return
	}
	respond(c, client, errorCode(err))
}

func PlayHandler(app *App, c *gin.Context) {
	client := app.client(c)
	err := client.Drill.Replay(c.Request.Context())
	respond(c, client, errorCode(err))
}

func SentenceHandler(app *App, c *gin.Context) {
	client := app.client(c)
	index, err := strconv.Atoi(c.Param(constants.SentenceIndexParam))
	if err == nil {
		err = client.Drill.SpeakSentence(c.Request.Context(), index)
	}
	if err != nil && !errors.Is(err, drill.ErrNotLoaded) && !errors.Is(err, drill.ErrNoCurrentWord) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidSentence})
		return
	}
	respond(c, client, errorCode(err))
}

// ResetHandler clears the active language's ledger. The two confirmations are collected
// in the browser and posted as confirm_first and confirm_second.
func ResetHandler(app *App, c *gin.Context) {
	client := app.client(c)
	answers := map[string]bool{
		constants.ResetFirstPrompt:  isYes(c.PostForm(constants.ConfirmFirstField)),
		constants.ResetSecondPrompt: isYes(c.PostForm(constants.ConfirmSecondField)),
	}
	done, err := client.Drill.Reset(c.Request.Context(), func(prompt string) bool {
		return answers[prompt]
	})
	if done {
		util.LogInfoCtx(c.Request.Context(), "Client %s reset %s progress", client.ID, client.Drill.Language().ID)
	}
	respond(c, client, errorCode(err))
}

func LanguageHandler(app *App, c *gin.Context) {
	client := app.client(c)
	err := client.Drill.SwitchLanguage(c.Request.Context())
	respond(c, client, errorCode(err))
}

func StateHandler(app *App, c *gin.Context) {
	client := app.client(c)
	c.JSON(http.StatusOK, client.Drill.View())
}

func HealthzHandler(app *App, c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	limiterCount := 0
	if app.LimiterCount != nil {
		limiterCount = app.LimiterCount()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"env":             map[bool]string{true: "production", false: "development"}[app.IsProduction],
		"active_sessions": app.Sessions.Count(),
		"active_limiters": limiterCount,
		"memory_alloc_mb": m.Alloc / 1024 / 1024,
		"memory_sys_mb":   m.Sys / 1024 / 1024,
		"memory_gc_count": m.NumGC,
		"uptime":          util.FormatUptime(time.Since(app.StartTime)),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (app *App) client(c *gin.Context) *session.Client {
	client, _ := app.clientWithState(c)
	return client
}

func (app *App) clientWithState(c *gin.Context) (*session.Client, bool) {
	clientID := session.GetOrCreateClientID(c, app.CookieMaxAge, app.IsProduction)
	return app.Sessions.Get(c.Request.Context(), clientID)
}

// respond renders the card partial for htmx requests and redirects everything else
// back to the page.
func respond(c *gin.Context, client *session.Client, errCode string) {
	if c.GetHeader("HX-Request") != "true" {
		c.Redirect(http.StatusSeeOther, constants.RouteHome)
		return
	}

	trigger := map[string]any{}
	if errCode != "" {
		trigger["server_error_code"] = errCode
	}
	if client.Relay != nil {
		if u, ok := client.Relay.Take(); ok {
			trigger[constants.SpeakTriggerName] = u
		}
	}
	if len(trigger) > 0 {
		if b, err := json.Marshal(trigger); err == nil {
			c.Header("HX-Trigger", string(b))
		} else {
			util.LogWarn("Failed to marshal HX-Trigger payload: %v", err)
		}
	}
	c.HTML(http.StatusOK, "card", templateData(c, client, errCode, ""))
}

func renderPage(c *gin.Context, client *session.Client, errCode string) {
	speak := ""
	if client.Relay != nil {
		if u, ok := client.Relay.Take(); ok {
			if b, err := json.Marshal(u); err == nil {
				speak = string(b)
			}
		}
	}
	c.HTML(http.StatusOK, "index.html", templateData(c, client, errCode, speak))
}

func templateData(c *gin.Context, client *session.Client, errCode, speak string) gin.H {
	csrfToken, _ := c.Get(constants.CSRFCookieName)
	return gin.H{
		"title":        pageTitle,
		"view":         client.Drill.View(),
		"speak":        speak,
		"error_code":   errCode,
		"csrf_token":   csrfToken,
		"all_locked":   constants.AllLockedMessage,
		"reset_first":  constants.ResetFirstPrompt,
		"reset_second": constants.ResetSecondPrompt,
	}
}

// errorCode maps drill errors to client error codes. Guard errors and the all-locked
// state render the current card without a code.
func errorCode(err error) string {
	var loadErr *drill.LoadError
	switch {
	case err == nil,
		errors.Is(err, drill.ErrEmptyPool),
		errors.Is(err, drill.ErrNoCurrentWord):
		return ""
	case errors.Is(err, drill.ErrNotLoaded):
		return constants.ErrorCodeNotLoaded
	case errors.As(err, &loadErr):
		return constants.ErrorCodeLoadFailed
	default:
		return constants.ErrorCodeStoreFailed
	}
}

func isYes(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1", "on":
		return true
	}
	return false
}
