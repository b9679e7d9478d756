package handlers

import (
	"github.com/gin-gonic/gin"

	constants "github.com/CodeAndHammer/lockcards/internal/constants"
)

// Register mounts the drill routes. limit runs before every state-changing route.
func Register(router gin.IRouter, app *App, limit ...gin.HandlerFunc) {
	with := func(h func(*App, *gin.Context)) []gin.HandlerFunc {
		chain := append([]gin.HandlerFunc{}, limit...)
		return append(chain, func(c *gin.Context) { h(app, c) })
	}

	router.GET(constants.RouteHome, func(c *gin.Context) { HomeHandler(app, c) })
	router.GET(constants.RouteState, func(c *gin.Context) { StateHandler(app, c) })
	router.GET(constants.RouteHealthz, func(c *gin.Context) { HealthzHandler(app, c) })

	router.POST(constants.RouteCard, with(CardHandler)...)
	router.POST(constants.RouteNext, with(NextHandler)...)
	router.POST(constants.RouteLock, with(LockHandler)...)
	router.POST(constants.RoutePlay, with(PlayHandler)...)
	router.POST(constants.RouteSentence, with(SentenceHandler)...)
	router.POST(constants.RouteReset, with(ResetHandler)...)
	router.POST(constants.RouteLanguage, with(LanguageHandler)...)
}
