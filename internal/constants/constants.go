package constants

type contextKey string

const (
	LanguageThai     = "th"
	LanguageJapanese = "ja"
)

const (
	LedgerKeyPrefix     = "learnedStatus:"
	CurrentLanguageKey  = "currentLanguage"
	ClientKeyPrefix     = "client:"
	DefaultLockCounts   = "3,5,10"
	ClientIDMinLength   = 10
	SentenceIndexParam  = "index"
	LockCountParam      = "count"
	ConfirmFirstField   = "confirm_first"
	ConfirmSecondField  = "confirm_second"
	SpeakTriggerName    = "speak"
	AllLockedMessage    = "🎉 All words locked"
	NoActiveWordMessage = "No active word"
)

const (
	ResetFirstPrompt  = "Are you sure you want to reset?"
	ResetSecondPrompt = "⚠️ All markers will be deleted, are you sure?"
)

const (
	ClientCookieName = "client_id"
	CSRFCookieName   = "csrf_token"
)

const (
	RouteHome     = "/"
	RouteCard     = "/card"
	RouteNext     = "/next"
	RouteLock     = "/lock/:count"
	RoutePlay     = "/play"
	RouteSentence = "/sentence/:index"
	RouteReset    = "/reset"
	RouteLanguage = "/language"
	RouteState    = "/state"
	RouteHealthz  = "/healthz"
)

const (
	ErrorCodeNotLoaded        = "not_loaded"
	ErrorCodeInvalidThreshold = "invalid_threshold"
	ErrorCodeInvalidSentence  = "invalid_sentence"
	ErrorCodeLoadFailed       = "load_failed"
	ErrorCodeStoreFailed      = "store_failed"
)

const (
	RequestIDKey contextKey = "request_id"
)
