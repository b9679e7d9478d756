package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	constants "github.com/CodeAndHammer/lockcards/internal/constants"
	drill "github.com/CodeAndHammer/lockcards/internal/drill"
	speech "github.com/CodeAndHammer/lockcards/internal/speech"
	util "github.com/CodeAndHammer/lockcards/internal/util"
)

// Client is one browser's drill. Relay is nil when speech is played server-side.
type Client struct {
	ID    string
	Drill *drill.Drill
	Relay *speech.Relay
}

// Factory builds the drill of a newly seen client.
type Factory func(clientID string) *Client

type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client
	factory Factory
	ttl     time.Duration
}

func NewManager(factory Factory, ttl time.Duration) *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		factory: factory,
		ttl:     ttl,
	}
}

// GetOrCreateClientID returns the client id cookie, issuing a new one when absent.
func GetOrCreateClientID(c *gin.Context, maxAge time.Duration, secure bool) string {
	clientID, err := c.Cookie(constants.ClientCookieName)
	if err != nil || len(clientID) < constants.ClientIDMinLength {
		clientID = uuid.NewString()
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(constants.ClientCookieName, clientID, int(maxAge.Seconds()), "/", "", secure, true)
		util.LogInfoCtx(c.Request.Context(), "Created new client: %s", clientID)
	}
	return clientID
}

// Get returns the client's drill, creating and starting it on first use. created
// reports whether this call made the drill, so callers know its one load attempt
// already ran. A failed word list load is kept on the drill and rendered to the user.
func (m *Manager) Get(ctx context.Context, clientID string) (client *Client, created bool) {
	m.mu.RLock()
	client, exists := m.clients[clientID]
	m.mu.RUnlock()
	if exists {
		client.Drill.Touch()
		return client, false
	}

	util.LogInfoCtx(ctx, "Starting drill for client: %s", clientID)
	fresh := m.factory(clientID)
	if err := fresh.Drill.Start(ctx); err != nil {
		util.LogWarnCtx(ctx, "Drill for client %s started idle: %v", clientID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if client, exists = m.clients[clientID]; exists {
		client.Drill.Touch()
		return client, false
	}
	m.clients[clientID] = fresh
	return fresh, true
}

func (m *Manager) Drop(clientID string) {
	m.mu.Lock()
	delete(m.clients, clientID)
	m.mu.Unlock()
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CleanupExpired forgets drills idle for longer than the TTL. Their ledgers stay in
// the store and are reloaded on the next visit.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.ttl)
	expiredCount := 0
	for clientID, client := range m.clients {
		if client.Drill.LastAccess().Before(cutoff) {
			delete(m.clients, clientID)
			expiredCount++
		}
	}

	if expiredCount > 0 {
		util.LogInfo("Cleaned up %d expired sessions", expiredCount)
	}
	return expiredCount
}
