package drill

import (
	"crypto/rand"
	"math/big"

	"github.com/samber/lo"

	models "github.com/CodeAndHammer/lockcards/internal/models"
	util "github.com/CodeAndHammer/lockcards/internal/util"
)

// IntnFunc returns a uniformly random int in [0, n).
type IntnFunc func(n int) int

// EligiblePool returns the words that may be drawn: no lock state, not learned, or a
// lock whose skip count has reached its threshold. Word order is preserved.
func EligiblePool(words []models.WordEntry, ledger models.LockLedger) []models.WordEntry {
	return lo.Filter(words, func(entry models.WordEntry, _ int) bool {
		return !ledger.IsLocked(entry.Key)
	})
}

// PickNext draws uniformly from the eligible pool, redrawing while the result equals
// excludeKey and the pool has more than one word. An empty excludeKey excludes nothing.
func PickNext(words []models.WordEntry, ledger models.LockLedger, excludeKey string, intn IntnFunc) (models.WordEntry, error) {
	pool := EligiblePool(words, ledger)
	if len(pool) == 0 {
		return models.WordEntry{}, ErrEmptyPool
	}
	if len(pool) == 1 {
		return pool[0], nil
	}
	if intn == nil {
		intn = CryptoIntn
	}
	for {
		selected := pool[intn(len(pool))]
		if excludeKey == "" || selected.Key != excludeKey {
			return selected, nil
		}
	}
}

// CryptoIntn draws from crypto/rand and falls back to 0 if the entropy source fails.
func CryptoIntn(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		util.LogWarn("Error generating random number: %v, using fallback", err)
		return 0
	}
	return int(v.Int64())
}
