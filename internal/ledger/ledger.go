package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	constants "github.com/CodeAndHammer/lockcards/internal/constants"
	models "github.com/CodeAndHammer/lockcards/internal/models"
	util "github.com/CodeAndHammer/lockcards/internal/util"
)

func Key(languageID string) string {
	return constants.LedgerKeyPrefix + languageID
}

// Load returns the persisted ledger for a language. Missing, unreadable or malformed
// data yields an empty ledger.
func Load(ctx context.Context, store Store, languageID string) models.LockLedger {
	raw, ok, err := store.Get(ctx, Key(languageID))
	if err != nil {
		util.LogWarnCtx(ctx, "Failed to read ledger for %s: %v, starting empty", languageID, err)
		return models.LockLedger{}
	}
	if !ok || raw == "" {
		return models.LockLedger{}
	}

	var ledger models.LockLedger
	if err := json.Unmarshal([]byte(raw), &ledger); err != nil {
		util.LogWarnCtx(ctx, "Malformed ledger for %s: %v, starting empty", languageID, err)
		return models.LockLedger{}
	}
	if ledger == nil {
		return models.LockLedger{}
	}
	for key, state := range ledger {
		if state.SkipCount < 0 || state.LockCount < 0 {
			util.LogWarnCtx(ctx, "Dropping ledger entry %q with negative counters", key)
			delete(ledger, key)
		}
	}
	return ledger
}

func Save(ctx context.Context, store Store, languageID string, ledger models.LockLedger) error {
	if ledger == nil {
		ledger = models.LockLedger{}
	}
	data, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := store.Set(ctx, Key(languageID), string(data)); err != nil {
		return fmt.Errorf("save ledger for %s: %w", languageID, err)
	}
	return nil
}

func Reset(ctx context.Context, store Store, languageID string) error {
	if err := store.Remove(ctx, Key(languageID)); err != nil {
		return fmt.Errorf("reset ledger for %s: %w", languageID, err)
	}
	util.LogInfoCtx(ctx, "Cleared ledger for language %s", languageID)
	return nil
}

// LoadLanguage returns the persisted active language id if it is one of allowed,
// otherwise the first allowed id.
func LoadLanguage(ctx context.Context, store Store, allowed ...string) string {
	if len(allowed) == 0 {
		return ""
	}
	raw, ok, err := store.Get(ctx, constants.CurrentLanguageKey)
	if err != nil {
		util.LogWarnCtx(ctx, "Failed to read current language: %v", err)
		return allowed[0]
	}
	if ok {
		for _, id := range allowed {
			if raw == id {
				return id
			}
		}
	}
	return allowed[0]
}

func SaveLanguage(ctx context.Context, store Store, languageID string) error {
	if err := store.Set(ctx, constants.CurrentLanguageKey, languageID); err != nil {
		return fmt.Errorf("save current language: %w", err)
	}
	return nil
}
