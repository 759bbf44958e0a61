package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/expense-tracker-backend/internal/database"
	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
	"github.com/AnshRaj112/expense-tracker-backend/pkg/utils"
)

// testArgon2Params keeps hashing fast in tests.
var testArgon2Params = utils.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// memoryAudit keeps recorded events in memory.
type memoryAudit struct {
	mu     sync.Mutex
	events []models.AuthEvent
}

func (a *memoryAudit) Record(_ context.Context, event models.AuthEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *memoryAudit) History(_ context.Context, email string, limit int) ([]models.AuthEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []models.AuthEvent{}
	for i := len(a.events) - 1; i >= 0 && len(out) < limit; i-- {
		if a.events[i].Email == email {
			out = append(out, a.events[i])
		}
	}
	return out, nil
}

func (a *memoryAudit) types() []models.AuthEventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.AuthEventType, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Type)
	}
	return out
}
