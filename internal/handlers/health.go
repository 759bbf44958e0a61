package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	statusOK       = "ok"
	statusDown     = "down"
	statusDisabled = "disabled"
)

// HealthHandler reports the state of each backing service. Only the SQL
// database is required; Redis and MongoDB are optional.
type HealthHandler struct {
	db    *sql.DB
	redis *redis.Client
	mongo *mongo.Client
}

func NewHealthHandler(db *sql.DB, redisClient *redis.Client, mongoClient *mongo.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, mongo: mongoClient}
}

type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]string{
		"database": probe(h.db != nil, func() error { return h.db.PingContext(ctx) }),
		"redis":    probe(h.redis != nil, func() error { return h.redis.Ping(ctx).Err() }),
		"mongodb":  probe(h.mongo != nil, func() error { return h.mongo.Ping(ctx, nil) }),
	}

	resp := HealthResponse{Status: statusOK, Components: components}
	status := http.StatusOK
	if components["database"] != statusOK {
		resp.Status = statusDown
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func probe(configured bool, ping func() error) string {
	if !configured {
		return statusDisabled
	}
	if err := ping(); err != nil {
		return statusDown
	}
	return statusOK
}
