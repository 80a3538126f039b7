package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type HealthHandler struct {
	mongoClient *mongo.Client
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	amqpConn    *amqp.Connection
}

func NewHealthHandler(mongoClient *mongo.Client, dbPool *pgxpool.Pool, redisClient *redis.Client, amqpConn *amqp.Connection) *HealthHandler {
	return &HealthHandler{mongoClient: mongoClient, dbPool: dbPool, redisClient: redisClient, amqpConn: amqpConn}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()
	checks := []struct {
		name  string
		check func(context.Context) error
	}{
		{"mongodb", func(ctx context.Context) error { return h.mongoClient.Ping(ctx, readpref.Primary()) }},
		{"postgres", h.dbPool.Ping},
		{"redis", func(ctx context.Context) error { return h.redisClient.Ping(ctx).Err() }},
		{"rabbitmq", func(context.Context) error {
			if h.amqpConn.IsClosed() {
				return amqp.ErrClosed
			}
			return nil
		}},
	}

	resp := gin.H{"status": "ok"}
	for _, dep := range checks {
		if err := dep.check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", dep.name: "unavailable"})
			return
		}
		resp[dep.name] = "connected"
	}
	c.JSON(http.StatusOK, resp)
}
