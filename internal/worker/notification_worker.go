package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopsphere/shopsphere-api/internal/mailer"
	"github.com/shopsphere/shopsphere-api/internal/model"
	"github.com/shopsphere/shopsphere-api/internal/repository"
)

const (
	notificationQueue = "notifications"
	dlxExchange       = "notifications.dlx"
	dlqQueueName      = "notifications.dlq"
	idempotencyTTL    = 24 * time.Hour
)

// errSkip marks a message that can never succeed; it is acked and dropped.
var errSkip = errors.New("notification target missing")

// SetupRabbitMQ declares the notification queue and its dead-letter queue.
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, notificationQueue, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(notificationQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": notificationQueue,
	}); err != nil {
		return fmt.Errorf("declare notification queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher queues notifications for the worker.
type Publisher struct {
	channel publisher
}

func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{channel: ch}
}

func (p *Publisher) Enqueue(ctx context.Context, kind model.NotificationKind, userID, orderID string) error {
	n := model.Notification{ID: uuid.NewString(), Kind: kind, UserID: userID, OrderID: orderID}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	err = p.channel.PublishWithContext(ctx, "", notificationQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    n.ID,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

type NotificationWorker struct {
	channel     *amqp.Channel
	userRepo    repository.UserRepository
	orderRepo   repository.OrderRepository
	mailer      mailer.Mailer
	redisClient *redis.Client
	log         *zap.Logger
	done        chan struct{}
}

func NewNotificationWorker(
	ch *amqp.Channel,
	userRepo repository.UserRepository,
	orderRepo repository.OrderRepository,
	m mailer.Mailer,
	redisClient *redis.Client,
	log *zap.Logger,
) *NotificationWorker {
	return &NotificationWorker{
		channel:     ch,
		userRepo:    userRepo,
		orderRepo:   orderRepo,
		mailer:      m,
		redisClient: redisClient,
		log:         log,
		done:        make(chan struct{}),
	}
}

func (w *NotificationWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(notificationQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("notification worker started")
	return nil
}

func (w *NotificationWorker) Stop() { close(w.done) }

func (w *NotificationWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var n model.Notification
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		w.log.Error("unmarshal notification", zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With(zap.String("notification_id", n.ID), zap.String("kind", string(n.Kind)), zap.String("order_id", n.OrderID))

	key := "notification_sent:" + n.ID
	if w.redisClient != nil {
		exists, err := w.redisClient.Exists(ctx, key).Result()
		if err != nil {
			log.Error("check idempotency key", zap.Error(err))
			_ = msg.Nack(false, true)
			return
		}
		if exists > 0 {
			log.Info("notification already sent, skipping")
			_ = msg.Ack(false)
			return
		}
	}

	if err := w.deliver(ctx, n); err != nil {
		if errors.Is(err, errSkip) {
			log.Warn("notification dropped", zap.Error(err))
			_ = msg.Ack(false)
			return
		}
		log.Error("send notification failed", zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	if w.redisClient != nil {
		if err := w.redisClient.Set(ctx, key, "1", idempotencyTTL).Err(); err != nil {
			log.Error("set idempotency key", zap.Error(err))
		}
	}

	_ = msg.Ack(false)
	log.Info("notification sent")
}

func (w *NotificationWorker) deliver(ctx context.Context, n model.Notification) error {
	user, err := w.userRepo.GetByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %s: %w", n.UserID, errSkip)
	}
	order, err := w.orderRepo.GetByID(ctx, n.OrderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order %s: %w", n.OrderID, errSkip)
	}

	msg, err := renderEmail(n.Kind, user, order)
	if err != nil {
		return err
	}
	return w.mailer.Send(ctx, msg)
}
