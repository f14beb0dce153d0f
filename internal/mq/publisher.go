// Пакет mq — публикация заданий fingerprint-поиска в RabbitMQ.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/config"
)

// SearchRequestMessage — задание для matching-worker.
// FpSearchID — корреляционный идентификатор: worker обязан вернуть его
// вместе с результатом, чтобы результат попал в нужную запись поиска.
type SearchRequestMessage struct {
	// ExtractURL — ключ аудио-фрагмента в файловом хранилище
	ExtractURL string `json:"extract_url"`
	// FpSearchID — UUID записи поиска
	FpSearchID string `json:"fp_search_id"`
}

// Publisher — интерфейс публикации заданий поиска.
type Publisher interface {
	// Publish отправляет задание в очередь.
	Publish(ctx context.Context, msg SearchRequestMessage) error
	// CheckReady проверяет состояние соединения (readiness probe).
	CheckReady(ctx context.Context) error
	// Close закрывает канал и соединение.
	Close() error
}

// AMQPPublisher — реализация Publisher поверх RabbitMQ.
// Канал пересоздаётся при ошибке публикации; соединение — при следующей
// попытке, если закрыто.
type AMQPPublisher struct {
	url        string
	exchange   string
	routingKey string
	logger     *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher подключается к RabbitMQ и объявляет exchange.
func NewPublisher(cfg *config.Config, logger *slog.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		url:        cfg.AMQPUrl,
		exchange:   cfg.AMQPExchange,
		routingKey: cfg.AMQPRoutingKey,
		logger:     logger.With("component", "mq"),
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	p.logger.Info("Подключение к RabbitMQ установлено",
		"exchange", cfg.AMQPExchange,
		"routing_key", cfg.AMQPRoutingKey,
	)
	return p, nil
}

// connect устанавливает соединение, открывает канал и объявляет exchange.
// Вызывается под p.mu либо из конструктора.
func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("ошибка подключения к RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("ошибка открытия канала RabbitMQ: %w", err)
	}

	// durable direct exchange: задания переживают перезапуск брокера
	if err := ch.ExchangeDeclare(p.exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("ошибка объявления exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.ch = ch
	return nil
}

// ensureChannel возвращает рабочий канал, переподключаясь при необходимости.
func (p *AMQPPublisher) ensureChannel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	p.logger.Warn("Соединение с RabbitMQ потеряно, переподключение")
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p.ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, msg SearchRequestMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ошибка сериализации задания поиска: %w", err)
	}

	ch, err := p.ensureChannel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("ошибка публикации задания поиска: %w", err)
	}

	p.logger.Debug("Задание поиска опубликовано",
		"fp_search_id", msg.FpSearchID,
		"extract_url", msg.ExtractURL,
	)
	return nil
}

func (p *AMQPPublisher) CheckReady(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("соединение с RabbitMQ закрыто")
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
