package rabbitmq

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client publishes and consumes task status events. Queues are declared
// lazily, once per client.
type Client struct {
	ctx            context.Context
	conn           *amqp.Connection
	channel        *amqp.Channel
	declaredQueues map[string]bool
}

func NewClient(ctx context.Context, amqpURL string, queueNames []string) (*Client, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			slog.Error("error occurred while closing connection", "error", closeErr.Error())
		}
		return nil, err
	}

	client := &Client{
		ctx:            ctx,
		conn:           conn,
		channel:        ch,
		declaredQueues: map[string]bool{},
	}

	for _, queueName := range queueNames {
		if err := client.ensureQueue(queueName); err != nil {
			slog.Error("Error while declaring queue", "queue_name", queueName, "error", err.Error())
			return nil, err
		}
	}

	return client, nil
}

func (c *Client) PublishMessage(queueName, body string) (err error) {
	if err = c.ensureQueue(queueName); err != nil {
		return err
	}

	return c.channel.PublishWithContext(
		c.ctx,
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(body),
		})
}

func (c *Client) ConsumeMessages(consumerName, queueName string, handler func(string)) error {
	if err := c.ensureQueue(queueName); err != nil {
		return err
	}

	msgs, err := c.channel.ConsumeWithContext(
		c.ctx,
		queueName,    // queue
		consumerName, // consumer
		true,         // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			handler(string(d.Body))
		}
	}()

	return nil
}

func (c *Client) Close() error {
	if err := c.channel.Close(); err != nil {
		return err
	}

	return c.conn.Close()
}

func (c *Client) IsHealthy() bool {
	if c.conn.IsClosed() {
		slog.Error("RabbitMQ connection is closed, Rabbit is not healthy")
		return false
	}

	ch, err := c.conn.Channel()
	if err != nil {
		slog.Error("Failed to open RabbitMQ channel, Rabbit is not healthy", "error", err)
		return false
	}
	defer func() {
		if closeErr := ch.Close(); closeErr != nil {
			slog.Error("Error occurred while closing rabbit channel created for health check", "error", closeErr.Error())
		}
	}()

	return true
}

func (c *Client) ensureQueue(queueName string) (err error) {
	if c.declaredQueues[queueName] {
		return nil
	}

	_, err = c.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return err
	}

	c.declaredQueues[queueName] = true
	return nil
}
