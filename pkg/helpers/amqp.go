package helpers

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const queueExpiresArg = "x-expires"

// QueueArgs - declaration arguments for a pool queue, expiry is applied only when positive
func QueueArgs(expires time.Duration) amqp.Table {
	if expires <= 0 {
		return nil
	}
	return amqp.Table{
		queueExpiresArg: int32(expires.Milliseconds()),
	}
}
