package helpers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrMalformedRoutingKey = errors.New("malformed routing key")

const (
	topicPrefix = "#."
	topicSuffix = ".#"
)

// QueueName - name of the i-th queue in the pool
func QueueName(i int) string {
	return fmt.Sprintf("queue-%d", i)
}

// ExchangeName - unique per-run exchange name prefixed with the exchange kind
func ExchangeName(kind string) string {
	return fmt.Sprintf("%s-%s", kind, uuid.NewString())
}

// BuildRoutingKey - topic exchanges get the id wrapped in "#" wildcards so it matches as any middle segment,
// every other kind uses the id verbatim
func BuildRoutingKey(kind, id string) string {
	if kind == amqp.ExchangeTopic {
		return topicPrefix + id + topicSuffix
	}
	return id
}

// IdentifierFromRoutingKey - reverse of BuildRoutingKey
func IdentifierFromRoutingKey(kind, key string) (string, error) {
	if kind != amqp.ExchangeTopic {
		if key == "" {
			return "", ErrMalformedRoutingKey
		}
		return key, nil
	}

	if !strings.HasPrefix(key, topicPrefix) || !strings.HasSuffix(key, topicSuffix) {
		return "", ErrMalformedRoutingKey
	}
	id := key[len(topicPrefix) : len(key)-len(topicSuffix)]
	if id == "" || strings.Contains(id, ".") {
		return "", ErrMalformedRoutingKey
	}

	return id, nil
}
