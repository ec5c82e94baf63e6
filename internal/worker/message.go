package worker

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/openrelik/openrelik-worker-dissect/internal/task"
)

// message is the Celery protocol v2 envelope as carried on the Redis
// broker: a base64-encoded JSON body of [args, kwargs, embed] plus routing
// headers and transport properties.
type message struct {
	Body            string     `json:"body"`
	ContentType     string     `json:"content-type"`
	ContentEncoding string     `json:"content-encoding"`
	Headers         headers    `json:"headers"`
	Properties      properties `json:"properties"`
}

type headers struct {
	ID      string `json:"id"`
	Task    string `json:"task"`
	Retries int    `json:"retries,omitempty"`
}

type properties struct {
	CorrelationID string       `json:"correlation_id,omitempty"`
	ReplyTo       string       `json:"reply_to,omitempty"`
	DeliveryTag   string       `json:"delivery_tag,omitempty"`
	BodyEncoding  string       `json:"body_encoding,omitempty"`
	DeliveryInfo  deliveryInfo `json:"delivery_info"`
}

type deliveryInfo struct {
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
}

// invocation is one decoded task request ready for dispatch.
type invocation struct {
	id   string
	name string
	req  *task.Request
}

// decodeMessage parses a broker message into an invocation. The task
// keyword arguments become the Request; positional args are not used by
// this worker's tasks.
func decodeMessage(raw []byte) (*invocation, error) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Headers.Task == "" {
		return nil, fmt.Errorf("message has no task header")
	}

	body := []byte(msg.Body)
	if msg.Properties.BodyEncoding == "base64" || msg.Properties.BodyEncoding == "" {
		decoded, err := base64.StdEncoding.DecodeString(msg.Body)
		if err != nil {
			return nil, fmt.Errorf("decode message body: %w", err)
		}
		body = decoded
	}

	var payload [3]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal message body: %w", err)
	}

	req := &task.Request{}
	if len(payload[1]) > 0 {
		if err := json.Unmarshal(payload[1], req); err != nil {
			return nil, fmt.Errorf("unmarshal task kwargs: %w", err)
		}
	}

	return &invocation{
		id:   msg.Headers.ID,
		name: msg.Headers.Task,
		req:  req,
	}, nil
}

// encodeMessage renders a broker message for the given task request. The
// counterpart of decodeMessage; used by tests and local tooling to enqueue
// work the way the orchestrator does.
func encodeMessage(name, queue string, req *task.Request) (id string, raw []byte, err error) {
	kwargs, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("marshal task kwargs: %w", err)
	}
	body, err := json.Marshal([]json.RawMessage{
		json.RawMessage("[]"),
		kwargs,
		json.RawMessage(`{"callbacks":null,"errbacks":null,"chain":null,"chord":null}`),
	})
	if err != nil {
		return "", nil, fmt.Errorf("marshal message body: %w", err)
	}

	id = uuid.New().String()
	raw, err = json.Marshal(message{
		Body:            base64.StdEncoding.EncodeToString(body),
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		Headers:         headers{ID: id, Task: name},
		Properties: properties{
			CorrelationID: id,
			DeliveryTag:   uuid.New().String(),
			BodyEncoding:  "base64",
			DeliveryInfo:  deliveryInfo{RoutingKey: queue},
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("marshal message: %w", err)
	}
	return id, raw, nil
}
