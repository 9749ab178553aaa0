package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"gamification-service/internal/app"
	"gamification-service/internal/logging"
)

type WSHandler struct {
	service  *app.GamificationService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GamificationService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS streams committed score events to the client. With ?userId= the
// stream is limited to that user and the client may submit scores as them.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if log := logging.FromContext(r.Context()); log != nil {
			log.WithError(err).Warn("ws upgrade failed")
		}
		return
	}
	defer conn.Close()

	events, cancel := h.service.Subscribe(r.Context())
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// single writer goroutine; gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				if log := logging.FromContext(r.Context()); log != nil {
					log.WithError(err).Debug("ws write error")
				}
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if userID != "" && ev.UserID != userID {
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: "scoreEvent", Payload: ev}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) bool {
		return enqueue(send, writerDone, msg)
	}
	reply(outboundMessage[any]{Type: "subscribed", Payload: map[string]string{"userId": userID}})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !reply(h.handle(r.Context(), userID, inbound)) {
			break
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// handle answers one inbound message.
func (h *WSHandler) handle(ctx context.Context, userID string, inbound inboundMessage) outboundMessage[any] {
	fail := func(msg string) outboundMessage[any] {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
	}
	switch inbound.Type {
	case "submitScore":
		if userID == "" {
			return fail("userId query parameter required to submit scores")
		}
		var payload scorePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fail("invalid score payload")
		}
		sub, err := payload.submission()
		if err != nil {
			return fail(err.Error())
		}
		result, err := h.service.SubmitScore(ctx, userID, sub)
		if err != nil {
			return fail(classify(err).Message)
		}
		return outboundMessage[any]{Type: "scoreResult", Payload: result}
	default:
		return fail("unsupported message type")
	}
}

// enqueue hands msg to the writer goroutine. It reports false once the writer
// has exited, so callers never block on a connection nobody drains.
func enqueue(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}
