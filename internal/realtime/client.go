package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"fanctl-backend/internal/fanctl"
)

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type speedRequest struct {
	FloorID string `json:"floorId"`
	FanID   string `json:"fanId"`
	RPM     *int   `json:"rpm"`
}

type multipleRequest struct {
	FloorID string          `json:"floorId"`
	Fans    []fanctl.Change `json:"fans"`
}

type errorPayload struct {
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	pingInterval := time.Duration(c.hub.cfg.PingIntervalSeconds) * time.Second
	pongWait := time.Duration(c.hub.cfg.PongTimeoutSeconds) * time.Second

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("Websocket read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	pingInterval := time.Duration(c.hub.cfg.PingIntervalSeconds) * time.Second
	pongWait := time.Duration(c.hub.cfg.PongTimeoutSeconds) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound frame. Successful changes are
// broadcast; failures go back to this client only.
func (c *Client) handleMessage(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Event {
	case EventPing:
		c.sendEvent(EventPong, nil)
	case EventUpdateFanSpeed:
		c.handleUpdateFanSpeed(msg)
	case EventUpdateMultipleFans:
		c.handleUpdateMultipleFans(msg)
	default:
		c.sendError(msg.Event, "unknown event: "+msg.Event)
	}
}

func (c *Client) handleUpdateFanSpeed(msg inbound) {
	if !c.identity.CanWrite {
		c.sendError(msg.Event, "access denied")
		return
	}
	var req speedRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.sendError(msg.Event, "invalid payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	fan, err := c.hub.controller.SetSpeed(ctx, req.FloorID, req.FanID, req.RPM)
	if err != nil {
		c.sendError(msg.Event, err.Error())
		return
	}
	c.hub.Broadcast(EventFanUpdated, fan)
}

func (c *Client) handleUpdateMultipleFans(msg inbound) {
	if !c.identity.CanWrite {
		c.sendError(msg.Event, "access denied")
		return
	}
	var req multipleRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.sendError(msg.Event, "invalid payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	summary, err := c.hub.controller.SetMultiple(ctx, req.FloorID, req.Fans)
	if err != nil {
		c.sendError(msg.Event, err.Error())
		return
	}
	c.hub.Broadcast(EventMultipleFansUpdated, summary)
}

// trySend queues a frame, dropping it when the client is slow or gone.
func (c *Client) trySend(frame []byte) {
	defer func() {
		recover() // send on a channel closed by Unregister
	}()

	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) sendEvent(event string, data any) {
	frame, err := encode(event, data)
	if err != nil {
		return
	}
	c.trySend(frame)
}

func (c *Client) sendError(event, message string) {
	c.sendEvent(EventError, errorPayload{Message: message, Event: event})
}
