package stream

import (
	"context"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"zonewatch/internal/aggregate"
)

type wsMessage struct {
	Type string             `json:"type"`
	Data aggregate.Snapshot `json:"data"`
}

// WSSink writes snapshots as JSON text messages.
type WSSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewWSSink(conn *websocket.Conn, writeTimeout time.Duration) *WSSink {
	return &WSSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *WSSink) Send(ctx context.Context, snap aggregate.Snapshot) error {
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, s.conn, wsMessage{Type: "update", Data: snap})
}
