package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mistakeknot/tapcall/internal/core"
)

// message is the frame written to subscribers.
type message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Handler upgrades GET /ws?tenant_id=<id> and streams the tenant's events
// until the client goes away or falls behind. Client frames are read and
// discarded.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := h.tenants.Resolve(strings.TrimSpace(r.URL.Query().Get("tenant_id")))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			h.logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusInternalError, "")

		sub := h.Subscribe(tenantID)
		defer sub.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.Read(ctx); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case ev, ok := <-sub.Events():
				if !ok {
					conn.Close(websocket.StatusPolicyViolation, "subscriber fell behind")
					return
				}
				if err := h.write(ctx, conn, ev); err != nil {
					if !errors.Is(err, context.Canceled) {
						h.logger.Debug("websocket write failed", zap.String("subscriber", sub.ID), zap.Error(err))
					}
					return
				}
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, ev core.Event) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, message{Event: string(ev.Type), Data: ev.Data})
}
