package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cricket-auction-backend/internal/auctioneer"
	"github.com/DoyleJ11/cricket-auction-backend/internal/hub"
	"github.com/DoyleJ11/cricket-auction-backend/internal/types"
	wire "github.com/DoyleJ11/cricket-auction-backend/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	pingInterval = 30 * time.Second
)

// Handler streams the auction to a websocket observer: a snapshot first,
// then every committed event. The same connection accepts operator
// commands and answers each with an ack or an error.
func Handler(a *auctioneer.Auctioneer, log *zap.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sub, err := a.Subscribe(ctx)
		if err != nil {
			conn.Close(websocket.StatusTryAgainLater, "auction unavailable")
			return
		}
		defer a.Unsubscribe(sub)
		log.Debug("observer joined", zap.String("observer", sub.ID))

		replies := make(chan types.ServerMessage, 16)

		// Writer goroutine
		go func() {
			defer cancel()
			writeLoop(ctx, conn, sub, replies, log)
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if ctx.Err() == nil {
						log.Debug("websocket read failed", zap.String("observer", sub.ID), zap.Error(err))
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				send(ctx, replies, types.ServerMessage{Type: wire.MsgError, Error: "bad json"})
				continue
			}
			cmd, err := types.ToCommand(cm)
			if err != nil {
				send(ctx, replies, types.ErrorMessage(cm.RequestID, err))
				continue
			}
			ev, err := a.Do(ctx, cmd)
			if err != nil {
				send(ctx, replies, types.ErrorMessage(cm.RequestID, err))
				continue
			}
			send(ctx, replies, types.ServerMessage{Type: wire.MsgAck, RequestID: cm.RequestID, Version: ev.Version})
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, sub *hub.Subscription, replies <-chan types.ServerMessage, log *zap.Logger) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		var msg types.ServerMessage
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.C:
			if !ok {
				// Dropped by the hub for falling behind.
				log.Info("observer dropped", zap.String("observer", sub.ID))
				conn.Close(websocket.StatusTryAgainLater, "too slow, reconnect")
				return
			}
			msg = types.FromHub(m)
		case msg = <-replies:
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
			continue
		}

		wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, conn, msg)
		wcancel()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Debug("websocket write failed", zap.String("observer", sub.ID), zap.Error(err))
			}
			return
		}
	}
}

func send(ctx context.Context, replies chan<- types.ServerMessage, msg types.ServerMessage) {
	select {
	case replies <- msg:
	case <-ctx.Done():
	}
}
