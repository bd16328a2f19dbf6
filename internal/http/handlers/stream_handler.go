package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/tbourn/go-feedback-pipeline/internal/fanout"
	"github.com/tbourn/go-feedback-pipeline/internal/http/middleware"
)

const (
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 20 * time.Second
)

// StreamOptions tunes the websocket upgrade.
type StreamOptions struct {
	// OriginPatterns lists host patterns allowed to open the socket from a
	// browser. Empty allows only same-origin requests.
	OriginPatterns []string
}

// Stream godoc
// @ID          streamEvents
// @Summary     Live event stream
// @Description Upgrades to a websocket and pushes the tenant's alert and feedback.classified events as JSON text frames. Slow consumers miss events rather than delay the pipeline.
// @Tags        Stream
//
// @Param       tenantId  path  string  true  "Tenant ID"  example(acme)
//
// @Success     101  {object} fanout.Event "Switching Protocols; frames carry fanout.Event"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /api/v1/tenants/{tenantId}/stream [get]
func (h *Handlers) Stream(opts StreamOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := tenantID(c)
		if tenant == "" {
			return
		}
		lg := middleware.LoggerFrom(c)

		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			// Accept has already written the HTTP error.
			lg.Debug().Err(err).Msg("websocket upgrade rejected")
			c.Abort()
			return
		}
		defer conn.CloseNow()

		events, cancel := h.events.Subscribe(tenant)
		defer cancel()

		// The client never sends; CloseRead handles control frames and
		// cancels ctx when the peer goes away.
		ctx := conn.CloseRead(c.Request.Context())
		lg.Info().Str("tenant_id", tenant).Msg("stream opened")

		err = pump(ctx, conn, events)
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			lg.Info().Str("tenant_id", tenant).Msg("stream closed by client")
		default:
			if err != nil && ctx.Err() == nil {
				lg.Warn().Err(err).Str("tenant_id", tenant).Msg("stream write failed")
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

func pump(ctx context.Context, conn *websocket.Conn, events <-chan fanout.Event) error {
	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, open := <-events:
			if !open {
				return nil
			}
			wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				return err
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
