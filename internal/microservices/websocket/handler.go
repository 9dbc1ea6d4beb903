package websocket

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// HTTP upgrade handler to WebSocket connections

// RunIDHeader is set on the upgrade response so the peer can look its run up later
const RunIDHeader = "X-Run-ID"

type HandlerOptions struct {
	AllowedOrigins []string   // empty or "*" => allow all
	EchoRateLimit  rate.Limit // inbound echo frames per second
	EchoRateBurst  int
}

func newUpgrader(origins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(origins),
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no Origin
		if origin == "" || len(allowed) == 0 {
			return true
		}
		return allowed[origin]
	}
}

// WSHandler: upgrade the request, then serve the connection until the peer leaves.
// the emitter runs alongside the echo read pump; the handler owns the connection lifecycle.
func WSHandler(hub *Hub, emitter *Emitter, opts HandlerOptions) gin.HandlerFunc {
	upgrader := newUpgrader(opts.AllowedOrigins)
	if opts.EchoRateLimit <= 0 {
		opts.EchoRateLimit = rate.Limit(10)
	}
	if opts.EchoRateBurst <= 0 {
		opts.EchoRateBurst = 20
	}

	return func(c *gin.Context) {
		// user ID is only present when the auth middleware is mounted
		userID := c.GetString("userID")
		clientID := uuid.NewString()

		header := http.Header{}
		header.Set(RunIDHeader, clientID)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, header)
		if err != nil {
			// the upgrader already wrote the HTTP error response
			slog.Warn("websocket_upgrade_failed", "error", err)
			return
		}

		client := NewClient(clientID, userID, conn, hub, rate.NewLimiter(opts.EchoRateLimit, opts.EchoRateBurst))
		hub.Register(client)
		defer func() {
			hub.Unregister(client)
			client.Close()
		}()

		// keep request values, drop its cancellation
		ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
		defer cancel()

		go client.PingLoop(ctx)

		reports := make(chan RunReport, 1)
		go func() {
			reports <- emitter.RunWithID(ctx, client.ID, client)
		}()

		if err := client.ReadPump(ctx); err != nil {
			slog.Debug("read_pump_stopped", "client_id", client.ID, "error", err)
		}
		cancel()

		report := <-reports
		slog.Info("connection_finished",
			"client_id", client.ID,
			"user_id", userID,
			"run_state", report.State,
			"sent", report.Sent,
		)
	}
}

// RunProgressHandler: GET /runs/:id => latest snapshot of a run
func RunProgressHandler(recorder ProgressRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if recorder == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "progress store disabled"})
			return
		}
		runID := c.Param("id")
		if _, err := uuid.Parse(runID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}
		progress, err := recorder.GetProgress(c.Request.Context(), runID)
		if err != nil {
			slog.Error("progress_lookup_failed", "run_id", runID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load progress"})
			return
		}
		if progress == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusOK, progress)
	}
}
