// Package httpapi serves the live notification websocket and operational endpoints.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inspectionDispatch/internal/auth"
	"inspectionDispatch/internal/logger"
	"inspectionDispatch/internal/notify"
)

// Options wires the router's collaborators. Gatherer defaults to the
// Prometheus default gatherer.
type Options struct {
	Hub       *notify.Hub
	JWTSecret string
	Log       logger.Logger
	Gatherer  prometheus.Gatherer
	// SendBuffer is the per-connection outbound queue size.
	SendBuffer int
	// CheckOrigin overrides the websocket origin check; nil allows any origin.
	CheckOrigin func(r *http.Request) bool
}

// NewRouter builds the gin engine with /ws, /healthz and /metrics.
func NewRouter(o Options) *gin.Engine {
	if o.Log == nil {
		o.Log = logger.NopLogger{}
	}
	if o.Gatherer == nil {
		o.Gatherer = prometheus.DefaultGatherer
	}
	checkOrigin := o.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	h := &wsHandler{
		hub:      o.Hub,
		secret:   o.JWTSecret,
		log:      o.Log,
		buffer:   o.SendBuffer,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: checkOrigin},
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "connections": o.Hub.Len()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/ws", h.serve)
	return r
}

type wsHandler struct {
	hub      *notify.Hub
	secret   string
	log      logger.Logger
	buffer   int
	upgrader websocket.Upgrader
}

// serve authenticates the handshake, then registers the connection under the
// caller's user id and role until the peer disconnects.
func (h *wsHandler) serve(c *gin.Context) {
	p, err := auth.FromRequest(c.Request, h.secret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "Invalid token: " + err.Error(),
			"data":    nil,
		})
		return
	}
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Warnf("websocket upgrade for user %d failed: %v", p.UserID, err)
		return
	}
	conn := notify.NewWSConn(ws, h.buffer)
	unregister := h.hub.Register(p.UserID, p.Kind, conn)
	h.log.Infof("user %d (%s) connected", p.UserID, p.Kind)

	conn.ReadLoop()
	unregister()
	h.log.Infof("user %d (%s) disconnected", p.UserID, p.Kind)
}

// Serve runs the router on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, handler http.Handler, log logger.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("http server shutdown: %v", err)
		}
		cancel()
	}()
	log.Infof("HTTP listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
