package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/rpcgate/internal/auth"
	"github.com/danmuck/rpcgate/internal/observability"
	"github.com/danmuck/rpcgate/internal/protocol/frame"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// HTTPConfig configures the HTTP listener that carries the websocket route.
type HTTPConfig struct {
	// WWWRoot, when set, is served as static files for unmatched paths.
	WWWRoot     string
	CorsOrigins []string
	// MetricsAuth guards /metrics with a bearer token when non-nil.
	MetricsAuth auth.Validator
	// WSPath defaults to "/ws".
	WSPath string
}

type HTTPServer struct {
	hub      *Hub
	cfg      HTTPConfig
	engine   *gin.Engine
	upgrader websocket.Upgrader
	started  time.Time
}

func NewHTTPServer(hub *Hub, cfg HTTPConfig) *HTTPServer {
	if cfg.WSPath == "" {
		cfg.WSPath = "/ws"
	}
	s := &HTTPServer{
		hub:     hub,
		cfg:     cfg,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.CorsOrigins),
		},
	}
	s.engine = s.newEngine()
	return s
}

func (s *HTTPServer) newEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger), observability.RequestMetricsMiddleware())
	if len(s.cfg.CorsOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		if containsString(s.cfg.CorsOrigins, "*") {
			corsCfg.AllowAllOrigins = true
		} else {
			corsCfg.AllowOrigins = s.cfg.CorsOrigins
		}
		r.Use(cors.New(corsCfg))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.started).Round(time.Second).String(),
			"peers":  s.hub.Peers(),
		})
	})
	r.GET("/metrics", s.requireMetricsToken(), gin.WrapH(promhttp.Handler()))
	r.GET(s.cfg.WSPath, s.handleWebsocket)

	if s.cfg.WWWRoot != "" {
		files := http.FileServer(http.Dir(s.cfg.WWWRoot))
		r.NoRoute(gin.WrapH(files))
	}
	return r
}

func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Serve runs the HTTP server on ln until ctx is done.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", ln.Addr().String()).Str("ws", s.cfg.WSPath).Msg("transport.HTTPServer.Serve listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *HTTPServer) requireMetricsToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.MetricsAuth == nil {
			c.Next()
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if err := s.cfg.MetricsAuth.Validate(token); err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

type wsPeer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *wsPeer) send(enc frame.Encoding, payload []byte) error {
	kind := websocket.TextMessage
	if enc == frame.EncodingTLV {
		kind = websocket.BinaryMessage
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(kind, payload)
}

func (p *wsPeer) close() error { return p.conn.Close() }

func (p *wsPeer) kind() string { return "ws" }

// handleWebsocket upgrades and runs the read pump for one peer. Text frames
// carry JSON, binary frames carry TLV.
func (s *HTTPServer) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("transport.HTTPServer.handleWebsocket upgrade")
		return
	}
	conn.SetReadLimit(int64(s.hub.limits.MaxPayloadBytes))
	p := &wsPeer{conn: conn}
	id := s.hub.register(p)
	defer func() {
		s.hub.unregister(id)
		_ = conn.Close()
	}()

	ctx := c.Request.Context()
	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Uint32("peer", id).Err(err).Msg("transport.HTTPServer.handleWebsocket read")
			}
			return
		}
		enc := frame.EncodingJSON
		switch kind {
		case websocket.TextMessage:
		case websocket.BinaryMessage:
			enc = frame.EncodingTLV
		default:
			continue
		}
		if err := s.hub.deliver(ctx, id, enc, payload); err != nil {
			return
		}
	}
}

// originChecker allows same-host requests, requests without an Origin and
// any configured CORS origin.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		return strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://") == r.Host
	}
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
