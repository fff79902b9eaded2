// Package server - HTTP-Schnittstelle fuer Abfragen an ein geladenes Modell
// Beinhaltet: Server-Struct, Router-Registrierung, Middleware, Server-Start
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/7blacky7/ngramlm/envconfig"
	"github.com/7blacky7/ngramlm/lm"
)

var mode string = gin.DebugMode

// Server beantwortet Abfragen an ein Modell. Das Modell ist nach dem Laden
// unveraenderlich, Handler laufen ohne Sperren parallel.
type Server struct {
	addr  net.Addr
	model *lm.Model
	path  string
}

// New erstellt einen Server fuer das Modell aus path
func New(m *lm.Model, path string) *Server {
	return &Server{model: m, path: path}
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// allowedHost prueft ob der Host erlaubt ist
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	for _, tld := range []string{"localhost", "local", "internal"} {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

// allowedHostsMiddleware blockiert fremde Host-Header, solange der Server
// nur auf Loopback lauscht
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "ngramlm is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ngramlm is running") })

	r.GET("/api/show", s.ShowHandler)
	r.POST("/api/score", s.ScoreHandler)
	r.POST("/api/vocab", s.VocabHandler)

	return r
}

// Serve beantwortet Abfragen auf ln, bis SIGINT oder SIGTERM eintrifft
func (s *Server) Serve(ln net.Listener) error {
	s.addr = ln.Addr()
	slog.Info("server config", "env", envconfig.Values())

	srvr := &http.Server{Handler: s.GenerateRoutes()}

	ctx, done := context.WithCancel(context.Background())
	stop := make(chan struct{})
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			srvr.Shutdown(context.Background())
		case <-stop:
		}
		done()
	}()

	slog.Info(fmt.Sprintf("Listening on %s", ln.Addr()), "model", s.path, "order", s.model.Order())
	if err := srvr.Serve(ln); err != http.ErrServerClosed {
		close(stop)
		return err
	}
	<-ctx.Done()
	return nil
}
