package cmd

import (
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	reuseport "github.com/kavu/go_reuseport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/luma/evnsq/storage"
)

// startStatusServer serves /ping, /stats and /metrics on addr until the
// returned server is shut down.
func startStatusServer(
	addr string,
	debugHTTP bool,
	store storage.Store,
	reg *prometheus.Registry,
	log *zap.Logger,
) (*http.Server, error) {
	router := statusRouter(debugHTTP, store, reg, log)

	listener, err := reuseport.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := s.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Status server errored", zap.Error(err))
		}
	}()

	return s, nil
}

func statusRouter(debugHTTP bool, store storage.Store, reg *prometheus.Registry, log *zap.Logger) *gin.Engine {
	router := setupRouter(debugHTTP, log)

	// Ping test
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	router.GET("/stats", func(c *gin.Context) {
		stats, err := store.Backup()
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}

		c.Data(http.StatusOK, "application/json", stats)
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return router
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Logs all requests, like a combined access and error log, with UTC
	// RFC3339 times
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping", "/metrics"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}
