package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/camfeed/camfeed-server/internal/config"
	"github.com/camfeed/camfeed-server/internal/http/handler"
	mw "github.com/camfeed/camfeed-server/internal/http/middleware"
	"github.com/camfeed/camfeed-server/internal/infrastructure/decoder"
	"github.com/camfeed/camfeed-server/internal/metrics"
	"github.com/camfeed/camfeed-server/internal/repo"
	"github.com/camfeed/camfeed-server/internal/service"
	"github.com/camfeed/camfeed-server/pkg/decodecmd"
)

type Config struct {
	RedisAddr         string `yaml:"redis_address"`
	CamfeedServerAddr string `yaml:"camfeed_server_address"`
	Port              string `yaml:"port"`
	FFmpegPath        string `yaml:"ffmpeg_path"`
	MaxViewers        int    `yaml:"max_viewers"`
}

var serverConfig *Config

func init() {
	// Handle version display
	handleVersion()
}

func main() {
	// Read env
	isDev := os.Getenv("ENV") == "dev"

	// Load config
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Create Zap logger
	log := buildLogger()
	defer log.Sync()
	log = log.Named("main")

	// Create Gin router
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer() // Configure Gin's logger to use Zap
	r := gin.New()

	// Build collaborators
	repository := repo.NewRepository(log, serverConfig.RedisAddr)
	defer repository.Close()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	decodermgr := decoder.NewManager(log, serverConfig.FFmpegPath)
	feedsvc := service.NewFeedService(log, repository.Streams, service.DecoderLauncher(decodermgr), m)
	statussvc := service.NewStatusService(log, repository.Streams, feedsvc, service.StatusOptions{
		TTL:               250 * time.Millisecond,
		RefreshTimeout:    300 * time.Millisecond,
		AllowStaleOnError: true,
	})

	// Apply Gin middlewares
	{
		r.Use(gin.Recovery()) // Recovery first (outermost)
		r.Use(mw.RequestID()) // Attach request ID for tracing; early in the chain so it's available everywhere

		if isDev { // Enable CORS for local UI dev
			r.Use(cors.New(cors.Config{
				AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:3000"},
				AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowHeaders:     []string{"X-Request-ID", "Content-Type"},
				ExposeHeaders:    []string{"X-Request-ID", "X-Total-Count", "X-Cache", "X-Status-Generated-At"},
				AllowCredentials: true,
				MaxAge:           12 * time.Hour,
			}))
		} else { // Behind Nginx + TLS
			r.SetTrustedProxies([]string{"127.0.0.1", serverConfig.CamfeedServerAddr})
			r.Use(secure.New(secure.Config{
				SSLProxyHeaders: map[string]string{
					"X-Forwarded-Proto": "https", // Fix scheme for secure cookies
				},
			}))
		}

		r.Use(accessLog(log)) // Observability (logger, tracing)

		r.Use(func(c *gin.Context) {
			// Enforce a hard 1MB max request body. Stream registration
			// payloads are tiny; anything bigger is abuse.
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
			c.Next()
		})
	}

	// Register route handlers
	{
		r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

		// --- Management page ---
		r.GET("/", handler.NewIndexHandler(log, repository.Streams).Index)

		// --- Stream registry ---
		{
			streamshndlr := handler.NewStreamsHandler(log, repository.Streams, statussvc)
			requireValidID := mw.RequireValidStreamID()

			r.POST("/api/streams", streamshndlr.CreateStream)   // create one
			r.GET("/api/streams", streamshndlr.GetStreamList)   // get list
			r.GET("/api/streams/status", streamshndlr.Status)   // live status view
			r.GET("/api/streams/:id", requireValidID, streamshndlr.GetStream)       // get one
			r.DELETE("/api/streams/:id", requireValidID, streamshndlr.DeleteStream) // delete one
		}

		// --- Live feed ---
		{
			feedhndlr := handler.NewFeedHandler(log, feedsvc)
			r.GET("/video_feed/:id",
				mw.RequireValidStreamID(),
				mw.LimitConcurrentViewers(serverConfig.MaxViewers), // each viewer costs an ffmpeg process
				feedhndlr.VideoFeed,
			)
		}
	}

	httpsrv := &http.Server{
		Addr:              serverConfig.CamfeedServerAddr + ":" + serverConfig.Port,
		Handler:           r,
		ReadHeaderTimeout: 2 * time.Second,  // kills header-drip Slowloris
		ReadTimeout:       10 * time.Second, // full request read (incl. body)
		WriteTimeout:      0,                // MJPEG responses are unbounded; a write deadline would cut live feeds
		IdleTimeout:       60 * time.Second, // keep-alive cap
		MaxHeaderBytes:    1 << 20,          // 1MB cap
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("running HTTP server", zap.String("addr", httpsrv.Addr))
		if err := httpsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Live feeds never drain on their own; Shutdown returns once the
		// deadline passes and open viewer connections get cut.
		if err := httpsrv.Shutdown(shutdownCtx); err != nil {
			httpsrv.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("server closed")
}

// handleVersion prints build metadata and exits when -v/--version is provided.
func handleVersion() {
	v := flag.Bool("v", false, "print version and exit")
	flag.BoolVar(v, "version", false, "print version and exit")
	flag.Parse()

	if *v {
		fmt.Printf("camfeed %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildDate)
		os.Exit(0)
	}
}

// accessLog is a Gin middleware that records HTTP request/response details with Zap after handling.
func accessLog(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("access")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		// collect all errors from Gin context
		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		// errors.Join returns nil if errs is empty
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", latency),
			zap.String("request_id", mw.GetRequestID(c)),
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// helpers

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}

func loadConfig() error {
	data, err := os.ReadFile("camfeed-server.yaml")
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, &serverConfig); err != nil {
		return err
	}

	// Defaults
	if serverConfig.Port == "" {
		serverConfig.Port = "5000"
	}
	if serverConfig.FFmpegPath == "" {
		serverConfig.FFmpegPath = decodecmd.DefaultBinary
	}
	if serverConfig.MaxViewers <= 0 {
		serverConfig.MaxViewers = 64
	}

	return nil
}
