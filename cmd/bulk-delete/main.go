package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/camfeed/camfeed-server/internal/repo"
)

// Operational tool: wipes a range of stream registrations, e.g. after a
// load test left hundreds of entries behind.
func main() {
	// CLI flags
	start := flag.Int("start", 0, "start of stream ID range")
	end := flag.Int("end", 0, "end of stream ID range")
	redisAddr := flag.String("redis", "localhost:6379", "redis address")
	flag.Parse()

	if *start == 0 || *end == 0 || *end < *start {
		fmt.Println("Usage: ./bulk-delete -start=<start_id> -end=<end_id> [-redis=<addr>]")
		os.Exit(1)
	}

	log := buildLogger()
	log = log.Named("main")

	repository := repo.NewRepository(log, *redisAddr)
	defer repository.Close()

	total := (*end - *start) + 1
	for idx, id := 0, *start; id <= *end; idx, id = idx+1, id+1 {
		iterStart := time.Now()

		if err := repository.Streams.Delete(context.TODO(), int64(id)); err != nil {
			if errors.Is(err, repo.ErrStreamNotFound) {
				log.Warn("stream not found, skipping", zap.Int("streamID", id))
				continue
			}
			log.Fatal("stream deletion failed",
				zap.Int("streamID", id),
				zap.Error(err),
			)
		}

		log.Info("stream deleted",
			zap.Int("streamID", id),
			zap.Int("deleted", idx+1),
			zap.Int("total", total),
			zap.Duration("took", time.Since(iterStart)),
		)
	}
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}
