// Command cinehub-ingest runs catalog ingestion in the foreground, outside
// the job queue.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/redis/go-redis/v9"

	"github.com/JustinTDCT/CineHub/internal/app"
	"github.com/JustinTDCT/CineHub/internal/config"
	"github.com/JustinTDCT/CineHub/internal/ingest"
	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/models"
)

var kinds = map[string]models.MediaType{
	"shows":  models.MediaTypeShow,
	"movies": models.MediaTypeMovie,
}

func main() {
	cfg := config.Load()

	var (
		cli = kingpin.New("cinehub-ingest", "Import shows and movies from TMDB into the CineHub catalog.")

		debug     = cli.Flag("debug", "verbose logging").Default("false").Bool()
		noStatus  = cli.Flag("no-status", "do not publish progress to redis").Bool()
		redisAddr = cli.Flag("redis", "redis address for progress status").Default(cfg.RedisAddr).String()

		runCmd   = cli.Command("run", "ingest popular titles page by page")
		runKind  = runCmd.Arg("kind", "shows or movies").Required().Enum("shows", "movies")
		runPages = runCmd.Flag("pages", "number of listing pages").Default(fmt.Sprint(cfg.IngestPages)).Int()
		runRoot  = runCmd.Flag("root", "poster storage root").Default(cfg.DataDir).String()

		genresCmd = cli.Command("genres", "seed the genre vocabulary for shows and movies")

		statusCmd = cli.Command("status", "print the last recorded progress per kind")
	)

	command := kingpin.MustParse(cli.Parse(os.Args[1:]))
	logger.Init(cfg.IsDevelopment(), cfg.Debug || *debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var status *ingest.RedisStatus
	if !*noStatus {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		status = ingest.NewRedisStatus(rdb)
	}

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = printStatus(ctx, status)
	case runCmd.FullCommand():
		err = withRuntime(ctx, cfg, status, func(o *ingest.Orchestrator) error {
			rep, err := o.Run(ctx, kinds[*runKind], *runPages, *runRoot)
			if rep != nil {
				fmt.Printf("%s: %d reconciled, %d skipped, %d failed, %d/%d pages (%s)\n",
					rep.Kind, rep.Reconciled, rep.Skipped, rep.Failed, rep.PagesCompleted, rep.PagesRequested, rep.State)
			}
			return err
		})
	case genresCmd.FullCommand():
		err = withRuntime(ctx, cfg, status, func(o *ingest.Orchestrator) error {
			for _, kind := range []models.MediaType{models.MediaTypeMovie, models.MediaTypeShow} {
				n, err := o.SeedGenres(ctx, kind)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d genres\n", kind, n)
			}
			return nil
		})
	}
	if err != nil {
		logger.Error("ingest command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func withRuntime(ctx context.Context, cfg *config.Config, status *ingest.RedisStatus, fn func(*ingest.Orchestrator) error) error {
	rt, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	var sink ingest.ProgressSink
	if status != nil {
		sink = status
	}
	return fn(rt.Orchestrator(sink))
}

func printStatus(ctx context.Context, status *ingest.RedisStatus) error {
	if status == nil {
		return fmt.Errorf("status needs redis; drop --no-status")
	}
	items, err := status.List(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}
