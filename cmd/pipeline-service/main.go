// Command pipeline-service is the capture/detect/notify/recap fleet
// process: it owns no CRUD HTTP surface, it only ingests cameras, runs
// detection, and serves the live preview feed and metrics endpoint.
// A long-running worker fleet with one small HTTP mux for the preview
// and metrics handlers.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ppe-guard/internal/cameracache"
	"github.com/technosupport/ppe-guard/internal/classcache"
	"github.com/technosupport/ppe-guard/internal/config"
	"github.com/technosupport/ppe-guard/internal/data"
	"github.com/technosupport/ppe-guard/internal/detect"
	"github.com/technosupport/ppe-guard/internal/evidence"
	"github.com/technosupport/ppe-guard/internal/notify"
	"github.com/technosupport/ppe-guard/internal/preview"
	"github.com/technosupport/ppe-guard/internal/recap"
	"github.com/technosupport/ppe-guard/internal/schedule"
	"github.com/technosupport/ppe-guard/internal/supervisor"
	"github.com/technosupport/ppe-guard/internal/violation"
	"github.com/technosupport/ppe-guard/internal/violationcache"
)

func main() {
	configPath := flag.String("config", "config/pipeline.yaml", "path to the pipeline config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[PIPELINE] config load failed: %v", err)
	}
	root := cfg.Get()

	db, err := sql.Open("postgres", root.Database.DSN())
	if err != nil {
		log.Fatalf("[PIPELINE] DB open failed: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("[PIPELINE] DB ping failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: root.Redis})
	defer rdb.Close()

	var nc *nats.Conn
	if root.NATS.URL != "" {
		nc, err = nats.Connect(root.NATS.URL)
		if err != nil {
			log.Printf("[PIPELINE] NATS connection failed: %v (fleet convergence falls back to the minute ticker)", err)
			nc = nil
		} else {
			defer nc.Close()
		}
	}

	evidenceStore, err := evidence.New(root.Evidence)
	if err != nil {
		log.Fatalf("[PIPELINE] evidence store init failed: %v", err)
	}

	store := data.CCTVModel{DB: db}

	classes := classcache.New(store)
	cameras := cameracache.New(store, evidenceStore)
	active := violationcache.New(store)
	scheduleEval := schedule.New(store, cfg)

	// The ONNX graph's output tensor shape is fixed at session-creation
	// time to 4+len(classNames), so the class list (and its order) must
	// be known before NewDetector runs — loaded once here directly from
	// the object_class table rather than through classcache, which
	// isn't populated yet at this point in startup.
	objectClasses, err := store.ListObjectClasses(context.Background())
	if err != nil {
		log.Fatalf("[PIPELINE] initial class list load failed: %v", err)
	}
	classNames := make([]string, len(objectClasses))
	for i, c := range objectClasses {
		classNames[i] = c.Name
	}

	detector, err := detect.NewDetector(root.ModelPath, classNames, root.Detection.ConfidenceThreshold)
	if err != nil {
		log.Fatalf("[PIPELINE] detector init failed: %v", err)
	}
	defer detector.Close()

	notifier := notify.NewService(store, root.SMTP)

	violationCfg := violation.Config{
		QueueSize:      root.Detection.QueueSize * 32,
		Workers:        4,
		PaddingPercent: root.Detection.PaddingPercent,
		SignedURLTTL:   24 * time.Hour,
		ObjectPrefix:   "violations/",
	}
	processor := violation.New(store, evidenceStore, notifier, classes, violationCfg)

	supervisorCfg := supervisor.Config{
		FrameSkip:          root.Detection.FrameSkip,
		QueueSize:          root.Detection.QueueSize,
		CooldownSeconds:    root.Detection.CooldownSeconds,
		CleanupIntervalSec: root.Detection.CleanupIntervalSec,
		MaxTrackedObjects:  root.Detection.MaxTrackedObjects,
		ConvergeInterval:   60 * time.Second,
	}
	refreshers := []supervisor.Refresher{classes, cameras, active, scheduleEval}
	fleet := supervisor.New(cameras, classes, active, scheduleEval, detector, processor, refreshers, nc, supervisorCfg)

	coordinator := recap.New(store, recapNameLookup{cameras: cameras, classes: classes}, notifier, evidenceStore, rdb, cfg.Location(), fleet, classes)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.StartWatcher(ctx)
	go processor.Run(ctx)
	go fleet.Run(ctx)
	go coordinator.Run(ctx)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		preview.New(fleet).Routes(r)
	})
	router.Handle("/metrics", promhttp.Handler())

	port := os.Getenv("PREVIEW_PORT")
	if port == "" {
		port = "8090"
	}
	httpServer := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		log.Printf("[PIPELINE] preview server listening on :%s", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[PIPELINE] preview server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[PIPELINE] shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[PIPELINE] preview server shutdown error: %v", err)
	}
}

// recapNameLookup adapts cameracache/classcache's two distinct name
// resolvers to the single recap.NameLookup interface.
type recapNameLookup struct {
	cameras *cameracache.Cache
	classes *classcache.Cache
}

func (n recapNameLookup) CameraName(id int64) string {
	return n.cameras.CameraName(id)
}

func (n recapNameLookup) ClassName(ctx context.Context, id int64) string {
	return n.classes.ClassName(ctx, id)
}
