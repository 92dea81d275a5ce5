package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/placefinder/internal/pkg/config"
	"github.com/samirrijal/placefinder/internal/pkg/logging"
	"github.com/samirrijal/placefinder/internal/workflows"
)

func main() {
	wait := flag.Bool("wait", false, "wait for every workflow to finish and report failures")
	concurrency := flag.Int("concurrency", 4, "workflows started in parallel")
	flag.Parse()

	cfg, err := config.Load("placefinder-importer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	manifestPath := "places.json"
	if flag.NArg() > 0 {
		manifestPath = flag.Arg(0)
	}
	f, err := os.Open(manifestPath)
	if err != nil {
		log.Fatalf("open manifest: %v", err)
	}
	manifest, err := parseManifest(f, filepath.Dir(manifestPath))
	f.Close()
	if err != nil {
		log.Fatalf("%v", err)
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	slog.Info("importing places", "count", len(manifest.Places), "manifest", manifestPath)

	ctx := context.Background()
	var (
		wg     sync.WaitGroup
		failed atomic.Int32
		sem    = make(chan struct{}, max(*concurrency, 1))
	)
	for _, entry := range manifest.Places {
		wg.Add(1)
		go func(e PlaceEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
				ID:                    e.WorkflowID(),
				TaskQueue:             cfg.Temporal.TaskQueue,
				WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
			}, workflows.PlaceRegistrationWorkflow, e.Input())
			if err != nil {
				failed.Add(1)
				slog.Error("start workflow", "name", e.Name, "error", err)
				return
			}
			slog.Info("workflow started", "name", e.Name, "workflow_id", run.GetID())

			if !*wait {
				return
			}
			var place struct{ ID string }
			if err := run.Get(ctx, &place); err != nil {
				failed.Add(1)
				slog.Error("registration failed", "name", e.Name, "error", err)
				return
			}
			slog.Info("place registered", "name", e.Name, "place_id", place.ID)
		}(entry)
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		slog.Error("import finished with failures", "failed", n, "total", len(manifest.Places))
		os.Exit(1)
	}
	slog.Info("import complete", "total", len(manifest.Places))
}
