package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/spf13/afero"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/placefinder/internal/adapters/imagestore"
	natsadapter "github.com/samirrijal/placefinder/internal/adapters/nats"
	"github.com/samirrijal/placefinder/internal/adapters/postgres"
	"github.com/samirrijal/placefinder/internal/pkg/config"
	"github.com/samirrijal/placefinder/internal/pkg/logging"
	"github.com/samirrijal/placefinder/internal/workflows"
)

func main() {
	cfg, err := config.Load("placefinder-registrar")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	images, err := imagestore.NewOS(cfg.Storage.UploadDir, cfg.Storage.PublicPrefix, int64(cfg.Server.BodyLimitMB)<<20)
	if err != nil {
		log.Fatalf("image store: %v", err)
	}

	acts := &workflows.RegistrationActivities{
		Places: postgres.NewPlaceRepo(db),
		Images: images,
		Source: afero.NewReadOnlyFs(afero.NewOsFs()),
	}
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, registrations will not be announced", "error", err)
	} else {
		defer pub.Close()
		acts.Publisher = pub
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.PlaceRegistrationWorkflow)
	w.RegisterActivity(acts)

	slog.Info("registrar worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
