package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/arc-self/amy-core/internal/config"
	"github.com/arc-self/amy-core/internal/store"
)

var migrateIndexesCmd = &cobra.Command{
	Use:   "migrate-indexes",
	Short: "Provision the document-store indexes this core depends on (spec.md §6.2)",
	RunE:  runMigrateIndexes,
}

func init() {
	rootCmd.AddCommand(migrateIndexesCmd)
}

func runMigrateIndexes(_ *cobra.Command, _ []string) error {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		logger.Fatal("mongo connection failed", zap.Error(err))
	}
	defer client.Disconnect(ctx)

	patientsDB := client.Database(cfg.Mongo.Database)
	auditDB := client.Database(cfg.Mongo.AuditDatabase)

	if err := store.MigrateIndexes(ctx, patientsDB, auditDB); err != nil {
		logger.Fatal("index migration failed", zap.Error(err))
	}
	logger.Info("index migration complete")
	return nil
}
