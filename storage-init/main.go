// Command storage-init creates the tables and queue the task board uses.
// Existing resources are left alone, so it is safe to run on every deploy.
package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	tables := []string{os.Getenv("TASKS_TABLE"), os.Getenv("HISTORY_TABLE")}
	if tables[0] == "" || tables[1] == "" {
		log.Fatal("TASKS_TABLE and HISTORY_TABLE are required")
	}

	ctx := context.Background()
	if err := createTables(ctx, connStr, tables); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	if queue := os.Getenv("HISTORY_QUEUE"); queue != "" {
		if err := createQueue(ctx, connStr, queue); err != nil {
			log.Fatalf("create queue: %v", err)
		}
	}
	log.Info("storage ready")
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		_, err := svc.NewClient(name).CreateTable(ctx, nil)
		if exists(err, string(aztables.TableAlreadyExists)) {
			log.WithField("table", name).Debug("table already exists")
			continue
		}
		if err != nil {
			return err
		}
		log.WithField("table", name).Info("table created")
	}
	return nil
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	_, err = q.Create(ctx, nil)
	if exists(err, "QueueAlreadyExists") {
		log.WithField("queue", name).Debug("queue already exists")
		return nil
	}
	if err != nil {
		return err
	}
	log.WithField("queue", name).Info("queue created")
	return nil
}

func exists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
