package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"taskboard/domain"
)

// MaxTransactionActions is the entity limit of one table transaction.
const MaxTransactionActions = 100

// ErrTooManyActions is returned when a grouped write exceeds one transaction.
var ErrTooManyActions = errors.New("storage: too many actions for one transaction")

type tableClient interface {
	NewListEntitiesPager(opts *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	AddEntity(ctx context.Context, entity []byte, opts *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, opts *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, opts *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, opts *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
}

// Storage is the remote store of record backed by Azure Table Storage. Tasks
// and history entries are partitioned by owner, so every grouped write of
// one principal fits a single entity group transaction.
type Storage struct {
	taskTable    tableClient
	historyTable tableClient
	feed         *Feed
}

// New creates a Storage instance from the given connection string. An empty
// historyQueue disables the history feed.
func New(connStr, tasksTable, historyTable, historyQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		taskTable:    svc.NewClient(tasksTable),
		historyTable: svc.NewClient(historyTable),
	}
	if historyQueue == "" {
		return s, nil
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, historyQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	s.feed = NewFeed(q)
	return s, nil
}

// ListTasks retrieves all tasks for the provided owner.
func (s *Storage) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := listPartition(ctx, s.taskTable, ownerID, func(data []byte) error {
		t, err := decodeTask(data)
		if err != nil {
			return err
		}
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListHistory retrieves the owner's history, newest first.
func (s *Storage) ListHistory(ctx context.Context, ownerID string) ([]domain.HistoryEntry, error) {
	entries := []domain.HistoryEntry{}
	err := listPartition(ctx, s.historyTable, ownerID, func(data []byte) error {
		e, err := decodeHistory(data)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Storage) CreateTask(ctx context.Context, task domain.Task) error {
	payload, err := encodeTask(task)
	if err == nil {
		_, err = s.taskTable.AddEntity(ctx, payload, nil)
	}
	return err
}

// UpdateTask merges the changed columns of the revision into its entity.
func (s *Storage) UpdateTask(ctx context.Context, rev domain.Revision) error {
	payload, err := encodeTaskMerge(rev)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return notFound(err, rev.Task.ID)
}

func (s *Storage) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	et := azcore.ETagAny
	_, err := s.taskTable.DeleteEntity(ctx, ownerID, taskID, &aztables.DeleteEntityOptions{IfMatch: &et})
	return notFound(err, taskID)
}

// BatchUpdate merges every revision in one transaction.
func (s *Storage) BatchUpdate(ctx context.Context, ownerID string, revs []domain.Revision) error {
	if len(revs) > MaxTransactionActions {
		return fmt.Errorf("%w: %d", ErrTooManyActions, len(revs))
	}
	actions := make([]aztables.TransactionAction, 0, len(revs))
	for _, rev := range revs {
		if rev.Task.OwnerID != ownerID {
			return fmt.Errorf("%w: task %s", domain.ErrPermissionDenied, rev.Task.ID)
		}
		payload, err := encodeTaskMerge(rev)
		if err != nil {
			return err
		}
		et := azcore.ETagAny
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     payload,
			IfMatch:    &et,
		})
	}
	return s.submit(ctx, s.taskTable, actions)
}

// BatchDelete deletes every task in one transaction.
func (s *Storage) BatchDelete(ctx context.Context, ownerID string, taskIDs []string) error {
	if len(taskIDs) > MaxTransactionActions {
		return fmt.Errorf("%w: %d", ErrTooManyActions, len(taskIDs))
	}
	actions := make([]aztables.TransactionAction, 0, len(taskIDs))
	for _, id := range taskIDs {
		payload, err := encodeKeys(ownerID, id)
		if err != nil {
			return err
		}
		et := azcore.ETagAny
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeDelete,
			Entity:     payload,
			IfMatch:    &et,
		})
	}
	return s.submit(ctx, s.taskTable, actions)
}

// AppendHistory inserts entries in transactions of at most
// MaxTransactionActions and then publishes them to the feed, if any. A feed
// failure is reported after the entries are stored.
func (s *Storage) AppendHistory(ctx context.Context, ownerID string, entries []domain.HistoryEntry) error {
	for start := 0; start < len(entries); start += MaxTransactionActions {
		end := min(start+MaxTransactionActions, len(entries))
		actions := make([]aztables.TransactionAction, 0, end-start)
		for _, e := range entries[start:end] {
			e.OwnerID = ownerID
			payload, err := encodeHistory(e)
			if err != nil {
				return err
			}
			actions = append(actions, aztables.TransactionAction{
				ActionType: aztables.TransactionTypeAdd,
				Entity:     payload,
			})
		}
		if err := s.submit(ctx, s.historyTable, actions); err != nil {
			return err
		}
	}
	if s.feed != nil {
		return s.feed.Publish(ctx, ownerID, entries)
	}
	return nil
}

func (s *Storage) submit(ctx context.Context, table tableClient, actions []aztables.TransactionAction) error {
	if len(actions) == 0 {
		return nil
	}
	_, err := table.SubmitTransaction(ctx, actions, nil)
	return err
}

func listPartition(ctx context.Context, table tableClient, partition string, fn func([]byte) error) error {
	filter := "PartitionKey eq '" + strings.ReplaceAll(partition, "'", "''") + "'"
	pager := table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func notFound(err error, id string) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	return err
}

// historyRowKey orders a partition newest first under the table's ascending
// RowKey scan.
func historyRowKey(at time.Time, id string) string {
	return fmt.Sprintf("%019d_%s", math.MaxInt64-at.UnixNano(), id)
}
