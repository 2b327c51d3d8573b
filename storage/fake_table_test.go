package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
)

// fakeTable keeps rows as decoded property maps keyed by partition and row.
type fakeTable struct {
	mu           sync.Mutex
	rows         map[string]map[string]map[string]any
	transactions [][]aztables.TransactionAction
	listErr      error
	submitErr    error
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]map[string]map[string]any{}}
}

func (f *fakeTable) NewListEntitiesPager(opts *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	pk := ""
	if opts != nil && opts.Filter != nil {
		pk = strings.TrimSuffix(strings.TrimPrefix(*opts.Filter, "PartitionKey eq '"), "'")
		pk = strings.ReplaceAll(pk, "''", "'")
	}
	f.mu.Lock()
	keys := make([]string, 0, len(f.rows[pk]))
	for rk := range f.rows[pk] {
		keys = append(keys, rk)
	}
	slices.Sort(keys)
	entities := make([][]byte, 0, len(keys))
	for _, rk := range keys {
		data, _ := sonic.Marshal(f.rows[pk][rk])
		entities = append(entities, data)
	}
	listErr := f.listErr
	f.mu.Unlock()

	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return false },
		Fetcher: func(context.Context, *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			if listErr != nil {
				return aztables.ListEntitiesResponse{}, listErr
			}
			return aztables.ListEntitiesResponse{Entities: entities}, nil
		},
	})
}

func (f *fakeTable) AddEntity(ctx context.Context, entity []byte, opts *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	return aztables.AddEntityResponse{}, f.apply([]aztables.TransactionAction{{ActionType: aztables.TransactionTypeAdd, Entity: entity}})
}

func (f *fakeTable) UpdateEntity(ctx context.Context, entity []byte, opts *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	return aztables.UpdateEntityResponse{}, f.apply([]aztables.TransactionAction{{ActionType: aztables.TransactionTypeUpdateMerge, Entity: entity}})
}

func (f *fakeTable) DeleteEntity(ctx context.Context, partitionKey, rowKey string, opts *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	payload, _ := encodeKeys(partitionKey, rowKey)
	return aztables.DeleteEntityResponse{}, f.apply([]aztables.TransactionAction{{ActionType: aztables.TransactionTypeDelete, Entity: payload}})
}

func (f *fakeTable) SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, opts *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error) {
	f.mu.Lock()
	f.transactions = append(f.transactions, actions)
	submitErr := f.submitErr
	f.mu.Unlock()
	if submitErr != nil {
		return aztables.TransactionResponse{}, submitErr
	}
	if len(actions) > MaxTransactionActions {
		return aztables.TransactionResponse{}, errors.New("transaction too large")
	}
	return aztables.TransactionResponse{}, f.apply(actions)
}

// apply validates every action before changing anything.
func (f *fakeTable) apply(actions []aztables.TransactionAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	props := make([]map[string]any, len(actions))
	partition := ""
	for i, a := range actions {
		var p map[string]any
		if err := sonic.Unmarshal(a.Entity, &p); err != nil {
			return err
		}
		pk, _ := p["PartitionKey"].(string)
		rk, _ := p["RowKey"].(string)
		if i == 0 {
			partition = pk
		} else if pk != partition {
			return &azcore.ResponseError{StatusCode: 400, ErrorCode: "CommandsInBatchActOnDifferentPartitions"}
		}
		_, exists := f.rows[pk][rk]
		switch a.ActionType {
		case aztables.TransactionTypeAdd:
			if exists {
				return &azcore.ResponseError{StatusCode: 409, ErrorCode: "EntityAlreadyExists"}
			}
		case aztables.TransactionTypeUpdateMerge, aztables.TransactionTypeDelete:
			if !exists {
				return &azcore.ResponseError{StatusCode: 404, ErrorCode: "ResourceNotFound"}
			}
		}
		props[i] = p
	}

	for i, a := range actions {
		p := props[i]
		pk := p["PartitionKey"].(string)
		rk := p["RowKey"].(string)
		if f.rows[pk] == nil {
			f.rows[pk] = map[string]map[string]any{}
		}
		switch a.ActionType {
		case aztables.TransactionTypeAdd:
			f.rows[pk][rk] = p
		case aztables.TransactionTypeUpdateMerge:
			for k, v := range p {
				f.rows[pk][rk][k] = v
			}
		case aztables.TransactionTypeDelete:
			delete(f.rows[pk], rk)
		}
	}
	return nil
}

func (f *fakeTable) count(pk string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[pk])
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []string
	failAt   int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{failAt: -1}
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.messages)
	if f.failAt >= 0 && idx == f.failAt {
		f.failAt = -1
		return azqueue.EnqueueMessagesResponse{}, errors.New("enqueue failure")
	}
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}
