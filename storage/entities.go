package storage

import (
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

const edmInt64 = "Edm.Int64"

type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

// taskEntity is the table row of a task. Timestamps are stored as Unix
// nanoseconds; CompletedAt 0 means not completed because a merge cannot
// remove a property. Attachments and Tags are JSON documents.
type taskEntity struct {
	entity
	Title           string `json:"Title"`
	Description     string `json:"Description"`
	Category        string `json:"Category"`
	DueDate         string `json:"DueDate"`
	Status          string `json:"Status"`
	CreatedAt       int64  `json:"CreatedAt,string"`
	CreatedAtType   string `json:"CreatedAt@odata.type"`
	UpdatedAt       int64  `json:"UpdatedAt,string"`
	UpdatedAtType   string `json:"UpdatedAt@odata.type"`
	CompletedAt     int64  `json:"CompletedAt,string"`
	CompletedAtType string `json:"CompletedAt@odata.type"`
	Attachments     string `json:"Attachments"`
	Tags            string `json:"Tags"`
}

type historyEntity struct {
	entity
	EntryID        string `json:"EntryId"`
	TaskID         string `json:"TaskId"`
	Action         string `json:"Action"`
	Changes        string `json:"Changes"`
	OccurredAt     int64  `json:"OccurredAt,string"`
	OccurredAtType string `json:"OccurredAt@odata.type"`
}

func encodeTask(t domain.Task) ([]byte, error) {
	attachments, err := sonic.MarshalString(nonNil(t.Attachments))
	if err != nil {
		return nil, err
	}
	tags, err := sonic.MarshalString(nonNil(t.Tags))
	if err != nil {
		return nil, err
	}
	ent := taskEntity{
		entity:          entity{PartitionKey: t.OwnerID, RowKey: t.ID},
		Title:           t.Title,
		Description:     t.Description,
		Category:        t.Category,
		DueDate:         t.DueDate,
		Status:          string(t.Status),
		CreatedAt:       t.CreatedAt.UnixNano(),
		CreatedAtType:   edmInt64,
		UpdatedAt:       t.UpdatedAt.UnixNano(),
		UpdatedAtType:   edmInt64,
		CompletedAtType: edmInt64,
		Attachments:     attachments,
		Tags:            tags,
	}
	if t.CompletedAt != nil {
		ent.CompletedAt = t.CompletedAt.UnixNano()
	}
	return sonic.Marshal(ent)
}

// encodeTaskMerge encodes the keys, UpdatedAt and the columns named by the
// revision's changes, so a merge leaves every other column as stored.
func encodeTaskMerge(rev domain.Revision) ([]byte, error) {
	t := rev.Task
	props := map[string]any{
		"PartitionKey": t.OwnerID,
		"RowKey":       t.ID,
	}
	setInt64(props, "UpdatedAt", t.UpdatedAt.UnixNano())
	for _, field := range rev.Fields() {
		switch field {
		case domain.FieldAll:
			return encodeTask(t)
		case domain.FieldTitle:
			props["Title"] = t.Title
		case domain.FieldDescription:
			props["Description"] = t.Description
		case domain.FieldCategory:
			props["Category"] = t.Category
		case domain.FieldDueDate:
			props["DueDate"] = t.DueDate
		case domain.FieldStatus:
			props["Status"] = string(t.Status)
		case domain.FieldCompletedAt:
			var at int64
			if t.CompletedAt != nil {
				at = t.CompletedAt.UnixNano()
			}
			setInt64(props, "CompletedAt", at)
		case domain.FieldAttachments:
			doc, err := sonic.MarshalString(nonNil(t.Attachments))
			if err != nil {
				return nil, err
			}
			props["Attachments"] = doc
		case domain.FieldTags:
			doc, err := sonic.MarshalString(nonNil(t.Tags))
			if err != nil {
				return nil, err
			}
			props["Tags"] = doc
		}
	}
	return sonic.Marshal(props)
}

func setInt64(props map[string]any, name string, v int64) {
	props[name] = strconv.FormatInt(v, 10)
	props[name+"@odata.type"] = edmInt64
}

func decodeTask(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          ent.RowKey,
		OwnerID:     ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Category:    ent.Category,
		DueDate:     ent.DueDate,
		Status:      domain.Status(ent.Status),
		CreatedAt:   fromNanos(ent.CreatedAt),
		UpdatedAt:   fromNanos(ent.UpdatedAt),
	}
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	if ent.CompletedAt != 0 {
		at := fromNanos(ent.CompletedAt)
		t.CompletedAt = &at
	}
	if ent.Attachments != "" {
		if err := sonic.UnmarshalString(ent.Attachments, &t.Attachments); err != nil {
			return domain.Task{}, err
		}
	}
	if ent.Tags != "" {
		if err := sonic.UnmarshalString(ent.Tags, &t.Tags); err != nil {
			return domain.Task{}, err
		}
	}
	if len(t.Attachments) == 0 {
		t.Attachments = nil
	}
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	return t, nil
}

func encodeKeys(partitionKey, rowKey string) ([]byte, error) {
	return sonic.Marshal(entity{PartitionKey: partitionKey, RowKey: rowKey})
}

func encodeHistory(e domain.HistoryEntry) ([]byte, error) {
	changes, err := sonic.MarshalString(nonNil(e.Changes))
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(historyEntity{
		entity:         entity{PartitionKey: e.OwnerID, RowKey: historyRowKey(e.Timestamp, e.ID)},
		EntryID:        e.ID,
		TaskID:         e.TaskID,
		Action:         string(e.Action),
		Changes:        changes,
		OccurredAt:     e.Timestamp.UnixNano(),
		OccurredAtType: edmInt64,
	})
}

func decodeHistory(data []byte) (domain.HistoryEntry, error) {
	var ent historyEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.HistoryEntry{}, err
	}
	e := domain.HistoryEntry{
		ID:        ent.EntryID,
		TaskID:    ent.TaskID,
		OwnerID:   ent.PartitionKey,
		Action:    domain.Action(ent.Action),
		Timestamp: fromNanos(ent.OccurredAt),
	}
	if ent.Changes != "" {
		if err := sonic.UnmarshalString(ent.Changes, &e.Changes); err != nil {
			return domain.HistoryEntry{}, err
		}
	}
	return e, nil
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
