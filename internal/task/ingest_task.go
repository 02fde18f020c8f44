package task

import (
	"encoding/json"

	"golang.org/x/net/context"

	"GoCDN/internal/mq"
	"GoCDN/internal/repo"
	"GoCDN/internal/service"
	"GoCDN/model"
)

// IngestMessage is the payload sent to the worker.
type IngestMessage struct {
	TaskID  uint64 `json:"task_id"`
	Attempt int    `json:"attempt"`
}

// Manager creates ingest tasks and executes them on behalf of the worker.
type Manager struct {
	tasks     repo.TaskStore
	publisher *mq.Publisher
	ingester  *service.Ingester
}

// NewManager builds a task manager.
func NewManager(tasks repo.TaskStore, publisher *mq.Publisher, ingester *service.Ingester) *Manager {
	return &Manager{
		tasks:     tasks,
		publisher: publisher,
		ingester:  ingester,
	}
}

// Create validates the source, records the task and enqueues it.
func (m *Manager) Create(ctx context.Context, logicalName, url, uploadedBy string) (*model.IngestTask, error) {
	if err := m.ingester.ValidateSourceURL(url); err != nil {
		return nil, err
	}
	t := &model.IngestTask{
		LogicalName: logicalName,
		Source:      url,
		UploadedBy:  uploadedBy,
		Status:      "pending",
	}
	if err := m.tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	body, err := json.Marshal(IngestMessage{TaskID: t.ID, Attempt: 0})
	if err != nil {
		_ = m.tasks.MarkFailed(ctx, t.ID, err.Error())
		return nil, err
	}
	if err := m.publisher.PublishTask(ctx, body); err != nil {
		_ = m.tasks.MarkFailed(ctx, t.ID, err.Error())
		return nil, err
	}
	return t, nil
}

// List returns the most recent tasks.
func (m *Manager) List(ctx context.Context, limit int) ([]model.IngestTask, error) {
	return m.tasks.List(ctx, limit)
}

// Process fetches the task's source and resolves it into the store. Safe to
// call again on redelivery: a finished task is skipped.
func (m *Manager) Process(ctx context.Context, taskID uint64) error {
	t, err := m.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status == "done" || t.Status == "failed" {
		return nil
	}
	if err := m.tasks.MarkRunning(ctx, taskID); err != nil {
		return err
	}
	if _, err := m.ingester.Fetch(ctx, t.LogicalName, t.Source, t.UploadedBy); err != nil {
		return err
	}
	return m.tasks.MarkDone(ctx, taskID)
}
