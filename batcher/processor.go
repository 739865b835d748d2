package batcher

import (
	"context"
	"log/slog"

	"github.com/merchstream/writeback/docstore"
	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/eventlog"
)

// Opener decrypts record payloads. *crypt.Gate satisfies it.
type Opener interface {
	Open(sealed string, dst any) error
}

// BulkInserter is the repository slice the create processor uses.
type BulkInserter[T any] interface {
	BulkInsert(ctx context.Context, records []T) (int64, error)
}

// BulkPatcher is the repository slice the update processor uses.
type BulkPatcher[T any] interface {
	BulkPatch(ctx context.Context, patches []docstore.Patch[T]) error
}

// BulkDeleter is the repository slice the delete processor uses.
type BulkDeleter interface {
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// PatchSpec is a decoded partial update: the columns it writes and the
// application of its values onto a row. The typed patches in entity
// satisfy it.
type PatchSpec[T any] interface {
	Columns() []string
	Apply(T)
}

// CreateProcessor bulk-inserts a batch of create records. Rows whose
// primary key already exists are skipped by the insert itself, so a
// replayed create cannot abort the batch.
type CreateProcessor[T any] struct {
	repo      BulkInserter[T]
	gate      Opener
	newRecord func() T
	logger    *slog.Logger
}

// NewCreateProcessor builds the create processor for one entity type.
// newRecord allocates an empty row for payload decoding.
func NewCreateProcessor[T any](repo BulkInserter[T], gate Opener, newRecord func() T, logger *slog.Logger) *CreateProcessor[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateProcessor[T]{repo: repo, gate: gate, newRecord: newRecord, logger: logger}
}

// Process decrypts every payload and writes the batch in one bulk insert.
func (p *CreateProcessor[T]) Process(ctx context.Context, records []eventlog.Record) error {
	rows := make([]T, 0, len(records))
	for _, rec := range records {
		row := p.newRecord()
		if err := p.gate.Open(rec.Payload, row); err != nil {
			if errors.IsConfiguration(err) {
				return errors.WrapFlush(err, "CreateProcessor", "Process", "open payload")
			}
			p.logger.Warn("skipping unreadable create record",
				"entity_id", rec.EntityID, "message_id", rec.MessageID, "error", err)
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}

	if _, err := p.repo.BulkInsert(ctx, rows); err != nil {
		return errors.WrapFlush(err, "CreateProcessor", "Process", "bulk insert")
	}
	return nil
}

// UpdateProcessor applies a batch of update records as field-level
// patches: only the columns present in each payload are written, plus the
// update timestamp.
type UpdateProcessor[T any, P PatchSpec[T]] struct {
	repo     BulkPatcher[T]
	gate     Opener
	handlers docstore.Handlers[T]
	touch    func(T, int64)
	logger   *slog.Logger
}

// NewUpdateProcessor builds the update processor for one entity type.
// touch stamps the row's update time before the patch is written.
func NewUpdateProcessor[T any, P PatchSpec[T]](
	repo BulkPatcher[T],
	gate Opener,
	handlers docstore.Handlers[T],
	touch func(T, int64),
	logger *slog.Logger,
) *UpdateProcessor[T, P] {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateProcessor[T, P]{repo: repo, gate: gate, handlers: handlers, touch: touch, logger: logger}
}

// Process decodes each payload into a typed patch and applies one partial
// update per record. Fields absent from a payload are never written.
func (p *UpdateProcessor[T, P]) Process(ctx context.Context, records []eventlog.Record) error {
	patches := make([]docstore.Patch[T], 0, len(records))
	for _, rec := range records {
		var spec P
		if err := p.gate.Open(rec.Payload, &spec); err != nil {
			if errors.IsConfiguration(err) {
				return errors.WrapFlush(err, "UpdateProcessor", "Process", "open payload")
			}
			p.logger.Warn("skipping unreadable update record",
				"entity_id", rec.EntityID, "message_id", rec.MessageID, "error", err)
			continue
		}

		columns := spec.Columns()
		if len(columns) == 0 {
			p.logger.Warn("skipping empty update record",
				"entity_id", rec.EntityID, "message_id", rec.MessageID)
			continue
		}

		row := p.handlers.NewRecord()
		p.handlers.SetID(row, rec.EntityID)
		spec.Apply(row)
		if p.touch != nil {
			p.touch(row, rec.EnqueuedAt)
			columns = append(columns, "updated_at")
		}
		patches = append(patches, docstore.Patch[T]{Row: row, Columns: columns})
	}
	if len(patches) == 0 {
		return nil
	}

	if err := p.repo.BulkPatch(ctx, patches); err != nil {
		return errors.WrapFlush(err, "UpdateProcessor", "Process", "bulk patch")
	}
	return nil
}

// DeleteProcessor removes a batch of rows in one statement.
type DeleteProcessor struct {
	repo   BulkDeleter
	logger *slog.Logger
}

// NewDeleteProcessor builds the delete processor for one entity type.
func NewDeleteProcessor(repo BulkDeleter, logger *slog.Logger) *DeleteProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeleteProcessor{repo: repo, logger: logger}
}

// Process deletes every id in the batch. Ids already gone are skipped by
// the statement; duplicates collapse.
func (p *DeleteProcessor) Process(ctx context.Context, records []eventlog.Record) error {
	seen := make(map[string]struct{}, len(records))
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.EntityID == "" {
			continue
		}
		if _, dup := seen[rec.EntityID]; dup {
			continue
		}
		seen[rec.EntityID] = struct{}{}
		ids = append(ids, rec.EntityID)
	}
	if len(ids) == 0 {
		return nil
	}

	if _, err := p.repo.DeleteByIDs(ctx, ids); err != nil {
		return errors.WrapFlush(err, "DeleteProcessor", "Process", "bulk delete")
	}
	return nil
}

var _ Processor = (*DeleteProcessor)(nil)
