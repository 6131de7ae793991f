package formstage

import (
	"context"
	"time"
)

// Operation names reported to middleware and audit sinks.
const (
	OpCategoryCreated = "category.created"
	OpStageAdded      = "stage.added"
	OpStageRenamed    = "stage.renamed"
	OpStageDeleted    = "stage.deleted"
	OpStageMoved      = "stage.moved"
	OpStagesReordered = "stages.reordered"
	OpFieldsCommitted = "stage.fields.committed"
	OpFieldAdded      = "field.added"
	OpFieldUpdated    = "field.updated"
	OpFieldDeleted    = "field.deleted"
	OpFieldReordered  = "field.reordered"
	OpFormPublished   = "form.published"
	OpFormRolledBack  = "form.rolled_back"
)

// Operation describes one engine operation flowing through the middleware chain.
// Handlers fill in ResourceID once it is known, e.g. the id of a freshly added stage.
type Operation struct {
	Name       string
	CategoryID string
	ResourceID string
	Timestamp  time.Time
	// NoOp is set when the operation left the stored state unchanged.
	NoOp bool
}

// OperationFunc is the core function type for executing an operation.
type OperationFunc func(ctx context.Context, op *Operation, logger Logger) error

// Middleware represents a function that wraps operation execution.
// Middleware can act before and after the operation, annotate the context,
// or short-circuit by returning an error without calling next.
type Middleware func(next OperationFunc) OperationFunc

// chain builds the handler with middleware applied in reverse order, so the first
// middleware registered is the outermost.
func chain(handler OperationFunc, middleware []Middleware) OperationFunc {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}

// LoggingMiddleware creates a middleware that logs operation start, outcome and duration
func LoggingMiddleware() Middleware {
	return func(next OperationFunc) OperationFunc {
		return func(ctx context.Context, op *Operation, logger Logger) error {
			logger.Debug("Starting %s", op.Name)

			start := time.Now()
			err := next(ctx, op, logger)
			duration := time.Since(start)

			if err != nil {
				logger.Error("%s failed after %v: %v", op.Name, duration.Round(time.Microsecond), err)
			} else {
				logger.Info("%s %s completed in %v", op.Name, op.ResourceID, duration.Round(time.Microsecond))
			}

			return err
		}
	}
}

// AuditMiddleware notifies sink about every successful operation that changed something. Sink failures are
// logged and never fail the operation, since the change is already persisted.
func AuditMiddleware(sink AuditSink) Middleware {
	return func(next OperationFunc) OperationFunc {
		return func(ctx context.Context, op *Operation, logger Logger) error {
			if err := next(ctx, op, logger); err != nil {
				return err
			}
			if sink == nil || op.NoOp {
				return nil
			}

			event := Event{
				Action:     op.Name,
				Category:   op.CategoryID,
				ResourceID: op.ResourceID,
				Timestamp:  op.Timestamp,
			}
			if err := sink.Notify(ctx, event); err != nil {
				logger.Warn("audit sink rejected %s for %s: %v", op.Name, op.ResourceID, err)
			}
			return nil
		}
	}
}
