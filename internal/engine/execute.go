package engine

import (
	"context"

	"github.com/weftdb/weft/internal/bus"
	"github.com/weftdb/weft/internal/expr"
	"github.com/weftdb/weft/internal/fault"
	"github.com/weftdb/weft/internal/interp"
	"github.com/weftdb/weft/internal/transform"
)

// execute runs one attempt: resolve inputs, evaluate, write the output.
//
// A declared input whose atom reference does not exist yet skips the
// task; a transform over data that was never written produces no output
// and no error. Every other failure is retryable.
func (e *Engine) execute(ctx context.Context, t *Task) completion {
	tr, err := e.reg.Get(t.TransformID)
	if err != nil {
		return completion{task: t, state: StateFailed, err: err}
	}

	stmts, err := tr.Parsed()
	if err != nil {
		return completion{task: t, state: StateFailed, err: err}
	}

	env := interp.Env{}
	for _, field := range tr.Inputs {
		v, err := e.store.LatestValue(ctx, field)
		if fault.IsNotFound(err) {
			return completion{task: t, state: StateSkipped, skipped: field}
		}
		if err != nil {
			return completion{task: t, state: StateFailed, err: err}
		}
		env[field] = v
	}

	result, err := interp.EvalProgram(stmts, env)
	if err != nil {
		return completion{task: t, state: StateFailed,
			err: fault.Wrap(fault.InvalidTransform, "evaluate "+tr.ID, err)}
	}
	if err := ctx.Err(); err != nil {
		return completion{task: t, state: StateFailed, err: err}
	}

	if tr.Output != "" {
		source := "transform:" + tr.ID
		if _, err := e.store.SetField(ctx, tr.Output, result, source); err != nil {
			return completion{task: t, state: StateFailed, err: err}
		}
		e.bindRefs(ctx, tr)

		// Cascade: downstream transforms trigger off the output write the
		// same way they trigger off a user write.
		e.bus.Publish(bus.Event{Topic: bus.TopicFieldValueSet, Payload: bus.FieldValueSet{
			Field:  tr.Output,
			Value:  valueToGo(result),
			Source: source,
		}})
	}
	return completion{task: t, state: StateSucceeded, result: result}
}

// bindRefs records the transform's input and output atom references in
// the registry. Bindings are bookkeeping; a failure here does not fail
// the execution.
func (e *Engine) bindRefs(ctx context.Context, tr *transform.Transform) {
	for _, field := range tr.Inputs {
		ref, err := e.store.RefByField(ctx, field)
		if err != nil {
			continue
		}
		if err := e.reg.BindInputRef(ctx, tr.ID, ref.UUID, field); err != nil {
			e.logger.Debug("input ref binding failed", "transform", tr.ID, "field", field, "error", err)
		}
	}

	ref, err := e.store.RefByField(ctx, tr.Output)
	if err != nil {
		return
	}
	if err := e.reg.BindOutputRef(ctx, tr.ID, ref.UUID); err != nil {
		e.logger.Debug("output ref binding failed", "transform", tr.ID, "error", err)
	}
}

func valueToGo(v expr.Value) any {
	if v == nil {
		return nil
	}
	return expr.ToGo(v)
}
