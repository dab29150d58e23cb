package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/folio/book"
	"github.com/casualjim/folio/expect"
	"github.com/casualjim/folio/pkg/runstate"
	"github.com/casualjim/folio/pkg/slogx"
	"github.com/casualjim/folio/pkg/uuidx"
	"github.com/casualjim/folio/prepare"
	"github.com/casualjim/folio/provider"
	"github.com/casualjim/folio/types"
	"github.com/fogfish/opts"
	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxParallel is the number of model calls a run makes at the same time when
// none is configured.
const DefaultMaxParallel = 5

// Executor runs prepared pipelines against a set of execution tools.
type Executor struct {
	tools       provider.ExecutionTools
	maxParallel int
	onProgress  func(Progress)
	logger      *slog.Logger
	usage       *runstate.Aggregator
}

var (
	WithMaxParallel = opts.ForName[Executor, int]("maxParallel")
	WithLogger      = opts.ForName[Executor, *slog.Logger]("logger")
)

// WithProgress sets a callback invoked once per completed template. Callbacks run on
// their own goroutine, one at a time, in completion order. Neither templates nor Run
// wait for them; Result.ProgressDone reports when the last one has returned.
func WithProgress(fn func(Progress)) opts.Option[Executor] {
	return opts.Type[Executor](func(e *Executor) error {
		e.onProgress = fn
		return nil
	})
}

// New creates an executor calling tools, usually a provider.Join of several providers.
func New(tools provider.ExecutionTools, options ...opts.Option[Executor]) *Executor {
	e := &Executor{
		tools:       tools,
		maxParallel: DefaultMaxParallel,
		logger:      slogx.Component("executor"),
		usage:       runstate.NewAggregator(),
	}
	if err := opts.Apply(e, options); err != nil {
		panic(err)
	}
	if e.maxParallel < 1 {
		e.maxParallel = 1
	}
	if e.tools == nil {
		e.tools = provider.Join()
	}
	return e
}

// Usage returns the total usage of every run of the executor.
func (e *Executor) Usage() runstate.Usage {
	return e.usage.Usage()
}

// Execute prepares doc and runs it. Preparation failures are reported in the result.
func (e *Executor) Execute(ctx context.Context, doc *book.Document, params types.Parameters, o prepare.Options) *Result {
	pipeline, err := prepare.Prepare(ctx, doc, o)
	if err != nil {
		return &Result{
			Errors:           []error{err},
			Report:           Report{RunID: uuidx.New(), Title: doc.Title},
			OutputParameters: orderedmap.New[string, string](),
		}
	}
	return e.Run(ctx, pipeline, params)
}

type run struct {
	*Executor

	id        uuid.UUID
	pipeline  *prepare.Pipeline
	usage     *runstate.Aggregator
	sem       *semaphore.Weighted
	futures   map[string]CompletableFuture[string]
	log       *slog.Logger
	progress  chan Progress
	mu        sync.Mutex
	values    types.Parameters
	entries   []ReportEntry
	completed int
}

// Run executes every template of pipeline. Independent templates run concurrently,
// bounded by the executor's parallelism; a template starts once the templates it
// depends on have succeeded. The report lists templates in declaration order.
func (e *Executor) Run(ctx context.Context, pipeline *prepare.Pipeline, params types.Parameters) *Result {
	r := &run{
		Executor: e,
		id:       uuidx.New(),
		pipeline: pipeline,
		usage:    e.usage.Fork(),
		sem:      semaphore.NewWeighted(int64(e.maxParallel)),
		futures:  make(map[string]CompletableFuture[string], len(pipeline.Templates)),
		values:   params.Clone(),
		entries:  make([]ReportEntry, len(pipeline.Templates)),
	}
	r.log = e.logger.With(slog.String("run_id", r.id.String()))
	for i, t := range pipeline.Templates {
		r.futures[t.Name] = NewFuture[string]()
		r.entries[i] = ReportEntry{Template: t.Name, Title: t.Title, State: StatePending}
	}

	var errs []error
	for _, name := range pipeline.Document.InputParameters() {
		if _, ok := r.values[name]; !ok {
			errs = append(errs, fmt.Errorf("%w: input parameter {%s} has no value", ErrMissingParameter, name))
		}
	}

	dispatched := closedChan
	if e.onProgress != nil {
		r.progress = make(chan Progress, len(pipeline.Templates))
		dispatched = make(chan struct{})
		go func(ch <-chan Progress) {
			defer close(dispatched)
			for p := range ch {
				e.onProgress(p)
			}
		}(r.progress)
	}

	r.log.DebugContext(ctx, "starting run", slog.Int("templates", len(pipeline.Templates)), slog.Int("max_parallel", e.maxParallel))

	var wg sync.WaitGroup
	for i := range pipeline.Templates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runTemplate(ctx, i)
		}()
	}
	wg.Wait()
	if r.progress != nil {
		close(r.progress)
	}
	e.usage.Join(r.usage)

	res := r.result(ctx, errs)
	res.progressDone = dispatched
	return res
}

func (r *run) result(ctx context.Context, errs []error) *Result {
	cancelled := false
	for i := range r.entries {
		entry := &r.entries[i]
		switch entry.State {
		case StateFailed:
			errs = append(errs, &TemplateError{Template: entry.Template, Err: entry.Err})
		case StateCancelled:
			cancelled = true
		}
	}
	if cancelled {
		errs = append(errs, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx)))
	}

	res := &Result{
		Success: len(errs) == 0,
		Errors:  errs,
		Report: Report{
			RunID:   r.id,
			Title:   r.pipeline.Document.Title,
			Entries: r.entries,
		},
		Usage:            r.usage.Usage(),
		OutputParameters: r.outputs(),
	}
	r.log.InfoContext(ctx, "run finished",
		slog.Bool("success", res.Success),
		slog.Int("succeeded", res.Report.Count(StateSucceeded)),
		slog.Int("failed", res.Report.Count(StateFailed)),
		slog.Int("cancelled", res.Report.Count(StateCancelled)),
	)
	return res
}

// outputs collects the declared output parameters in declaration order. Without
// declared outputs every template result is returned, in template order.
func (r *run) outputs() *orderedmap.OrderedMap[string, string] {
	out := orderedmap.New[string, string]()
	names := r.pipeline.Document.OutputParameters()
	if len(names) == 0 {
		for _, t := range r.pipeline.Templates {
			if t.ResultParameter != "" {
				names = append(names, t.ResultParameter)
			}
		}
	}
	for _, name := range names {
		if v, ok := r.values[name]; ok {
			out.Set(name, v)
		}
	}
	return out
}

func (r *run) runTemplate(ctx context.Context, index int) {
	t := &r.pipeline.Templates[index]
	fut := r.futures[t.Name]
	log := r.log.With(slog.String("template", t.Name))

	value, state, err := r.execute(ctx, t, log)
	if state == StateSucceeded {
		fut.Complete(value)
	} else {
		fut.Error(err)
	}
}

func (r *run) execute(ctx context.Context, t *prepare.PreparedTemplate, log *slog.Logger) (string, State, error) {
	for _, dep := range t.Dependencies {
		fut, ok := r.futures[dep]
		if !ok {
			continue
		}
		if _, err := fut.Get(ctx); err != nil {
			if ctx.Err() != nil {
				return r.finish(ctx, t, StateCancelled, nil, ErrCancelled)
			}
			log.DebugContext(ctx, "skipping template", slog.String("dependency", dep))
			return r.finish(ctx, t, StateFailed, nil, fmt.Errorf("%w: %s", ErrDependencyFailed, dep))
		}
	}

	callsModel := t.Kind != book.KindSimple
	if callsModel {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return r.finish(ctx, t, StateCancelled, nil, ErrCancelled)
		}
		defer r.sem.Release(1)
	}
	if ctx.Err() != nil {
		return r.finish(ctx, t, StateCancelled, nil, ErrCancelled)
	}

	prompt, err := r.prompt(t)
	r.update(t.Index, func(e *ReportEntry) {
		e.State = StateRunning
		e.Prompt = prompt
	})
	if err != nil {
		return r.finish(ctx, t, StateFailed, nil, err)
	}

	var (
		last    *provider.PromptResult
		lastErr error
	)
	for attempt := 1; attempt <= t.Attempts(); attempt++ {
		r.update(t.Index, func(e *ReportEntry) { e.Attempts = attempt })

		res, err := r.call(ctx, prompt, callsModel)
		if err != nil {
			if ctx.Err() != nil {
				return r.finish(ctx, t, StateCancelled, nil, ErrCancelled)
			}
			log.WarnContext(ctx, "template failed", slog.Int("attempt", attempt), slogx.Error(err))
			return r.finish(ctx, t, StateFailed, last, err)
		}
		r.usage.Add(res.Usage)
		last = res

		lastErr = expect.Check(t.Expectations, res.Content)
		if lastErr == nil {
			return r.finish(ctx, t, StateSucceeded, res, nil)
		}
		log.DebugContext(ctx, "expectations not met", slog.Int("attempt", attempt), slogx.Error(lastErr))
	}
	return r.finish(ctx, t, StateFailed, last, lastErr)
}

func (r *run) prompt(t *prepare.PreparedTemplate) (*provider.Prompt, error) {
	r.mu.Lock()
	values := make(types.Parameters, len(t.Parameters))
	for _, name := range t.Parameters {
		if v, ok := r.values[name]; ok {
			values[name] = v
		}
	}
	r.mu.Unlock()
	if t.UsesKnowledge() {
		values[types.ReservedKnowledge] = t.Knowledge
	}

	content, missing := types.Substitute(t.Content, values)
	prompt := &provider.Prompt{
		Title:             t.Title,
		Content:           content,
		Parameters:        values,
		ModelRequirements: t.ModelRequirements,
		Expectations:      t.Expectations,
	}
	if len(missing) > 0 {
		return prompt, fmt.Errorf("%w: {%s}", ErrMissingParameter, missing[0])
	}
	return prompt, nil
}

func (r *run) call(ctx context.Context, prompt *provider.Prompt, callsModel bool) (*provider.PromptResult, error) {
	if !callsModel {
		timing := provider.StartTiming()
		return &provider.PromptResult{
			Content: prompt.Content,
			Timing:  timing.Done(),
		}, nil
	}
	return provider.Call(ctx, r.tools, *prompt)
}

func (r *run) update(index int, fn func(*ReportEntry)) {
	r.mu.Lock()
	fn(&r.entries[index])
	r.mu.Unlock()
}

// finish records the terminal state of a template, publishes its result parameter
// on success and schedules the progress callback.
func (r *run) finish(ctx context.Context, t *prepare.PreparedTemplate, state State, res *provider.PromptResult, err error) (string, State, error) {
	r.mu.Lock()
	entry := &r.entries[t.Index]
	if !entry.State.CanTransition(state) {
		r.log.ErrorContext(ctx, "invalid state transition",
			slog.String("template", t.Name),
			slog.String("from", string(entry.State)),
			slog.String("to", string(state)),
		)
	}
	entry.Result = res
	if state == StateSucceeded {
		entry.State = state
		if t.ResultParameter != "" {
			r.values[t.ResultParameter] = res.Content
		}
	} else {
		entry.fail(state, err)
	}
	r.completed++
	p := Progress{
		RunID:     r.id,
		Entry:     *entry,
		Completed: r.completed,
		Total:     len(r.entries),
	}
	r.mu.Unlock()

	if r.progress != nil {
		p.Usage = r.usage.Usage()
		r.progress <- p
	}

	var value string
	if res != nil {
		value = res.Content
	}
	return value, state, err
}
