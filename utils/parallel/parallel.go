package parallel

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Task represents a function to be executed in parallel
type Task func(ctx context.Context) (any, error)

// Result holds the result and error from a parallel task execution
type Result struct {
	Value any
	Error error
}

// Results holds the map of results from parallel execution
type Results map[string]Result

// Keys returns the result keys in sorted order
func (r Results) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Errors returns the failed results keyed by task
func (r Results) Errors() map[string]error {
	errs := make(map[string]error)
	for k, res := range r {
		if res.Error != nil {
			errs[k] = res.Error
		}
	}
	return errs
}

// Builder manages parallel task execution with type-safe retrieval
type Builder struct {
	tasks map[string]Task
	limit int
}

// NewBuilder creates a new parallel builder
func NewBuilder() *Builder {
	return &Builder{
		tasks: make(map[string]Task),
	}
}

// Add adds a keyed task to be executed in parallel
func (b *Builder) Add(key string, task Task) *Builder {
	b.tasks[key] = task
	return b
}

// Limit caps how many tasks run at once; zero or less means no cap
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Run executes all tasks in parallel and returns results keyed by their original keys.
// Tasks still waiting for a slot when ctx ends are not started and get ctx.Err().
func (b *Builder) Run(ctx context.Context) Results {
	if len(b.tasks) == 0 {
		return Results{}
	}

	limit := b.limit
	if limit <= 0 || limit > len(b.tasks) {
		limit = len(b.tasks)
	}
	slots := make(chan struct{}, limit)

	results := make(Results, len(b.tasks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for key, task := range b.tasks {
		wg.Add(1)
		go func(k string, t Task) {
			defer wg.Done()

			var res Result
			select {
			case slots <- struct{}{}:
				res = runTask(ctx, k, t)
				<-slots
			case <-ctx.Done():
				res = Result{Error: ctx.Err()}
			}

			mu.Lock()
			results[k] = res
			mu.Unlock()
		}(key, task)
	}

	wg.Wait()
	return results
}

// runTask runs one task, turning a panic into its error
func runTask(ctx context.Context, key string, task Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Error: fmt.Errorf("task %s panicked: %v", key, r)}
		}
	}()

	value, err := task(ctx)
	return Result{Value: value, Error: err}
}

// Get retrieves a typed result using the function signature to infer the return type
func Get[T any](results Results, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	result, exists := results[key]
	if !exists {
		return zero, fmt.Errorf("no result found for key: %s", key)
	}

	if result.Error != nil {
		return zero, result.Error
	}

	// Type assert to the inferred type from the function signature
	value, ok := result.Value.(T)
	if !ok {
		return zero, fmt.Errorf("type assertion failed for key %s: expected %T, got %T", key, zero, result.Value)
	}

	return value, nil
}
