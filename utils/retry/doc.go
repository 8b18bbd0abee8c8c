// Package retry runs operations with exponential backoff retries for handling
// transient failures in network requests and other operations.
//
// The package supports:
//   - A fixed retry budget per executor with exponential backoff
//   - Supersession: starting a call cancels the executor's previous call
//   - Observable retry state (is a retry in progress, which attempt)
//   - Lifecycle hooks, an event channel and a metrics observer
//   - Reporting of exhausted calls to an error-reporting collaborator
//
// Basic Usage:
//
//	exec, err := retry.NewExecutor(retry.DefaultConfig(),
//	    retry.WithReporter(reporter),
//	    retry.WithHooks(retry.Hooks{
//	        OnRetry: func(attempt int) { log.Printf("retrying, attempt %d", attempt) },
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//
//	image, err := retry.Execute(ctx, exec, "generate image", func(ctx context.Context) (*Image, error) {
//	    return client.Generate(ctx, req)
//	})
//
// Configuration:
//
// The Config struct allows fine-tuning of retry behavior:
//   - MaxRetries: Retries after the first attempt (default: 3)
//   - Delay: Wait before the first retry (default: 1s)
//   - BackoffMultiplier: Growth factor between waits (default: 2.0)
//
// The wait before attempt n (n >= 1) is Delay * BackoffMultiplier^(n-1), with no
// jitter and no cap.
//
// Error Handling:
//
// Every failure is retried the same way; the executor does not classify errors.
// Operations that must stop early should resolve successfully with a value that
// carries the permanent failure and let the caller inspect it. When all attempts
// fail, Execute returns a *RetryExhaustedError (errors.Is ErrRetryExhausted)
// wrapping the last failure. Superseded or cancelled calls return an error
// matching ErrCancelled and are never reported.
//
// Context Support:
//
// Backoff waits end as soon as the call's context is cancelled, and the
// operation receives that context so it can stop cooperatively.
package retry
