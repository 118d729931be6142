package bridge

// Error kinds for the generation bridge. Supervisor and codec failures are
// always translated into one of these before they reach the queue or the
// control plane.

// runtimeNotConfiguredError signals that no usable worker runtime resolved.
type runtimeNotConfiguredError struct{ msg string }

func (e runtimeNotConfiguredError) Error() string { return "runtime not configured: " + e.msg }

// ErrRuntimeNotConfigured constructs a runtimeNotConfiguredError.
func ErrRuntimeNotConfigured(msg string) error { return runtimeNotConfiguredError{msg: msg} }

// IsRuntimeNotConfigured reports whether err indicates a missing runtime.
func IsRuntimeNotConfigured(err error) bool {
	_, ok := err.(runtimeNotConfiguredError)
	return ok
}

// startupFailedError signals the worker process never reached ready state.
type startupFailedError struct{ msg string }

func (e startupFailedError) Error() string { return "worker startup failed: " + e.msg }

// ErrStartupFailed constructs a startupFailedError.
func ErrStartupFailed(msg string) error { return startupFailedError{msg: msg} }

// IsStartupFailed reports whether err indicates a failed worker startup.
func IsStartupFailed(err error) bool {
	_, ok := err.(startupFailedError)
	return ok
}

// workerCrashedError signals the worker exited with an operation outstanding.
type workerCrashedError struct{ msg string }

func (e workerCrashedError) Error() string { return "worker crashed: " + e.msg }

// ErrWorkerCrashed constructs a workerCrashedError.
func ErrWorkerCrashed(msg string) error { return workerCrashedError{msg: msg} }

// IsWorkerCrashed reports whether err indicates an unexpected worker exit.
func IsWorkerCrashed(err error) bool {
	_, ok := err.(workerCrashedError)
	return ok
}

// busyError signals a concurrent generate while one is already pending.
type busyError struct{}

func (busyError) Error() string { return "a generation is already in progress" }

// ErrBusy constructs a busyError.
func ErrBusy() error { return busyError{} }

// IsBusy reports whether err indicates the single-flight guard rejected a call.
func IsBusy(err error) bool {
	_, ok := err.(busyError)
	return ok
}

// generationFailedError signals the worker reported failure or produced no
// recognizable success response.
type generationFailedError struct{ reason string }

func (e generationFailedError) Error() string { return "generation failed: " + e.reason }

// ErrGenerationFailed constructs a generationFailedError.
func ErrGenerationFailed(reason string) error { return generationFailedError{reason: reason} }

// IsGenerationFailed reports whether err indicates a failed generation.
func IsGenerationFailed(err error) bool {
	_, ok := err.(generationFailedError)
	return ok
}

// cancelledError signals the operation was torn down by an explicit cancel.
type cancelledError struct{ msg string }

func (e cancelledError) Error() string { return "cancelled: " + e.msg }

// ErrCancelled constructs a cancelledError.
func ErrCancelled(msg string) error { return cancelledError{msg: msg} }

// IsCancelled reports whether err indicates a deliberate cancellation.
func IsCancelled(err error) bool {
	_, ok := err.(cancelledError)
	return ok
}
