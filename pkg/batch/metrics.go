package batch

import "time"

// Metrics provides observability for batch workers.
//
// This is optional. A nil Metrics disables collection.
type Metrics interface {
	// RecordAdmission counts one admission decision
	RecordAdmission(kind, tenant string, granted bool)

	// ObserveDispatch records one dispatch call
	ObserveDispatch(kind string, size int, duration time.Duration, err error)

	// SetQueueDepth records the queued messages of a tenant
	SetQueueDepth(kind, tenant string, depth int)
}

func (w *Worker[T]) recordAdmission(tenant string, granted bool) {
	if w.opts.Metrics != nil {
		w.opts.Metrics.RecordAdmission(w.opts.Kind, tenant, granted)
	}
}

func (w *Worker[T]) observeDispatch(size int, duration time.Duration, err error) {
	if w.opts.Metrics != nil {
		w.opts.Metrics.ObserveDispatch(w.opts.Kind, size, duration, err)
	}
}

func (w *Worker[T]) setQueueDepth(tenant string, depth int) {
	if w.opts.Metrics != nil {
		w.opts.Metrics.SetQueueDepth(w.opts.Kind, tenant, depth)
	}
}
