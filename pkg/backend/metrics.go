package backend

import (
	"context"
	"io"
	"time"
)

// Metrics provides observability for storage drivers.
//
// This is optional. Drivers are only wrapped when metrics are enabled.
type Metrics interface {
	// ObserveOperation records one driver call
	ObserveOperation(storage, operation string, duration time.Duration, err error)

	// RecordBytes records bytes moved by a driver call
	RecordBytes(storage, operation string, bytes int64)
}

// Instrument wraps d so every call is reported to m. A nil m returns d.
func Instrument(d Driver, m Metrics) Driver {
	if m == nil {
		return d
	}
	return &instrumentedDriver{Driver: d, metrics: m}
}

type instrumentedDriver struct {
	Driver
	metrics Metrics
}

func (d *instrumentedDriver) Store(ctx context.Context, in StoreInput) (string, error) {
	start := time.Now()
	location, err := d.Driver.Store(ctx, in)
	d.metrics.ObserveOperation(d.Name(), "store", time.Since(start), err)
	if err == nil {
		d.metrics.RecordBytes(d.Name(), "store", in.Size)
	}
	return location, err
}

func (d *instrumentedDriver) Retrieve(ctx context.Context, location string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := d.Driver.Retrieve(ctx, location)
	d.metrics.ObserveOperation(d.Name(), "retrieve", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &countingReader{ReadCloser: rc, done: func(n int64) { d.metrics.RecordBytes(d.Name(), "retrieve", n) }}, nil
}

func (d *instrumentedDriver) Delete(ctx context.Context, location string) error {
	start := time.Now()
	err := d.Driver.Delete(ctx, location)
	d.metrics.ObserveOperation(d.Name(), "delete", time.Since(start), err)
	return err
}

// Healthcheck forwards to the wrapped driver when it can probe its storage.
func (d *instrumentedDriver) Healthcheck(ctx context.Context) error {
	if hc, ok := d.Driver.(Healthchecker); ok {
		return hc.Healthcheck(ctx)
	}
	return nil
}

// countingReader reports the bytes read once closed.
type countingReader struct {
	io.ReadCloser
	n    int64
	done func(int64)
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *countingReader) Close() error {
	err := r.ReadCloser.Close()
	if r.done != nil {
		r.done(r.n)
		r.done = nil
	}
	return err
}
