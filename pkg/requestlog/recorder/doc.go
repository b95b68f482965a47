// Package recorder persists captured request log entries asynchronously.
//
// The proxy hands every completed exchange to Record, which never blocks:
// entries go into a bounded channel drained by background workers that call
// requestlog.Store.Append with a per-write timeout. When the channel is full
// the entry is dropped, counted and logged.
//
// # Basic Usage
//
//	rec := recorder.NewRecorder(store, &recorder.Config{
//	    Enabled:      true,
//	    AsyncBuffer:  1000,
//	    WriteTimeout: 5 * time.Second,
//	    Workers:      1,
//	})
//	rec.OnPersisted(func(e *requestlog.Entry) { hub.Publish(e) })
//	defer rec.Close()
//
//	rec.Record(entry)
//
// Listeners registered with OnPersisted run on the worker goroutine after a
// successful append and receive the stored entry (with ID and timestamp).
// Close stops accepting entries and drains the channel before returning.
package recorder
