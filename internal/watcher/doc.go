// Package watcher keeps the sqlite index in step with the backup ledger.
//
// Backups are written as JSON documents under the backup root, sometimes
// by other processes (an installer calling the library, a copy restored
// from another machine). The Watcher subscribes to the root with fsnotify
// and re-indexes a document whenever it is written, renamed or removed.
// A periodic full reconcile catches anything the event stream missed, and
// an optional retention ticker prunes expired backups.
//
// Key features:
//   - fsnotify events on the backup root (no polling of document contents)
//   - Periodic reconcile of documents against indexed rows
//   - Retention pruning on an hourly ticker
//   - Prometheus /metrics endpoint while running
//   - Daemon mode support with PID file management
//   - Graceful shutdown with SIGTERM/SIGINT handling
//
// Example usage:
//
//	st, err := store.New("~/.tweakguard/tweakguard.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer st.Close()
//
//	w, err := watcher.New(led, st, watcher.WithInterval(10*time.Minute))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Start watching in foreground
//	if err := w.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
package watcher
