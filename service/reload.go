package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"github.com/nulltea/latpir/store"
	"github.com/uber-go/tally"
)

// LoadFunc installs a freshly read record store.
type LoadFunc func(ctx context.Context, db *store.Database) error

// Reloader keeps a server in sync with a record store file. A reload that fails
// leaves whatever was loaded before in place.
type Reloader struct {
	path  string
	load  LoadFunc
	log   logr.Logger
	scope tally.Scope

	mu     sync.Mutex
	digest [32]byte
}

func NewReloader(path string, load LoadFunc, log logr.Logger, scope tally.Scope) *Reloader {
	if scope == nil {
		scope = tally.NoopScope
	}
	return &Reloader{path: path, load: load, log: log, scope: scope}
}

// Reload reads the store and installs it unless its digest matches the one
// installed last. It reports whether a new database was installed.
func (r *Reloader) Reload(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, err := store.Load(r.path)
	if err != nil {
		r.scope.Tagged(map[string]string{"result": "error"}).Counter("reloads").Inc(1)
		return false, err
	}
	if db.Digest == r.digest {
		return false, nil
	}
	if err := r.load(ctx, db); err != nil {
		r.scope.Tagged(map[string]string{"result": "error"}).Counter("reloads").Inc(1)
		return false, err
	}
	r.digest = db.Digest
	r.scope.Tagged(map[string]string{"result": "ok"}).Counter("reloads").Inc(1)
	r.scope.Gauge("records").Update(float64(len(db.Records)))
	return true, nil
}

// Run reloads whenever the store file is written or replaced, and whenever a
// value arrives on signals. It returns when ctx is done.
//
// The parent directory is watched rather than the file, since store.Save
// replaces the file by renaming over it.
func (r *Reloader) Run(ctx context.Context, signals <-chan os.Signal) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return err
	}
	target := filepath.Clean(r.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-signals:
			r.log.Info("reload requested", "signal", sig)
			r.reload(ctx)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				r.log.V(1).Info("store changed", "event", event.String())
				r.reload(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Error(err, "watch failed")
		}
	}
}

func (r *Reloader) reload(ctx context.Context) {
	changed, err := r.Reload(ctx)
	if err != nil {
		// A partially written file shows up here; the next event retries.
		r.log.Error(err, "reload failed, keeping the current database", "path", r.path)
		return
	}
	if changed {
		r.log.Info("database reloaded", "path", r.path)
	}
}
