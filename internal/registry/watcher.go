package registry

import (
	"strings"

	"github.com/codefionn/wasmwerk/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watcher installs tool packages dropped into a directory while the process
// runs. Only *.zip files are considered; a package that fails validation is
// logged and left alone.
type Watcher struct {
	reg     *Registry
	watcher *fsnotify.Watcher
	log     *logger.Logger
	done    chan struct{}
}

// WatchDir starts watching dir for new tool packages.
func WatchDir(reg *Registry, dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{
		reg:     reg,
		watcher: fw,
		log:     logger.Global().WithPrefix("watcher"),
		done:    make(chan struct{}),
	}
	go w.loop()
	w.log.Info("watching %s for tool packages", dir)
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".zip") {
				continue
			}
			if t, err := w.reg.InstallFile(ev.Name); err != nil {
				w.log.Warn("package %s rejected: %v", ev.Name, err)
			} else {
				w.log.Info("package %s installed as %s@%s", ev.Name, t.Name, t.Version)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error: %v", err)
		}
	}
}

// Close stops the watcher and waits for the event loop to drain.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
