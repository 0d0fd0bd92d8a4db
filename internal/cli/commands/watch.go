package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapsheets/internal/cli/output"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Deps     bool
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <file.sql>...",
		Short: "Re-export files whenever they are saved",
		Long: `Watch SQL files and export them each time they change.

Edits the export itself writes into the directive headers do not trigger
another export.`,
		Example: `  leapsheets watch reports/sales.sql`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Deps, "deps", false, "Execute pre_file scripts before each block")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 300*time.Millisecond, "Wait this long after the last change before exporting")

	return cmd
}

// fileWatcher tracks the content each watched file had after its last
// export, so the export's own rewrites are not mistaken for user edits.
type fileWatcher struct {
	files map[string][]byte
}

func newFileWatcher(paths []string) *fileWatcher {
	w := &fileWatcher{files: make(map[string][]byte, len(paths))}
	for _, p := range paths {
		w.files[p] = nil
	}
	return w
}

func (w *fileWatcher) watched(path string) bool {
	_, ok := w.files[path]
	return ok
}

// changed reports whether path differs from what the last export left.
func (w *fileWatcher) changed(path string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	last, ok := w.files[path]
	return !ok || last == nil || !bytes.Equal(last, content)
}

// settle records the current content of path.
func (w *fileWatcher) settle(path string) {
	if content, err := os.ReadFile(path); err == nil {
		w.files[path] = content
	}
}

func runWatch(cmd *cobra.Command, opts *WatchOptions, args []string) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths := make([]string, 0, len(args))
	for _, a := range args {
		p, err := filepath.Abs(a)
		if err != nil {
			return err
		}
		if _, err := os.Stat(p); err != nil {
			return err
		}
		paths = append(paths, p)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch directories so files replaced on save are still seen.
	dirs := map[string]bool{}
	for _, p := range paths {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	rt := cc.NewRuntime(ctx, false)
	defer rt.Close()

	fw := newFileWatcher(paths)
	for _, p := range paths {
		fw.settle(p)
	}
	r.Muted(fmt.Sprintf("Watching %d file(s). Press Ctrl+C to stop.", len(paths)))

	return watchLoop(ctx, watcher, fw, opts.Debounce, func(path string) {
		r.Header(2, fmt.Sprintf("%s (%s)", filepath.Base(path), time.Now().Format(time.TimeOnly)))
		if err := exportOnce(ctx, rt, path, opts.Deps, r); err != nil {
			r.Error(err.Error())
		}
		fw.settle(path)
	}, r)
}

// watchLoop debounces change events per file and calls export for files
// whose content changed since the last export.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, fw *fileWatcher, debounce time.Duration, export func(string), r *output.Renderer) error {
	pending := map[string]time.Time{}
	ticker := time.NewTicker(max(debounce/3, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			path := filepath.Clean(ev.Name)
			if fw.watched(path) {
				pending[path] = time.Now()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.Warning(err.Error())
		case now := <-ticker.C:
			for path, at := range pending {
				if now.Sub(at) < debounce {
					continue
				}
				delete(pending, path)
				if fw.changed(path) {
					export(path)
				}
			}
		}
	}
}
