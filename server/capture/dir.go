package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/warmcold/pkg/geometry"
	"github.com/cyclopcam/warmcold/server/log"
	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
)

// DirSource watches a directory for new images (eg screenshots written by another process).
// Every new or rewritten .png or .jpg becomes a frame.
type DirSource struct {
	Dir string

	log       log.Log
	slot      LatestSlot
	nextID    atomic.Int64
	lock      sync.Mutex
	watcher   *fsnotify.Watcher
	stopped   chan struct{}
	lastErrAt time.Time
}

func NewDirSource(logger log.Log, dir string) *DirSource {
	return &DirSource{
		Dir: dir,
		log: log.NewPrefixLogger(logger, "DirSource:"),
	}
}

func (s *DirSource) Name() string {
	return "dir:" + s.Dir
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// Start loads the newest image that is already in the directory, and then watches for more
func (s *DirSource) Start(onAvailable func()) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.watcher != nil {
		return nil
	}
	st, err := os.Stat(s.Dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%v is not a directory", s.Dir)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.Dir); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher
	s.stopped = make(chan struct{})

	if newest := s.newestExisting(); newest != "" {
		if s.load(newest) {
			onAvailable()
		}
	}

	go s.watch(watcher, onAvailable)
	return nil
}

func (s *DirSource) newestExisting() string {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return ""
	}
	type candidate struct {
		name    string
		modTime time.Time
	}
	all := []candidate{}
	for _, e := range entries {
		if e.IsDir() || !isImageFile(e.Name()) {
			continue
		}
		if info, err := e.Info(); err == nil {
			all = append(all, candidate{e.Name(), info.ModTime()})
		}
	}
	if len(all) == 0 {
		return ""
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].modTime.Before(all[j].modTime)
	})
	return filepath.Join(s.Dir, all[len(all)-1].name)
}

func (s *DirSource) watch(watcher *fsnotify.Watcher, onAvailable func()) {
	defer close(s.stopped)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isImageFile(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				if s.load(ev.Name) {
					onAvailable()
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Errorf("Watcher error: %v", err)
		}
	}
}

// load decodes an image into the slot. Returns false if the file couldn't be read,
// which is normal while another process is still writing it.
func (s *DirSource) load(filename string) bool {
	img, err := imaging.Open(filename)
	if err != nil {
		if time.Since(s.lastErrAt) > 15*time.Second {
			s.log.Warnf("Failed to read %v: %v", filename, err)
			s.lastErrAt = time.Now()
		}
		return false
	}
	nrgba := imaging.Clone(img)
	s.slot.Put(geometry.NewFrame(nrgba, s.nextID.Add(1), time.Now()))
	return true
}

func (s *DirSource) AcquireLatest() (*geometry.Frame, error) {
	return s.slot.AcquireLatest()
}

func (s *DirSource) Close() error {
	s.lock.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.lock.Unlock()
	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-s.stopped
	s.slot.Clear()
	return err
}
