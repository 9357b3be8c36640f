// Package syncer watches the admin's local content directory and pushes
// edits to the backend: content/profile.json maps to PUT /admin/profile and
// each content/projects/*.json to the project endpoints. Editing portfolio
// content is therefore a matter of saving a file.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ndquang/portfolio-rtc/internal/api"
)

const (
	profileFile = "profile.json"
	projectsDir = "projects"

	// Editors fire several Write events per save; wait for the burst to
	// settle before pushing.
	debounceDelay = 500 * time.Millisecond

	pushTimeout = 15 * time.Second
)

// projectFile is a project payload on disk, with the backend id added once
// the project exists remotely.
type projectFile struct {
	ID int `json:"id,omitempty"`
	api.ProjectUpdate
}

// Syncer pushes content-directory changes to the backend.
type Syncer struct {
	client  *api.Client
	dir     string
	watcher *fsnotify.Watcher
	closed  chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer // debounce timer per path
	ids     map[string]int         // project file path -> backend id
}

// New starts watching dir (created if missing, along with its projects/
// subdirectory).
func New(client *api.Client, dir string) (*Syncer, error) {
	if err := os.MkdirAll(filepath.Join(dir, projectsDir), 0755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	for _, d := range []string{dir, filepath.Join(dir, projectsDir)} {
		if err := watcher.Add(d); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", d, err)
		}
	}

	s := &Syncer{
		client:  client,
		dir:     dir,
		watcher: watcher,
		closed:  make(chan struct{}),
		pending: make(map[string]*time.Timer),
		ids:     make(map[string]int),
	}
	go s.watchLoop()

	log.Printf("SYNC: watching %s", dir)
	return s, nil
}

// SyncAll pushes the current on-disk content once, typically at startup.
func (s *Syncer) SyncAll(ctx context.Context) error {
	profilePath := filepath.Join(s.dir, profileFile)
	if _, err := os.Stat(profilePath); err == nil {
		if err := s.pushProfile(ctx, profilePath); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(filepath.Join(s.dir, projectsDir))
	if err != nil {
		return fmt.Errorf("read projects dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, projectsDir, e.Name())
		if err := s.pushProject(ctx, path); err != nil {
			log.Printf("SYNC: %s: %v", path, err)
		}
	}
	return nil
}

func (s *Syncer) watchLoop() {
	for {
		select {
		case <-s.closed:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				s.debounce(event.Name)
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				s.handleRemove(event.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("SYNC: watcher error: %v", err)
		}
	}
}

// debounce coalesces the event burst one editor save produces into a single
// push per path.
func (s *Syncer) debounce(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[path]; ok {
		t.Reset(debounceDelay)
		return
	}
	s.pending[path] = time.AfterFunc(debounceDelay, func() {
		s.mu.Lock()
		delete(s.pending, path)
		s.mu.Unlock()

		select {
		case <-s.closed:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := s.push(ctx, path); err != nil {
			log.Printf("SYNC: %s: %v", path, err)
		}
	})
}

func (s *Syncer) push(ctx context.Context, path string) error {
	if filepath.Base(path) == profileFile && filepath.Dir(path) == s.dir {
		return s.pushProfile(ctx, path)
	}
	if filepath.Dir(path) == filepath.Join(s.dir, projectsDir) {
		return s.pushProject(ctx, path)
	}
	return nil
}

func (s *Syncer) pushProfile(ctx context.Context, path string) error {
	var p api.ProfileUpdate
	if err := readJSON(path, &p); err != nil {
		return err
	}
	if err := s.client.UpdateProfile(ctx, p); err != nil {
		return err
	}
	log.Printf("SYNC: profile pushed")
	return nil
}

func (s *Syncer) pushProject(ctx context.Context, path string) error {
	var pf projectFile
	if err := readJSON(path, &pf); err != nil {
		return err
	}

	s.mu.Lock()
	id := s.ids[path]
	s.mu.Unlock()
	if pf.ID > 0 {
		id = pf.ID
	}

	if id > 0 {
		if err := s.client.UpdateProject(ctx, id, pf.ProjectUpdate); err != nil {
			return err
		}
		s.remember(path, id)
		log.Printf("SYNC: project %q updated (id=%d)", pf.Name, id)
		return nil
	}

	created, err := s.client.CreateProject(ctx, pf.ProjectUpdate)
	if err != nil {
		return err
	}
	s.remember(path, created.ID)
	log.Printf("SYNC: project %q created (id=%d)", pf.Name, created.ID)
	return nil
}

// handleRemove deletes the backend project a removed file was mapped to.
// Files never pushed through this syncer (no known id) are left alone. The
// decision waits out debounceDelay and rechecks the path first: editors that
// save by renaming the old file away and writing a new one would otherwise
// trigger a remote delete on every save.
func (s *Syncer) handleRemove(path string) {
	time.AfterFunc(debounceDelay, func() {
		select {
		case <-s.closed:
			return
		default:
		}
		if _, err := os.Stat(path); err == nil {
			return // file reappeared, it was a rename-style save
		}

		s.mu.Lock()
		id, ok := s.ids[path]
		delete(s.ids, path)
		s.mu.Unlock()
		if !ok || id <= 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := s.client.DeleteProject(ctx, id); err != nil {
			log.Printf("SYNC: delete project id=%d: %v", id, err)
			return
		}
		log.Printf("SYNC: project id=%d deleted", id)
	})
}

func (s *Syncer) remember(path string, id int) {
	s.mu.Lock()
	s.ids[path] = id
	s.mu.Unlock()
}

// Close stops the watcher. Pending debounced pushes are dropped.
func (s *Syncer) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
		close(s.closed)
	}

	s.mu.Lock()
	for path, t := range s.pending {
		t.Stop()
		delete(s.pending, path)
	}
	s.mu.Unlock()

	return s.watcher.Close()
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
