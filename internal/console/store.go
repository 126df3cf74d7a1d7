package console

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk layout of filters.yaml.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Store persists an ordered rule list as YAML.
type Store struct {
	path     string
	debounce time.Duration
	log      logger.Logger

	mu sync.Mutex // serializes read-modify-write
}

// NewStore creates a store for the file at path.
func NewStore(path string) *Store {
	return &Store{
		path:     path,
		debounce: 100 * time.Millisecond,
		log:      logger.NewEnvLogger("[filters]"),
	}
}

// Path returns the rule file location.
func (s *Store) Path() string {
	return s.path
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(l logger.Logger) {
	s.log = l
}

// Load reads the rule list. A missing file is an empty list.
func (s *Store) Load() ([]Rule, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Rule{}, nil
		}
		return nil, errors.WrapWithCode(err, errors.ErrFilter,
			"Cannot read filter rules",
			"Check permissions on "+s.path)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrFilter,
			"Filter rules file is not valid YAML",
			"Fix or delete "+s.path)
	}
	if f.Rules == nil {
		f.Rules = []Rule{}
	}
	return f.Rules, nil
}

// Save writes the rule list, replacing the file atomically.
func (s *Store) Save(rules []Rule) error {
	data, err := yaml.Marshal(ruleFile{Rules: rules})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrFilter, "Cannot encode filter rules", "")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.WrapWithCode(err, errors.ErrFilter,
			"Cannot create filter rules directory",
			"Check permissions on "+filepath.Dir(s.path))
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".filters-*.yaml")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrFilter, "Cannot write filter rules", "Check disk space and permissions")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapWithCode(err, errors.ErrFilter, "Cannot write filter rules", "Check disk space and permissions")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapWithCode(err, errors.ErrFilter, "Cannot write filter rules", "Check disk space and permissions")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.WrapWithCode(err, errors.ErrFilter, "Cannot replace filter rules file", "Check permissions on "+s.path)
	}
	return nil
}

// Add validates r, assigns an ID if missing, puts it first and saves. A new
// rule runs before the existing ones.
func (s *Store) Add(r Rule) (Rule, error) {
	if _, err := compile(r); err != nil {
		return Rule{}, errors.WrapWithCode(err, errors.ErrFilter,
			"Filter rule is invalid",
			"Check the pattern, flags, type and color")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.Load()
	if err != nil {
		return Rule{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	for _, existing := range rules {
		if existing.ID == r.ID {
			return Rule{}, errors.New(errors.ErrFilter,
				fmt.Sprintf("A filter with id %s already exists", r.ID),
				"Remove it first or pick another id")
		}
	}
	rules = append([]Rule{r}, rules...)
	return r, s.Save(rules)
}

// Remove deletes the rule with id and saves. Returns false if absent.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.Load()
	if err != nil {
		return false, err
	}
	kept := rules[:0]
	found := false
	for _, r := range rules {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return false, nil
	}
	return true, s.Save(kept)
}

// Watch sends the reloaded rule list each time the file changes. The parent
// directory is watched so atomic replaces are seen. Unparsable revisions are
// logged and skipped. The channel closes when ctx is done.
func (s *Store) Watch(ctx context.Context) (<-chan []Rule, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrFilter, "Cannot watch filter rules", "Check permissions on "+dir)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrFilter, "Cannot watch filter rules", "")
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, errors.WrapWithCode(err, errors.ErrFilter, "Cannot watch filter rules", "Check permissions on "+dir)
	}

	out := make(chan []Rule, 1)
	go s.watchLoop(ctx, w, out)
	return out, nil
}

func (s *Store) watchLoop(ctx context.Context, w *fsnotify.Watcher, out chan<- []Rule) {
	defer close(out)
	defer w.Close()

	target := filepath.Clean(s.path)
	var debounce *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(s.debounce)
			} else {
				debounce.Reset(s.debounce)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			rules, err := s.Load()
			if err != nil {
				s.log.Warn("skipping filter reload: %v", err)
				continue
			}
			select {
			case out <- rules:
			case <-ctx.Done():
				return
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Warn("filter watcher: %v", err)
		}
	}
}
