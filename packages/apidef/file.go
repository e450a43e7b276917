package apidef

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type index struct {
	Definitions []Definition `yaml:"definitions"`
}

// FileProvider reads an index file and callback map files relative to it.
// Parsed files are cached until they change on disk.
type FileProvider struct {
	indexPath string
	baseDir   string
	logger    zerolog.Logger

	mu   sync.RWMutex
	defs []Definition
	maps map[string]CallbackMap
}

type FileOption func(*FileProvider)

func WithLogger(logger zerolog.Logger) FileOption {
	return func(p *FileProvider) {
		p.logger = logger
	}
}

func NewFileProvider(indexPath string, opts ...FileOption) *FileProvider {
	p := &FileProvider{
		indexPath: indexPath,
		baseDir:   filepath.Dir(indexPath),
		logger:    zerolog.Nop(),
		maps:      make(map[string]CallbackMap),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *FileProvider) Definitions() ([]Definition, error) {
	p.mu.RLock()
	defs := p.defs
	p.mu.RUnlock()
	if defs != nil {
		return defs, nil
	}

	data, err := os.ReadFile(p.indexPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading API definitions index")
	}
	var idx index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", p.indexPath)
	}
	if idx.Definitions == nil {
		idx.Definitions = []Definition{}
	}

	p.mu.Lock()
	p.defs = idx.Definitions
	p.mu.Unlock()
	return idx.Definitions, nil
}

func (p *FileProvider) CallbackMap(def *Definition) (CallbackMap, error) {
	if def.CallbackMapFile == "" {
		return nil, nil
	}
	path := p.resolve(def.CallbackMapFile)

	p.mu.RLock()
	m, ok := p.maps[path]
	p.mu.RUnlock()
	if ok {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading callback map")
	}
	m = CallbackMap{}
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, &m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	p.mu.Lock()
	p.maps[path] = m
	p.mu.Unlock()
	return m, nil
}

func (p *FileProvider) resolve(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(p.baseDir, file)
}

// Invalidate drops cached data for path, or everything when path is the
// index.
func (p *FileProvider) Invalidate(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if filepath.Clean(path) == filepath.Clean(p.indexPath) {
		p.defs = nil
		p.maps = make(map[string]CallbackMap)
		return
	}
	delete(p.maps, filepath.Clean(path))
}

// Watch invalidates cached files when they are written, until ctx is done.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating file watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(p.baseDir); err != nil {
		return errors.Wrapf(err, "watching %s", p.baseDir)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				p.logger.Debug().Str("file", event.Name).Msg("API definition file changed")
				p.Invalidate(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}
