//go:build !(rp2040 || rp2350)

package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"calcpad-go/errcode"
	"calcpad-go/types"
)

// EnvPrefix prefixes environment overrides, e.g. CALCPAD_SLEEP_TIMEOUT_MS.
const EnvPrefix = "CALCPAD"

// FileStore keeps settings in a YAML file. Loading goes through viper so
// environment variables override the file; saving writes the whole file
// atomically.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (f *FileStore) Path() string { return f.path }

// DefaultPath is settings.yaml under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "calcpad", "settings.yaml")
}

func (f *FileStore) viper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(f.path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := registerDefaults(v, types.DefaultSettings()); err != nil {
		return nil, err
	}
	return v, nil
}

// registerDefaults sets a default for every key so AutomaticEnv can
// override keys missing from the file.
func registerDefaults(v *viper.Viper, d types.Settings) error {
	raw, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return err
	}
	flatten("", m, v.SetDefault)
	return nil
}

func flatten(prefix string, m map[string]any, set func(string, any)) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			flatten(key, sub, set)
			continue
		}
		set(key, val)
	}
}

// Load reads the file. A missing file yields the defaults.
func (f *FileStore) Load() (types.Settings, error) {
	v, err := f.viper()
	if err != nil {
		return types.Settings{}, err
	}
	return f.read(v)
}

func (f *FileStore) read(v *viper.Viper) (types.Settings, error) {
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.Settings{}, errcode.Wrap(errcode.Error, "config.FileStore.Load", err)
	}
	var s types.Settings
	if err := v.Unmarshal(&s); err != nil {
		return types.Settings{}, errcode.Wrap(errcode.InvalidParams, "config.FileStore.Load", err)
	}
	return s, nil
}

// Save writes through a temp file and rename.
func (f *FileStore) Save(s types.Settings) error {
	const op = "config.FileStore.Save"
	raw, err := yaml.Marshal(s)
	if err != nil {
		return errcode.Wrap(errcode.Error, op, err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errcode.Wrap(errcode.Error, op, err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return errcode.Wrap(errcode.Error, op, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errcode.Wrap(errcode.Error, op, err)
	}
	if err := tmp.Close(); err != nil {
		return errcode.Wrap(errcode.Error, op, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errcode.Wrap(errcode.Error, op, err)
	}
	return nil
}

// Watch calls fn with the reloaded settings whenever the file changes,
// until ctx is done. The file must exist.
func (f *FileStore) Watch(ctx context.Context, fn func(types.Settings, error)) error {
	if _, err := os.Stat(f.path); err != nil {
		return errcode.Wrap(errcode.NotFound, "config.FileStore.Watch", err)
	}
	v, err := f.viper()
	if err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		return errcode.Wrap(errcode.Error, "config.FileStore.Watch", err)
	}
	var stopped atomic.Bool
	go func() {
		<-ctx.Done()
		stopped.Store(true)
	}()
	v.OnConfigChange(func(e fsnotify.Event) {
		if stopped.Load() || !e.Has(fsnotify.Write|fsnotify.Create) {
			return
		}
		fn(f.Load())
	})
	v.WatchConfig()
	return nil
}
