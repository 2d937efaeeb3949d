package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/tobiipro/g3go/logging"
)

// Manager loads the configuration and optionally hot-reloads it when the
// file changes. Registered callbacks run on every successful reload.
type Manager struct {
	logger *logging.Logger

	mu              sync.RWMutex
	config          *Config
	configPath      string
	updateCallbacks []func(*Config)

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a configuration manager.
func NewManager(logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default().WithComponent("config")
	}
	return &Manager{
		logger: logger,
		config: Default(),
	}
}

// Load reads the configuration file, applies environment overrides and
// validates the result. An empty path keeps the defaults with
// environment overrides only.
func (m *Manager) Load(configPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	config, err := m.read(configPath)
	if err != nil {
		return err
	}
	m.config = config
	m.configPath = configPath

	m.logger.WithFields(logging.Fields{
		"config_path": configPath,
	}).Info("Configuration loaded")
	return nil
}

func (m *Manager) read(configPath string) (*Config, error) {
	v := viper.New()
	m.setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("G3")

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("cannot read configuration file %q: %w", configPath, err)
		}
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cannot read configuration file %q: %w", configPath, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("cannot parse configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func (m *Manager) setDefaults(v *viper.Viper) {
	defaults := Default()
	v.SetDefault("device.hostname", defaults.Device.Hostname)
	v.SetDefault("device.use_ip", defaults.Device.UseIP)
	v.SetDefault("discovery.timeout_seconds", defaults.Discovery.TimeoutSeconds)
	v.SetDefault("streams.scene_camera", defaults.Streams.SceneCamera)
	v.SetDefault("streams.eye_cameras", defaults.Streams.EyeCameras)
	v.SetDefault("streams.gaze", defaults.Streams.Gaze)
	v.SetDefault("streams.subscriber_queue_size", defaults.Streams.SubscriberQueueSize)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.console_enabled", defaults.Logging.ConsoleEnabled)
	v.SetDefault("logging.max_file_size_mb", defaults.Logging.MaxFileSizeMB)
	v.SetDefault("logging.backup_count", defaults.Logging.BackupCount)
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnUpdate registers a callback invoked after every successful reload.
func (m *Manager) OnUpdate(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCallbacks = append(m.updateCallbacks, callback)
}

// Watch starts hot reload of the loaded configuration file. A change
// that fails to parse or validate keeps the previous configuration.
func (m *Manager) Watch() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configPath == "" {
		return fmt.Errorf("no configuration file loaded to watch")
	}
	if m.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(m.configPath); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %q: %w", m.configPath, err)
	}
	m.watcher = watcher
	m.stopChan = make(chan struct{})

	m.wg.Add(1)
	go m.watchLoop(watcher, m.stopChan)
	return nil
}

func (m *Manager) watchLoop(watcher *fsnotify.Watcher, stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			m.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.WithError(err).Warn("Config watcher error")
		}
	}
}

func (m *Manager) reload() {
	m.mu.Lock()
	config, err := m.read(m.configPath)
	if err != nil {
		m.mu.Unlock()
		m.logger.WithError(err).Warn("Config reload failed, keeping previous configuration")
		return
	}
	m.config = config
	callbacks := make([]func(*Config), len(m.updateCallbacks))
	copy(callbacks, m.updateCallbacks)
	m.mu.Unlock()

	m.logger.Info("Configuration reloaded")
	for _, callback := range callbacks {
		callback(config)
	}
}

// StopWatching stops hot reload and waits for the watcher to exit.
func (m *Manager) StopWatching() {
	m.mu.Lock()
	watcher := m.watcher
	stop := m.stopChan
	m.watcher = nil
	m.stopChan = nil
	m.mu.Unlock()

	if watcher == nil {
		return
	}
	close(stop)
	watcher.Close()
	m.wg.Wait()
}
