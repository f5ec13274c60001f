package config

import (
	"sync"
)

// Settings is the hot-reloadable subset of Config.
type Settings struct {
	Extraction    ExtractionConfig
	Sender        SenderConfig
	Forwarding    ForwardingConfig
	Notifications NotificationConfig
}

// SettingsFrom copies the reloadable sections out of cfg.
func SettingsFrom(cfg *Config) Settings {
	return Settings{
		Extraction:    cfg.Extraction,
		Sender:        cfg.Sender,
		Forwarding:    cfg.Forwarding,
		Notifications: cfg.Sources.Notifications,
	}
}

// Live holds the current Settings. Readers always see a complete snapshot.
type Live struct {
	mu        sync.RWMutex
	current   Settings
	listeners []func(Settings)
}

func NewLive(cfg *Config) *Live {
	return &Live{current: SettingsFrom(cfg)}
}

func (l *Live) Get() Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func (l *Live) Extraction() ExtractionConfig {
	return l.Get().Extraction
}

func (l *Live) Sender() SenderConfig {
	return l.Get().Sender
}

func (l *Live) Forwarding() ForwardingConfig {
	return l.Get().Forwarding
}

func (l *Live) Notifications() NotificationConfig {
	return l.Get().Notifications
}

// OnChange registers fn to run after every successful Set.
func (l *Live) OnChange(fn func(Settings)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Set validates s and swaps it in.
func (l *Live) Set(s Settings) error {
	if err := validateSettings(s); err != nil {
		return err
	}

	l.mu.Lock()
	l.current = s
	listeners := append([]func(Settings){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
	return nil
}

// Update applies fn to a copy of the current settings and stores the result.
func (l *Live) Update(fn func(s *Settings)) error {
	next := l.Get()
	fn(&next)
	return l.Set(next)
}

func validateSettings(s Settings) error {
	if err := validateExtraction(s.Extraction); err != nil {
		return err
	}
	if err := validateSender(s.Sender); err != nil {
		return err
	}
	if err := validateForwarding(s.Forwarding); err != nil {
		return err
	}
	if err := validateNotificationRule(s.Notifications.Rule); err != nil {
		return err
	}
	return nil
}
