package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is true when any segmentation or timeout setting changed.
	// The listener picks up NewVAD at its next listening phase.
	VADChanged bool
	NewVAD     VADConfig

	// RestartRequired lists top-level sections that changed but can only be
	// applied by restarting the process.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Segmentation tuning
	if !sameTuning(old.VAD, new.VAD) {
		d.VADChanged = true
		d.NewVAD = new.VAD
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Kiosk != new.Kiosk {
		d.RestartRequired = append(d.RestartRequired, "kiosk")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if aggressiveness(old.VAD) != aggressiveness(new.VAD) {
		d.RestartRequired = append(d.RestartRequired, "vad.aggressiveness")
	}
	if !sameProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}

	return d
}

// sameTuning compares the hot-reloadable VAD fields.
func sameTuning(a, b VADConfig) bool {
	return a.WindowSize == b.WindowSize &&
		a.TriggerRatio == b.TriggerRatio &&
		a.HangoverFrames == b.HangoverFrames &&
		a.ListenTimeout == b.ListenTimeout &&
		a.PollInterval == b.PollInterval
}

func aggressiveness(v VADConfig) int {
	if v.Aggressiveness == nil {
		return DefaultAggressiveness
	}
	return *v.Aggressiveness
}

// sameProviders compares provider selections by name, endpoint and model.
// Option maps are not compared.
func sameProviders(a, b ProvidersConfig) bool {
	same := func(x, y ProviderEntry) bool {
		return x.Name == y.Name && x.BaseURL == y.BaseURL && x.Model == y.Model && x.APIKey == y.APIKey
	}
	if !same(a.VAD, b.VAD) || !same(a.STT, b.STT) || !same(a.Dialogue, b.Dialogue) ||
		!same(a.Playback, b.Playback) || !same(a.Audio, b.Audio) {
		return false
	}
	if len(a.STTFallbacks) != len(b.STTFallbacks) {
		return false
	}
	for i := range a.STTFallbacks {
		if !same(a.STTFallbacks[i], b.STTFallbacks[i]) {
			return false
		}
	}
	return true
}
