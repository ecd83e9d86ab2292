package config

const (
	defaultDataDir                   = "~/.local/share/meetscribe"
	defaultLogDir                    = "~/.local/share/meetscribe/logs"
	defaultSocketPath                = "~/.local/share/meetscribe/scribed.sock"
	defaultAPIBind                   = "127.0.0.1:7521"
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultElementCacheTTLSeconds    = 5
	defaultActionDebounceSeconds     = 1
	defaultPresenceDebounceMillis    = 1000
	defaultCaptionDebounceMillis     = 300
	defaultCaptionVerifyDelayMillis  = 500
	defaultWaitElementTimeoutSeconds = 10
	defaultBackupIntervalSeconds     = 20
	defaultHistoryLimit              = 50
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath,
			APIBind:    defaultAPIBind,
		},
		Capture: Capture{
			ElementCacheTTLSeconds:    defaultElementCacheTTLSeconds,
			ActionDebounceSeconds:     defaultActionDebounceSeconds,
			PresenceDebounceMillis:    defaultPresenceDebounceMillis,
			CaptionDebounceMillis:     defaultCaptionDebounceMillis,
			AutoEnableCaptions:        true,
			CaptionVerifyDelayMillis:  defaultCaptionVerifyDelayMillis,
			WaitElementTimeoutSeconds: defaultWaitElementTimeoutSeconds,
		},
		Backup: Backup{
			IntervalSeconds: defaultBackupIntervalSeconds,
			HistoryLimit:    defaultHistoryLimit,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
