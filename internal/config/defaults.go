package config

const (
	defaultDataDir   = "~/.local/share/glot/data"
	defaultRenderDir = "~/.local/share/glot/renders"
	defaultLogDir    = "~/.local/share/glot/logs"
	defaultAPIBind   = "127.0.0.1:7519"

	defaultCanonicalLocale = "en"

	defaultMaxAttempts          = 5
	defaultStaleInFlightSeconds = 300
	defaultBackoffBaseSeconds   = 120
	defaultBackoffCapSeconds    = 3600
	defaultSweepIntervalSeconds = 60
	defaultSweepBatchSize       = 75
	defaultTranslateWorkers     = 4

	defaultQueueURL         = "nats://127.0.0.1:4222"
	defaultTranslateSubject = "glot.translate"
	defaultPublishSubject   = "glot.publish"

	defaultExecutorTimeoutSeconds = 35

	defaultGrantTTLSeconds = 900
	defaultGrantMaxTokens  = 900
	defaultGrantMaxLatency = 35000

	defaultPublishWaitSeconds  = 12
	defaultPublishPollMS       = 500
	defaultCounterTTLDays      = 400
	defaultAllowlistTTLSeconds = 3600

	defaultMaxOps            = 1000
	defaultMaxOpValueBytes   = 100 * 1024
	defaultMaxOverlayBytes   = 1024 * 1024
	defaultMaxTranslateItems = 800
	defaultMaxTranslateChars = 60000

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			RenderDir: defaultRenderDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Locales: Locales{
			Canonical: defaultCanonicalLocale,
			Supported: []string{"en", "fr", "de", "es", "it", "pt", "ja"},
		},
		Pipeline: Pipeline{
			MaxAttempts:          defaultMaxAttempts,
			StaleInFlightSeconds: defaultStaleInFlightSeconds,
			BackoffBaseSeconds:   defaultBackoffBaseSeconds,
			BackoffCapSeconds:    defaultBackoffCapSeconds,
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
			SweepBatchSize:       defaultSweepBatchSize,
			TranslateWorkers:     defaultTranslateWorkers,
		},
		Queue: Queue{
			URL:              defaultQueueURL,
			TranslateSubject: defaultTranslateSubject,
			PublishSubject:   defaultPublishSubject,
		},
		Executor: Executor{
			TimeoutSeconds: defaultExecutorTimeoutSeconds,
		},
		Capability: Capability{
			TTLSeconds:   defaultGrantTTLSeconds,
			Providers:    []string{"deepseek"},
			Models:       []string{"deepseek-chat"},
			MaxTokens:    defaultGrantMaxTokens,
			MaxLatencyMS: defaultGrantMaxLatency,
		},
		Publish: Publish{
			WaitTimeoutSeconds:  defaultPublishWaitSeconds,
			PollIntervalMS:      defaultPublishPollMS,
			CounterTTLDays:      defaultCounterTTLDays,
			AllowlistTTLSeconds: defaultAllowlistTTLSeconds,
		},
		Limits: Limits{
			MaxOps:            defaultMaxOps,
			MaxOpValueBytes:   defaultMaxOpValueBytes,
			MaxOverlayBytes:   defaultMaxOverlayBytes,
			MaxTranslateItems: defaultMaxTranslateItems,
			MaxTranslateChars: defaultMaxTranslateChars,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
