// Package config defines the explicit configuration struct and its
// loading order: defaults, then the JSON file, then environment
// overrides. The struct is constructed once and passed by reference;
// nothing reads configuration ad hoc.
package config

// PathsConfig groups filesystem locations.
type PathsConfig struct {
	SessionsDir string `json:"sessionsDir" envconfig:"SESSIONS_DIR"`
	OffloadDir  string `json:"offloadDir" envconfig:"OFFLOAD_DIR"`
	TraceDB     string `json:"traceDb" envconfig:"TRACE_DB"`
}

// ModelConfig identifies the transport the core talks to.
type ModelConfig struct {
	Platform string `json:"platform" envconfig:"PLATFORM"`
	Name     string `json:"name" envconfig:"NAME"`
}

// LoopConfig holds the run-loop thresholds.
type LoopConfig struct {
	MaxTurns           int    `json:"maxTurns" envconfig:"MAX_TURNS"`
	ReminderEvery      int    `json:"reminderEvery" envconfig:"REMINDER_EVERY"`
	CompactEvery       int    `json:"compactEvery" envconfig:"COMPACT_EVERY"`
	CompletionMarker   string `json:"completionMarker" envconfig:"COMPLETION_MARKER"`
	ConfirmBeforeApply bool   `json:"confirmBeforeApply" envconfig:"CONFIRM_BEFORE_APPLY"`
	NeedSummary        bool   `json:"needSummary" envconfig:"NEED_SUMMARY"`
}

// RetryConfig holds the transport retry policy.
type RetryConfig struct {
	MaxRetries        int     `json:"maxRetries" envconfig:"MAX_RETRIES"`
	BaseDelaySecs     float64 `json:"baseDelaySecs" envconfig:"BASE_DELAY_SECS"`
	MaxDelaySecs      float64 `json:"maxDelaySecs" envconfig:"MAX_DELAY_SECS"`
	BackoffMultiplier float64 `json:"backoffMultiplier" envconfig:"BACKOFF_MULTIPLIER"`
	Jitter            bool    `json:"jitter" envconfig:"JITTER"`
}

// AgentEntry is one routable agent in the router section.
type AgentEntry struct {
	Name           string `json:"name"`
	SystemPrompt   string `json:"systemPrompt"`
	AutoComplete   bool   `json:"autoComplete"`
	ClearAfterSend bool   `json:"clearAfterSend"`
}

// RouterConfig holds the multi-agent routing section.
type RouterConfig struct {
	Main           string       `json:"main" envconfig:"MAIN"`
	CommonPrompt   string       `json:"commonPrompt" envconfig:"COMMON_PROMPT"`
	HandoffSummary bool         `json:"handoffSummary" envconfig:"HANDOFF_SUMMARY"`
	MaxHops        int          `json:"maxHops" envconfig:"MAX_HOPS"`
	Agents         []AgentEntry `json:"agents"`
}

// PlannerConfig holds the task-decomposition section.
type PlannerConfig struct {
	Enabled     bool `json:"enabled" envconfig:"ENABLED"`
	MaxDepth    int  `json:"maxDepth" envconfig:"MAX_DEPTH"`
	MaxSubTasks int  `json:"maxSubTasks" envconfig:"MAX_SUB_TASKS"`
}

// RelayConfig holds the Kafka event relay section.
type RelayConfig struct {
	Enabled bool     `json:"enabled" envconfig:"ENABLED"`
	Brokers []string `json:"brokers" envconfig:"BROKERS"`
	Topic   string   `json:"topic" envconfig:"TOPIC"`
}

// Config is the root configuration.
type Config struct {
	Paths   PathsConfig   `json:"paths"`
	Model   ModelConfig   `json:"model"`
	Loop    LoopConfig    `json:"loop"`
	Retry   RetryConfig   `json:"retry"`
	Router  RouterConfig  `json:"router"`
	Planner PlannerConfig `json:"planner"`
	Relay   RelayConfig   `json:"relay"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			SessionsDir: "~/" + ConfigDir + "/sessions",
			OffloadDir:  "~/" + ConfigDir + "/offload",
			TraceDB:     "~/" + ConfigDir + "/trace.db",
		},
		Model: ModelConfig{
			Platform: "script",
			Name:     "default",
		},
		Loop: LoopConfig{
			MaxTurns:      100,
			ReminderEvery: 5,
			CompactEvery:  20,
		},
		Retry: RetryConfig{
			MaxRetries:        3,
			BaseDelaySecs:     1.0,
			MaxDelaySecs:      30.0,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		Router: RouterConfig{
			Main:           "main",
			HandoffSummary: true,
			MaxHops:        8,
			Agents: []AgentEntry{
				{Name: "main", SystemPrompt: "You are the primary assistant.", AutoComplete: true},
			},
		},
		Planner: PlannerConfig{
			MaxDepth:    1,
			MaxSubTasks: 8,
		},
		Relay: RelayConfig{
			Topic: "helmsman.events",
		},
	}
}
