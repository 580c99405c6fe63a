package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	// Tenant registry settings. TENANTS_JSON carries the tenant records;
	// when GCP_SECRET_PREFIX is set, each tenant's DSN and API secret are
	// fetched from Secret Manager instead of being inlined in the JSON.
	TenantsJSON         string `envconfig:"TENANTS_JSON" required:"true"`
	GCPProjectID        string `envconfig:"GCP_PROJECT_ID"`
	GCPSecretPrefix     string `envconfig:"GCP_SECRET_PREFIX"`
	DefaultUTCOffsetMin int    `envconfig:"DEFAULT_UTC_OFFSET_MIN" default:"-180"`

	// Notification dispatch settings.
	NotificationTopic     string `envconfig:"NOTIFICATION_TOPIC" default:"notifications"`
	NotificationQueueName string `envconfig:"NOTIFICATION_QUEUE_NAME" default:"notifications"`
	NotificationDLQName   string `envconfig:"NOTIFICATION_DLQ_NAME" default:"notifications_dlq"`

	// Notifier worker settings.
	NotifierPollTimeoutSec    int `envconfig:"NOTIFIER_POLL_TIMEOUT_SEC" default:"5"`
	NotifierPollMaxMsg        int `envconfig:"NOTIFIER_POLL_MAX_MSG" default:"10"`
	NotifierMaxRetries        int `envconfig:"NOTIFIER_MAX_RETRIES" default:"5"`
	NotifierBackoffInitialSec int `envconfig:"NOTIFIER_BACKOFF_INITIAL_SEC" default:"1"`
	NotifierBackoffMaxSec     int `envconfig:"NOTIFIER_BACKOFF_MAX_SEC" default:"60"`

	// Cron schedules for the periodic jobs. All jobs iterate tenants
	// sequentially and are idempotent at day/month granularity.
	RenewalSchedule   string `envconfig:"RENEWAL_SCHEDULE" default:"0 3 1 * *"`
	ResetSchedule     string `envconfig:"RESET_SCHEDULE" default:"30 3 1 * *"`
	ExtensionSchedule string `envconfig:"EXTENSION_SCHEDULE" default:"0 4 * * 1"`

	// How far ahead (in days) the schedule auto-extension job keeps
	// recurring families populated.
	ExtensionHorizonDays int `envconfig:"EXTENSION_HORIZON_DAYS" default:"35"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
