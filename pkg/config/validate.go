package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// validate checks the settings envconfig cannot express on its own and
// reports all of them at once.
func (c *Config) validate() error {
	var err error
	bad := func(env, format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%s: "+format, append([]any{env}, args...)...))
	}

	switch strings.ToLower(strings.TrimSpace(c.App.LogFormat)) {
	case "json", "console":
	default:
		bad(EnvLogFormat, "want json or console, got %q", c.App.LogFormat)
	}
	if !strings.EqualFold(c.DB.Driver, DriverPostgres) && !c.DB.IsSQLite() {
		bad(EnvDBDriver, "want %s or %s, got %q", DriverPostgres, DriverSQLite, c.DB.Driver)
	}
	if c.JWT.TokenTTL() <= 0 {
		bad(EnvJWTExpMins, "must be positive")
	}

	positive := []struct {
		env string
		d   time.Duration
	}{
		{EnvGraceWindow, c.Market.DeadLeadGrace},
		{"LOCALLINK_MARKET_UPDATE_TTL", c.Market.UpdateTTL},
		{"LOCALLINK_MARKET_STREAM_HEARTBEAT", c.Market.StreamHeartbeat},
		{"LOCALLINK_CRON_INTERVAL", c.Cron.Interval},
		{"LOCALLINK_CRON_LOCK_TTL", c.Cron.LockTTL},
		{"LOCALLINK_EVENTING_IDEMPOTENCY_TTL", c.Eventing.IdempotencyTTL},
	}
	for _, p := range positive {
		if p.d <= 0 {
			bad(p.env, "must be positive, got %s", p.d)
		}
	}
	if c.Market.NotificationLimit <= 0 {
		bad("LOCALLINK_MARKET_NOTIFICATION_LIMIT", "must be positive")
	}
	if c.Market.UpdatesLimit <= 0 {
		bad("LOCALLINK_MARKET_UPDATES_LIMIT", "must be positive")
	}

	limits := c.AuthRateLimit
	if limits.LoginWindow <= 0 && (limits.LoginIPLimit > 0 || limits.LoginPhoneLimit > 0) {
		bad("LOCALLINK_AUTH_RATE_LIMIT_LOGIN_WINDOW", "must be positive while login limits are set")
	}
	if limits.RegisterWindow <= 0 && (limits.RegisterIPLimit > 0 || limits.RegisterPhoneLimit > 0) {
		bad("LOCALLINK_AUTH_RATE_LIMIT_REGISTER_WINDOW", "must be positive while register limits are set")
	}

	if strings.TrimSpace(c.PubSub.NotificationSubscription) != "" && !c.PubSub.Enabled() {
		bad("LOCALLINK_PUBSUB_NOTIFICATION_SUBSCRIPTION", "needs %s", EnvDomainTopic)
	}
	if c.PubSub.Enabled() && strings.TrimSpace(c.GCP.ProjectID) == "" {
		bad(EnvGCPProject, "required when %s is set", EnvDomainTopic)
	}
	return err
}
