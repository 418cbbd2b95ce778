package config

import (
	"net/url"
	"slices"
)

const redacted = "***"

// Redacted returns a copy of c that is safe to log or print: every secret
// is masked and the slices are cloned.
func (c *Config) Redacted() Config {
	out := *c
	for _, s := range []*string{
		&out.Server.APIKey,
		&out.Postgres.Password,
		&out.Redis.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
		&out.Ledger.PrivateKey,
		&out.Ledger.KeyPassword,
		&out.Redstone.APIKey,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	} {
		if *s != "" {
			*s = redacted
		}
	}
	out.Postgres.DSN = redactDSN(c.Postgres.DSN)
	out.Notify.Events = slices.Clone(c.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(c.Server.CORSOrigins)
	return out
}

// redactDSN keeps a URL-form DSN readable and hides only its password.
// Key/value DSNs are masked whole.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return redacted
	}
	return u.Redacted()
}
