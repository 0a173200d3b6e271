package authorize

import "github.com/Alijeyrad/carelink/config"

// Config holds configuration for the authorization system
type Config struct {
	// CasbinModelPath overrides the built-in model when set.
	CasbinModelPath string

	// Persist keeps policies in PostgreSQL through the ent adapter.
	Persist bool

	// EnableAudit enables audit logging for all authorization decisions
	EnableAudit bool

	// SuperadminBypass lets platform admins skip policy checks.
	SuperadminBypass bool
}

// DefaultConfig returns sensible defaults for authorization configuration
func DefaultConfig() Config {
	return Config{
		EnableAudit:      false,
		SuperadminBypass: true,
	}
}

// FromCentralConfig converts central config.AuthorizationConfig to package Config
func FromCentralConfig(c config.AuthorizationConfig) Config {
	return Config{
		CasbinModelPath:  c.CasbinModelPath,
		Persist:          c.Persist,
		EnableAudit:      c.EnableAudit,
		SuperadminBypass: c.SuperadminBypass,
	}
}

// Options converts the config into constructor options.
func (c Config) Options() []Option {
	if c.SuperadminBypass {
		return nil
	}
	return []Option{WithoutSuperadminBypass()}
}
