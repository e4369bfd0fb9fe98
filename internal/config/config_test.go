package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "data/membership.db", cfg.Database.Path)
	assert.Equal(t, DeliveryAsync, cfg.Events.Delivery)
	assert.True(t, cfg.Approval.EnforceAssignment)
	assert.Equal(t, "agent_registration", cfg.Registration.AgentWorkflowCode)
	assert.Equal(t, 7*24*time.Hour, cfg.Registration.InvitationTTL)
	assert.Equal(t, "1100", cfg.Ledger.ReceivableAccount)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "membership:events", cfg.Redis.Stream)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	t.Setenv("LARK_APP_SECRET", "from-env")
	t.Setenv("EVENTS_DELIVERY", "sync")

	cfg, err := Load(writeConfig(t, `
lark:
  enabled: true
  app_id: cli_123
  role_chats:
    finance: oc_finance
registration:
  default_member_fee_cents: 2500
  invitation_ttl: 48h
`))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Lark.AppSecret)
	assert.Equal(t, DeliverySync, cfg.Events.Delivery)
	assert.Equal(t, "oc_finance", cfg.Lark.RoleChats["finance"])
	assert.Equal(t, int64(2500), cfg.Registration.DefaultMemberFeeCents)
	assert.Equal(t, 48*time.Hour, cfg.Registration.InvitationTTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func validConfig() Config {
	return Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Path: "data/test.db"},
		Events:   EventsConfig{Delivery: DeliveryAsync},
		Registration: RegistrationConfig{
			AgentWorkflowCode:  "agent_registration",
			MemberWorkflowCode: "member_registration",
			InvitationTTL:      time.Hour,
		},
		Ledger: LedgerConfig{ReceivableAccount: "1100", FeeIncomeAccount: "4100"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "no database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "unknown delivery", mutate: func(c *Config) { c.Events.Delivery = "batch" }, wantErr: "events.delivery"},
		{name: "negative fee", mutate: func(c *Config) { c.Registration.DefaultMemberFeeCents = -1 }, wantErr: "default_member_fee_cents"},
		{name: "missing ledger account", mutate: func(c *Config) { c.Ledger.FeeIncomeAccount = "" }, wantErr: "ledger"},
		{name: "redis without stream", mutate: func(c *Config) { c.Redis = RedisConfig{Enabled: true, Addr: "localhost:6379"} }, wantErr: "redis.stream"},
		{name: "lark without secret", mutate: func(c *Config) { c.Lark = LarkConfig{Enabled: true, AppID: "cli"} }, wantErr: "lark.app_secret"},
		{name: "lark disabled needs nothing", mutate: func(c *Config) { c.Lark = LarkConfig{} }},
		{name: "seed without file", mutate: func(c *Config) { c.Seed = SeedConfig{Enabled: true} }, wantErr: "seed.file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
