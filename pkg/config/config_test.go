package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Economy.MaxHearts)
	assert.Equal(t, "0 0 * * 0", cfg.Scheduler.Cron)
}

func TestValidate_RejectsUnknownDatabase(t *testing.T) {
	cfg := Default()
	cfg.Database.Type = "mysql"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsDefaultSecretInProduction(t *testing.T) {
	cfg := Default()
	cfg.Server.Env = "production"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	cfg.Auth.JWTSecret = "real-secret"
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("CRON_SECRET", "cron")
	t.Setenv("EXEC_TIMEOUT", "3s")
	t.Setenv("SCHEDULER_ENABLED", "true")
	t.Setenv("MAX_HEARTS", "4")
	t.Setenv("ALLOWED_ORIGINS", "https://a.test,https://b.test")

	cfg := Default()
	cfg.applyEnv()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "cron", cfg.Functions.CronSecret)
	assert.Equal(t, 3*time.Second, cfg.Functions.ExecTimeout)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 4, cfg.Economy.MaxHearts)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.AllowedOrigins)
}

func TestApplyEnv_IgnoresInvalidDuration(t *testing.T) {
	t.Setenv("EXEC_TIMEOUT", "soon")

	cfg := Default()
	cfg.applyEnv()

	assert.Equal(t, 10*time.Second, cfg.Functions.ExecTimeout)
}

func TestApplyEnv_PostgresBuildsDSN(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "owl")

	cfg := Default()
	cfg.applyEnv()

	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Contains(t, cfg.Database.DSN, "host=db")
	assert.Contains(t, cfg.Database.DSN, "dbname=owl")
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codeowl.yaml")
	yamlDoc := `
server:
  port: "7000"
economy:
  heart_refill_cost: 100
functions:
  exec_timeout: 4s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Server.Port)
	assert.Equal(t, 100, cfg.Economy.HeartRefillCost)
	assert.Equal(t, 4*time.Second, cfg.Functions.ExecTimeout)
	assert.Equal(t, 200, cfg.Economy.StreakFreezeCost)
}
