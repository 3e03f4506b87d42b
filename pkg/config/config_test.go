package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 10.0, cfg.Grading.PassThreshold)
	assert.Equal(t, 20.0, cfg.Grading.ScaleMax)
	assert.Equal(t, 14, cfg.Grading.DefaultDelayDays)
	assert.Equal(t, 72*time.Hour, cfg.Deadlines.UrgentWindow)
	assert.Nil(t, cfg.Deadlines.AdminRecipients)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.TickInterval)
	assert.Equal(t, NotifyDriverMemory, cfg.Notifications.Driver)
	assert.Equal(t, []string{"json", "xlsx", "pdf"}, cfg.Artifacts.Formats)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("NOTIFY_DRIVER", "KAFKA")
	v.Set("KAFKA_BROKERS", "k1:9092, k2:9092,")
	v.Set("DEADLINE_ADMIN_RECIPIENTS", "admin-1,admin-2")
	v.Set("SCHEDULER_TICK_INTERVAL", "not-a-duration")
	v.Set("SCHEDULER_TASK_TIMEOUT", "90s")

	cfg := fromViper(v)
	assert.Equal(t, NotifyDriverKafka, cfg.Notifications.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notifications.KafkaBrokers)
	assert.Equal(t, []string{"admin-1", "admin-2"}, cfg.Deadlines.AdminRecipients)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.TickInterval)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.TaskTimeout)
}
