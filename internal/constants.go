package internal

const (
	DotEnvPath              = "./.env"
	MigrationsDir           = "migrations"
	RunDirLayout            = "20060102_150405000"
	DBTimestampLayout       = "2006-01-02 15:04:05.999999999-07:00"
	WebhookTriggerKeyHeader = "X-Stageflow-Webhook-Key"

	// DailySchedule fires the scheduled trigger for every pipeline with
	// scheduled runs enabled, 06:00 UTC.
	DailySchedule = "0 6 * * *"

	MainBranch = "master"
)
