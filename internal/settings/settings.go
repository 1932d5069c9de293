package settings

import (
	"bufio"
	"fmt"
	"log"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var Settings *AppSettings

func NewSettings() *AppSettings {
	settings := AppSettings{
		Domain:         getEnvOrDefault("STAGEFLOW_DOMAIN", "localhost"),
		Port:           getEnvOrDefault("STAGEFLOW_PORT", ":8080"),
		SQLiteDatabase: getEnvOrDefault("STAGEFLOW_DB_PATH", "file:.///db.sqlite"),

		WebhookKey: os.Getenv("STAGEFLOW_WEBHOOK_KEY"),

		CoverageURL:   getEnvOrDefault("STAGEFLOW_COVERAGE_URL", "https://codecov.io/upload/v2"),
		CoverageToken: os.Getenv("CODECOV_TOKEN"),

		TriggerURL:   os.Getenv("STAGEFLOW_TRIGGER_URL"),
		TriggerToken: os.Getenv("STAGEFLOW_TRIGGER_TOKEN"),

		IndexURL:   getEnvOrDefault("STAGEFLOW_INDEX_URL", "https://upload.pypi.org/legacy/"),
		IndexToken: os.Getenv("STAGEFLOW_INDEX_TOKEN"),

		E2EWorkers: getEnvIntOrDefault("STAGEFLOW_E2E_WORKERS", 0),
		ForceColor: getEnvOrDefault("FORCE_COLOR", "") != "",

		ArtifactEndpoint:  os.Getenv("STAGEFLOW_ARTIFACT_ENDPOINT"),
		ArtifactAccessKey: os.Getenv("STAGEFLOW_ARTIFACT_ACCESS_KEY"),
		ArtifactSecretKey: os.Getenv("STAGEFLOW_ARTIFACT_SECRET_KEY"),
		ArtifactBucket:    getEnvOrDefault("STAGEFLOW_ARTIFACT_BUCKET", "stageflow-artifacts"),
	}
	if !strings.HasPrefix(settings.Port, ":") {
		settings.Port = ":" + settings.Port
	}
	return &settings
}

func getEnvOrDefault(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

type AppSettings struct {
	Title          string
	SQLiteDatabase string
	Domain         string
	Port           string

	// shared key required in the webhook trigger header
	WebhookKey string

	// coverage aggregator upload endpoint and token
	CoverageURL   string
	CoverageToken string

	// downstream CI build-trigger endpoint and token
	TriggerURL   string
	TriggerToken string

	// package index upload endpoint and token
	IndexURL   string
	IndexToken string

	// E2EWorkers overrides the workflow's e2e worker count when > 0
	E2EWorkers int64
	ForceColor bool

	// S3-compatible artifact store; archiving is disabled when the
	// endpoint is empty
	ArtifactEndpoint  string
	ArtifactAccessKey string
	ArtifactSecretKey string
	ArtifactBucket    string
}

func (as *AppSettings) BaseURL() string {
	if as.Domain == "localhost" {
		return fmt.Sprintf("http://%s%s", as.Domain, as.Port)
	} else {
		return fmt.Sprintf("https://%s", as.Domain)
	}
}

func (as *AppSettings) SQLiteDbString(readonly bool) string {
	params := make(url.Values)
	params.Add("_journal_mode", "WAL")
	params.Add("_busy_timeout", "5000")
	params.Add("_synchronous", "NORMAL")
	params.Add("_cache_size", "-20000")
	params.Add("_foreign_keys", "ON")
	if readonly {
		params.Add("mode", "ro")
	} else {
		params.Add("_txlock", "IMMEDIATE")
		params.Add("mode", "rwc")
	}

	return as.SQLiteDatabase + "?" + params.Encode()
}

func ReadDotenv(path string) {
	re := regexp.MustCompile(`^[^0-9][A-Z0-9_]+=.+$`)
	f, err := os.Open(path)
	if err != nil {
		log.Fatal("err opening dotenv: ", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) > 0 && line[0] != '#' && re.Match(line) {
			split := strings.Split(string(line), "=")
			name := strings.TrimSpace(split[0])
			value := strings.TrimSpace(split[1])
			value = strings.Trim(value, `"`)
			os.Setenv(name, value)
		}
	}
}
