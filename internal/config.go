package internal

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/hakola/stageflow/internal/util"
)

var Config *Configuration

type SecondsDuration time.Duration

func NewSecondsDuration(seconds int64) SecondsDuration {
	return SecondsDuration(time.Duration(seconds) * time.Second)
}

func (sd SecondsDuration) MarshalJSON() ([]byte, error) {
	seconds := float64(time.Duration(sd)) / float64(time.Second)
	return json.Marshal(seconds)
}

func (sd *SecondsDuration) UnmarshalJSON(data []byte) error {
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return err
	}
	*sd = SecondsDuration(seconds * float64(time.Second))
	return nil
}

func (sd SecondsDuration) Duration() time.Duration {
	return time.Duration(sd)
}

type Configuration struct {
	QueueSize           int64           `json:"queue_size"`
	DefaultStageTimeout SecondsDuration `json:"default_stage_timeout_seconds"`
	DefaultStepTimeout  SecondsDuration `json:"default_step_timeout_seconds"`
	CloneTimeout        SecondsDuration `json:"clone_timeout_seconds"`
}

func InitializeConfiguration() {
	Config = &Configuration{
		QueueSize:           3,
		DefaultStageTimeout: NewSecondsDuration(60 * 60),
		DefaultStepTimeout:  NewSecondsDuration(15 * 60),
		CloneTimeout:        NewSecondsDuration(60),
	}

	configFileExists, _ := util.PathExists("config.json")
	if !configFileExists {
		b, err := json.MarshalIndent(Config, "", "    ")
		if err != nil {
			log.Fatal(err)
		}
		configFile, err := os.Create("config.json")
		if err != nil {
			log.Fatal(err)
		}
		if _, err := configFile.Write(b); err != nil {
			log.Fatal(err)
		}
	} else {
		configBytes, err := os.ReadFile("config.json")
		if err != nil {
			log.Fatal(err)
		}
		if err := json.Unmarshal(configBytes, &Config); err != nil {
			log.Fatal(err)
		}
	}
}

func UpdateConfiguration(config *Configuration) error {
	b, err := json.MarshalIndent(config, "", "    ")
	if err != nil {
		return err
	}

	configFile, err := os.Create("config.json")
	if err != nil {
		return err
	}

	if _, err := configFile.Write(b); err != nil {
		return err
	}

	Config = config

	return nil
}
