package main

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr    string
	DataDir string
	APIKey  string

	InterviewerModel string
	AgentModel       string

	RequestTimeout  time.Duration
	InterviewBudget time.Duration
	KeepLast        int
	ValidateAfter   int

	RetryMax     int
	RetryBackoff time.Duration

	LogLevel string
}

func defaultConfig() Config {
	return Config{
		Addr:             ":8080",
		DataDir:          "",
		InterviewerModel: "gpt-4o",
		AgentModel:       "gpt-4o-mini",
		RequestTimeout:   30 * time.Second,
		InterviewBudget:  12 * time.Minute,
		KeepLast:         7,
		ValidateAfter:    3,
		RetryMax:         7,
		RetryBackoff:     15 * time.Second,
		LogLevel:         "info",
	}
}

func configFromViper(v *viper.Viper) Config {
	return Config{
		Addr:             v.GetString("addr"),
		DataDir:          v.GetString("data-dir"),
		APIKey:           v.GetString("api-key"),
		InterviewerModel: v.GetString("interviewer-model"),
		AgentModel:       v.GetString("agent-model"),
		RequestTimeout:   v.GetDuration("request-timeout"),
		InterviewBudget:  v.GetDuration("interview-budget"),
		KeepLast:         v.GetInt("keep-last"),
		ValidateAfter:    v.GetInt("validate-after"),
		RetryMax:         v.GetInt("retry-max"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		LogLevel:         v.GetString("log-level"),
	}
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("missing -addr")
	}
	if c.APIKey == "" {
		return errors.New("missing OPENAI_API_KEY (or set api-key)")
	}
	if c.InterviewerModel == "" {
		return errors.New("missing -interviewer-model")
	}
	if c.AgentModel == "" {
		return errors.New("missing -agent-model")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request-timeout must be > 0")
	}
	if c.InterviewBudget <= 0 {
		return errors.New("interview-budget must be > 0")
	}
	if c.KeepLast < 2 {
		return errors.New("keep-last must be >= 2")
	}
	if c.ValidateAfter < 2 {
		return errors.New("validate-after must be >= 2")
	}
	if c.RetryMax < 0 {
		return errors.New("retry-max must be >= 0")
	}
	if c.RetryBackoff < 0 {
		return errors.New("retry-backoff must be >= 0")
	}
	return nil
}
