// Package llm holds the model-selection config for the LLM-backed
// classifiers: one base OpenRouter configuration plus optional per-classifier
// model and temperature overrides.
package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	openrouterx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/pkg/openrouter"
)

// Role names a classifier that may want its own model.
type Role string

const (
	RoleIntent  Role = "intent"
	RoleUrgency Role = "urgency"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"500"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	IntentModel        string  `envconfig:"INTENT_MODEL" split_words:"true"`
	UrgencyModel       string  `envconfig:"URGENCY_MODEL" split_words:"true"`
	IntentTemperature  float32 `envconfig:"INTENT_TEMPERATURE" split_words:"true" default:"-1"`
	UrgencyTemperature float32 `envconfig:"URGENCY_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the effective model settings for one classifier,
// falling back to the shared defaults.
func (c Config) OpenRouterFor(role Role) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch role {
	case RoleIntent:
		if v := strings.TrimSpace(c.IntentModel); v != "" {
			modelName = v
		}
		if c.IntentTemperature >= 0 {
			temp = c.IntentTemperature
		}
	case RoleUrgency:
		if v := strings.TrimSpace(c.UrgencyModel); v != "" {
			modelName = v
		}
		if c.UrgencyTemperature >= 0 {
			temp = c.UrgencyTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
