package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/johnayoung/jazamiti-consensus/internal/provider"
)

// Error messages reported by Validate.
const (
	MsgNoProviders       = "At least one AI service must be enabled"
	MsgThresholdTooHigh  = "Consensus threshold cannot be greater than the number of enabled services"
	MsgThresholdTooLow   = "Consensus threshold must be at least 1"
	msgMissingKeyFormat  = "%s API key is required when %s is enabled"
	msgBadFallbackFormat = "Fallback provider %q is not a known AI service"
)

// Report is the outcome of configuration validation.
type Report struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

var configValidate = validator.New()

// Validate checks the orchestration invariants. It is pure and never panics;
// every problem found is listed in Errors.
func (c Config) Validate() Report {
	errs := []string{}

	enabled := 0
	for _, id := range provider.KnownIDs {
		pc := c.Providers[id]
		if !pc.Enabled {
			continue
		}
		enabled++
		if pc.APIKey == "" {
			name := id.DisplayName()
			errs = append(errs, fmt.Sprintf(msgMissingKeyFormat, name, name))
		}
	}

	if enabled == 0 {
		errs = append(errs, MsgNoProviders)
	}
	if c.ConsensusThreshold > enabled {
		errs = append(errs, MsgThresholdTooHigh)
	}
	if c.ConsensusThreshold < 1 {
		errs = append(errs, MsgThresholdTooLow)
	}
	if !provider.IsKnown(c.FallbackProvider) {
		errs = append(errs, fmt.Sprintf(msgBadFallbackFormat, c.FallbackProvider))
	}

	for _, id := range provider.KnownIDs {
		pc := c.Providers[id]
		if !pc.Enabled {
			continue
		}
		errs = append(errs, fieldErrors(id, pc)...)
	}

	return Report{
		IsValid: len(errs) == 0,
		Errors:  errs,
	}
}

func fieldErrors(id provider.ID, pc ProviderConfig) []string {
	err := configValidate.Struct(pc)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{fmt.Sprintf("%s configuration: %v", id.DisplayName(), err)}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s %s is invalid (%s)", id.DisplayName(), fe.Field(), describe(fe)))
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "url":
		return "must be a URL"
	default:
		return "failed " + fe.Tag()
	}
}
