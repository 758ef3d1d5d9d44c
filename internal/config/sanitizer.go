package config

import "encoding/json"

// Sanitizer redacts sensitive fields from a Config before it is
// logged or displayed.
type Sanitizer interface {
	Sanitize(cfg *Config) *Config
}

// DefaultSanitizer is the production Sanitizer.
type DefaultSanitizer struct {
	redactionValue string
}

// NewDefaultSanitizer builds a Sanitizer using "***REDACTED***".
func NewDefaultSanitizer() Sanitizer {
	return &DefaultSanitizer{redactionValue: "***REDACTED***"}
}

// NewSanitizer builds a Sanitizer with a custom redaction value.
func NewSanitizer(redactionValue string) Sanitizer {
	return &DefaultSanitizer{redactionValue: redactionValue}
}

// Sanitize returns a deep copy of cfg with credentials and API keys
// redacted.
func (s *DefaultSanitizer) Sanitize(cfg *Config) *Config {
	sanitized := s.deepCopy(cfg)

	sanitized.Database.Password = s.redactionValue
	sanitized.Redis.Password = s.redactionValue
	sanitized.LLM.APIKey = s.redactionValue

	if sanitized.Database.URL != "" {
		sanitized.Database.URL = s.redactionValue
	}

	return sanitized
}

func (s *DefaultSanitizer) deepCopy(cfg *Config) *Config {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}

	var copied Config
	if err := json.Unmarshal(raw, &copied); err != nil {
		return cfg
	}
	return &copied
}
