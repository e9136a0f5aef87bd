// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional config.yaml. Every variable is
// prefixed GUIDELINE_ with dots replaced by underscores, so llm.model is read
// from GUIDELINE_LLM_MODEL.
package config
