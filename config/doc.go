// Package config loads tokengate configuration.
//
// Values come from, lowest precedence first: built-in defaults, a YAML file,
// and TOKENGATE_* environment variables (dots become underscores, so
// budget.max_wait is TOKENGATE_BUDGET_MAX_WAIT). A .env file is read into
// the environment first when present.
//
// The YAML file may reference secrets as ${VAR}. A referenced variable that
// is not set is an error rather than an empty string; write $$ for a literal
// dollar sign.
package config
