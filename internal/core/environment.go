package core

import "strings"

// Environment is the deployment stage, bound from ENVIRONMENT.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

var environments = map[Environment]bool{
	Development: true,
	Staging:     true,
	Testing:     true,
	Production:  true,
}

func (e Environment) String() string { return string(e) }

// VerboseErrors reports whether SSE error events may carry raw details.
func (e Environment) VerboseErrors() bool {
	return e == Development
}

// Decode lets envconfig bind ENVIRONMENT. Unknown values mean Development.
func (e *Environment) Decode(value string) error {
	v := Environment(strings.ToLower(strings.TrimSpace(value)))
	if !environments[v] {
		v = Development
	}
	*e = v
	return nil
}
