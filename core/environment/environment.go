// Package environment selects the cluster a workflow is submitted to and turns
// operation directives into batch submissions.
package environment

import (
	"fmt"
	"os"
	"regexp"
)

// Environment describes one SLURM cluster
type Environment struct {
	Name            string `yaml:"name"`
	HostnamePattern string `yaml:"hostname_pattern"`
	Partition       string `yaml:"partition"`
}

// Matches reports whether the hostname belongs to this environment
func (e Environment) Matches(hostname string) (bool, error) {
	if e.HostnamePattern == "" {
		return false, nil
	}
	re, err := regexp.Compile(e.HostnamePattern)
	if err != nil {
		return false, fmt.Errorf("environment %s: invalid hostname pattern: %w", e.Name, err)
	}
	return re.MatchString(hostname), nil
}

// Select picks an environment. An explicit name wins; otherwise the first environment
// whose pattern matches the hostname; otherwise the fallback name (may be empty).
func Select(envs []Environment, name, hostname, fallback string) (*Environment, error) {
	if name != "" {
		return byName(envs, name)
	}
	for i := range envs {
		ok, err := envs[i].Matches(hostname)
		if err != nil {
			return nil, err
		}
		if ok {
			return &envs[i], nil
		}
	}
	if fallback != "" {
		return byName(envs, fallback)
	}
	return nil, fmt.Errorf("no environment matches host %q", hostname)
}

// Detect selects an environment for the current host
func Detect(envs []Environment, name, fallback string) (*Environment, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to read hostname: %w", err)
	}
	return Select(envs, name, hostname, fallback)
}

func byName(envs []Environment, name string) (*Environment, error) {
	for i := range envs {
		if envs[i].Name == name {
			return &envs[i], nil
		}
	}
	return nil, fmt.Errorf("unknown environment: %s", name)
}
