// Package config provides configuration structures and utilities for
// brokersafety: crawl budgets, egress settings, report preferences and the
// per-site overrides read from .brokersafety.yaml.
package config
