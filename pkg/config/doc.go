// Package config loads application configuration for the Camber server.
//
// Configuration is environment-driven (CAMBER_* variables) with an optional
// YAML file overlay applied before the environment. Environment variables
// always win, so deployments can pin a base file and override per instance.
package config
