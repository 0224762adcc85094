package docker_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type ComposeFile struct {
	Services map[string]Service `yaml:"services"`
	Networks map[string]Network `yaml:"networks"`
}

type Network struct {
	Driver string `yaml:"driver"`
}

type Service struct {
	Image       string       `yaml:"image"`
	Build       *Build       `yaml:"build"`
	Ports       []string     `yaml:"ports"`
	Environment []string     `yaml:"environment"`
	Healthcheck *Healthcheck `yaml:"healthcheck"`
	Restart     string       `yaml:"restart"`
	Networks    []string     `yaml:"networks"`
}

type Build struct {
	Context string `yaml:"context"`
}

type Healthcheck struct {
	Test     []string `yaml:"test"`
	Interval string   `yaml:"interval"`
	Timeout  string   `yaml:"timeout"`
	Retries  int      `yaml:"retries"`
}

func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	// From internal/docker/ go up 2 levels to the project root.
	return filepath.Join(filepath.Dir(filename), "..", "..")
}

func readCompose(t *testing.T) ComposeFile {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(projectRoot(), "docker-compose.yml"))
	if err != nil {
		t.Fatalf("failed to read docker-compose.yml: %v", err)
	}
	var compose ComposeFile
	if err := yaml.Unmarshal(data, &compose); err != nil {
		t.Fatalf("failed to parse docker-compose.yml: %v", err)
	}
	return compose
}

func TestComposeHasServerService(t *testing.T) {
	compose := readCompose(t)
	if _, ok := compose.Services["server"]; !ok {
		t.Error("missing service: server")
	}
	if len(compose.Services) != 1 {
		t.Errorf("expected 1 service, got %d", len(compose.Services))
	}
}

func TestServerService(t *testing.T) {
	server := readCompose(t).Services["server"]

	if server.Build == nil || server.Build.Context != "." {
		t.Error("server build context should be .")
	}

	found := false
	for _, p := range server.Ports {
		if p == "5000:5000" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected port mapping 5000:5000, got %v", server.Ports)
	}

	hasAddr := false
	for _, env := range server.Environment {
		if strings.Contains(env, "PARLEY_LISTEN_ADDR=:5000") {
			hasAddr = true
		}
	}
	if !hasAddr {
		t.Error("server should set PARLEY_LISTEN_ADDR=:5000")
	}

	if server.Healthcheck == nil {
		t.Fatal("server should have a healthcheck")
	}
	if !strings.Contains(strings.Join(server.Healthcheck.Test, " "), "/healthz") {
		t.Error("healthcheck should probe /healthz")
	}

	if server.Restart != "unless-stopped" {
		t.Errorf("server should have restart: unless-stopped, got %q", server.Restart)
	}
}

func TestNetworkDefined(t *testing.T) {
	compose := readCompose(t)
	net, ok := compose.Networks["parley"]
	if !ok {
		t.Fatal("parley network should be defined at the top level")
	}
	if net.Driver != "bridge" {
		t.Errorf("parley network driver should be bridge, got %q", net.Driver)
	}

	for name, svc := range compose.Services {
		found := false
		for _, n := range svc.Networks {
			if n == "parley" {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("service %s should be on the parley network", name)
		}
	}
}

func TestDockerfileContent(t *testing.T) {
	data, err := os.ReadFile(filepath.Join(projectRoot(), "Dockerfile"))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	if !strings.Contains(content, "FROM golang:") {
		t.Error("should use golang base image")
	}
	if !strings.Contains(content, "AS builder") {
		t.Error("should use multi-stage build")
	}
	if !strings.Contains(content, "EXPOSE 5000") {
		t.Error("should expose port 5000")
	}
}

func TestDockerignore(t *testing.T) {
	data, err := os.ReadFile(filepath.Join(projectRoot(), ".dockerignore"))
	if err != nil {
		t.Fatal(".dockerignore should exist")
	}
	if !strings.Contains(string(data), ".git") {
		t.Error(".dockerignore should exclude .git")
	}
}
