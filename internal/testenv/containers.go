// Package testenv starts throwaway Postgres and Redis containers for
// integration tests.
package testenv

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16-alpine"
	redisImage    = "redis:7-alpine"
)

func init() {
	testcontainers.Logger = log.New(io.Discard, "", 0)
}

// Postgres starts an empty database and returns its DSN. The container is
// terminated when the test ends.
func Postgres(t testing.TB) string {
	t.Helper()
	endpoint := start(t, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "touchline",
			"POSTGRES_PASSWORD": "touchline",
			"POSTGRES_DB":       "touchline",
		},
		// the entrypoint restarts the server once after initdb
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	})
	return fmt.Sprintf("postgres://touchline:touchline@%s/touchline?sslmode=disable", endpoint)
}

// Redis starts an empty server and returns its redis:// URL.
func Redis(t testing.TB) string {
	t.Helper()
	endpoint := start(t, testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
	})
	return "redis://" + endpoint + "/0"
}

func start(t testing.TB, req testcontainers.ContainerRequest) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Errorf("terminate %s: %v", req.Image, err)
		}
	})

	endpoint, err := c.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("%s endpoint: %v", req.Image, err)
	}
	return endpoint
}
