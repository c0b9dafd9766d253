package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/localnerve/qatrack/internal/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	containerUser     = "qatrack"
	containerPassword = "qatrack-test"
	containerDatabase = "qatrack"
)

type containerSpec struct {
	image string
	port  nat.Port
	env   map[string]string
}

func containerSpecFor(dbType string) (containerSpec, bool) {
	switch dbType {
	case "postgres":
		return containerSpec{
			image: "postgres:16-alpine",
			port:  "5432/tcp",
			env: map[string]string{
				"POSTGRES_PASSWORD": containerPassword,
				"POSTGRES_USER":     containerUser,
				"POSTGRES_DB":       containerDatabase,
			},
		}, true
	case "mysql", "mariadb":
		return containerSpec{
			image: "mariadb:11",
			port:  "3306/tcp",
			env: map[string]string{
				"MARIADB_ROOT_PASSWORD": containerPassword,
				"MARIADB_DATABASE":      containerDatabase,
				"MARIADB_USER":          containerUser,
				"MARIADB_PASSWORD":      containerPassword,
			},
		}, true
	}
	return containerSpec{}, false
}

// StartDatabase runs a throwaway database server of the given type and
// returns a config pointing at it. DB_IMAGE overrides the default image.
// The test is skipped under -short or when docker is unavailable.
func StartDatabase(t *testing.T, dbType string) *config.Config {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	spec, ok := containerSpecFor(dbType)
	if !ok {
		t.Fatalf("no container for database type %q", dbType)
	}
	if image := os.Getenv("DB_IMAGE"); image != "" {
		spec.image = image
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        spec.image,
			ExposedPorts: []string{string(spec.port)},
			Env:          spec.env,
			WaitingFor:   wait.ForListeningPort(spec.port).WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("database container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate %s container: %v", dbType, err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, spec.port)
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	return &config.Config{
		DBType:            dbType,
		DBHost:            host,
		DBPort:            mapped.Port(),
		DBDatabase:        containerDatabase,
		DBUser:            containerUser,
		DBPassword:        containerPassword,
		DBConnectionLimit: 5,
		DBLogLevel:        "silent",
	}
}
