package postgres_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "17-alpine",
		Env: []string{
			"POSTGRES_USER=origen",
			"POSTGRES_PASSWORD=origen",
			"POSTGRES_DB=origen",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start resource: %s", err)
	}

	hostPort := resource.GetHostPort("5432/tcp")
	databaseURL := fmt.Sprintf("postgres://origen:origen@%s/origen?sslmode=disable", hostPort)

	// Set a hard deadline for container startup
	resource.Expire(120)

	pool.MaxWait = 60 * time.Second
	if err := pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var poolErr error
		testPool, poolErr = pgxpool.New(ctx, databaseURL)
		if poolErr != nil {
			return poolErr
		}

		return testPool.Ping(ctx)
	}); err != nil {
		log.Fatalf("Could not connect to database: %s", err)
	}

	// Run the real migrations against the container.
	migrator, err := migrate.New("file://../../../../migrations", databaseURL)
	if err != nil {
		log.Fatalf("Could not create migrator: %s", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("Could not run migrations: %s", err)
	}
	migrator.Close()

	code := m.Run()

	testPool.Close()

	if err := pool.Purge(resource); err != nil {
		log.Fatalf("Could not purge resource: %s", err)
	}

	os.Exit(code)
}

func truncateTables(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE origination.credit_requests, origination.clients, origination.vehicles, origination.sellers
		RESTART IDENTITY CASCADE
	`)
	return err
}

// seedReferences inserts one client, vehicle, and seller and returns their ids.
func seedReferences(ctx context.Context, pool *pgxpool.Pool) (clientID, vehicleID, sellerID int64, err error) {
	if err = pool.QueryRow(ctx,
		`INSERT INTO origination.clients (full_name) VALUES ('Maria Quispe') RETURNING id`,
	).Scan(&clientID); err != nil {
		return
	}
	if err = pool.QueryRow(ctx,
		`INSERT INTO origination.vehicles (vin) VALUES ('1HGCM82633A004352') RETURNING id`,
	).Scan(&vehicleID); err != nil {
		return
	}
	err = pool.QueryRow(ctx,
		`INSERT INTO origination.sellers (full_name) VALUES ('Carlos Anda') RETURNING id`,
	).Scan(&sellerID)
	return
}

func getTestPool() *pgxpool.Pool {
	return testPool
}
