//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/meridian-commerce/api/internal/domain"
	pconfig "github.com/meridian-commerce/api/internal/platform/config"
	pfirestore "github.com/meridian-commerce/api/internal/platform/firestore"
	"github.com/meridian-commerce/api/internal/repositories"
)

func TestProductRepositoryConcurrentDecrementIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "catalog-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("new product repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now().UTC()
	if err := repo.Insert(ctx, domain.Product{
		ID:         "prod-guard",
		Name:       "Widget",
		Price:      1000,
		CategoryID: "cat-1",
		Stock:      5,
		Published:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	// Four workers each try to take 2 of 5 units. Only two decrements fit;
	// the rest must fail inside the transaction without consuming anything.
	const workers = 4
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			_, err := repo.DecrementStock(ctx, []repositories.StockDecrement{
				{ProductID: "prod-guard", Quantity: 2},
			}, now)
			errs[idx] = err
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for idx, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var invErr *repositories.InventoryError
		if !errors.As(err, &invErr) {
			t.Fatalf("worker %d: unexpected error %T %v", idx, err, err)
		}
		if invErr.Code != repositories.InventoryErrorInsufficientStock {
			t.Fatalf("worker %d: expected insufficient stock, got %s", idx, invErr.Code)
		}
	}
	if succeeded != 2 {
		t.Fatalf("expected exactly 2 decrements to land, got %d", succeeded)
	}

	product, err := repo.FindByID(ctx, "prod-guard")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.Stock != 1 {
		t.Fatalf("expected remaining stock 1, got %d", product.Stock)
	}

	// A multi-line decrement where one line falls short must leave every
	// line untouched.
	if err := repo.Insert(ctx, domain.Product{
		ID:         "prod-pair",
		Name:       "Gadget",
		Price:      2000,
		CategoryID: "cat-1",
		Stock:      10,
		Published:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("insert second product: %v", err)
	}
	_, err = repo.DecrementStock(ctx, []repositories.StockDecrement{
		{ProductID: "prod-pair", Quantity: 3},
		{ProductID: "prod-guard", Quantity: 2},
	}, now)
	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock for the short line, got %v", err)
	}
	pair, err := repo.FindByID(ctx, "prod-pair")
	if err != nil {
		t.Fatalf("find second product: %v", err)
	}
	if pair.Stock != 10 {
		t.Fatalf("expected untouched stock 10 after failed batch, got %d", pair.Stock)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
