package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/bakery-service/internal/adapters/paystack"
	"github.com/kevin07696/bakery-service/internal/bootstrap"
	"github.com/kevin07696/bakery-service/internal/config"
	"github.com/kevin07696/bakery-service/internal/domain"
	"github.com/kevin07696/bakery-service/internal/domain/ports"
	reconcileService "github.com/kevin07696/bakery-service/internal/services/reconcile"
	"github.com/kevin07696/bakery-service/pkg/logging"
	"github.com/kevin07696/bakery-service/pkg/resilience"
	"github.com/kevin07696/bakery-service/pkg/shutdown"
)

// Reconciler re-runs reconciliation for one reference
type Reconciler interface {
	Reconcile(ctx context.Context, reference string) *domain.Outcome
}

// AdminCLI inspects and resolves staged orders
type AdminCLI struct {
	store      ports.DocumentStore
	reconciler Reconciler
	out        io.Writer
}

func main() {
	var (
		action    = flag.String("action", "", "Action to perform: staged-list, staged-show, staged-delete, reconcile")
		reference = flag.String("reference", "", "Payment reference for staged-show, staged-delete and reconcile")
	)
	flag.Parse()

	if *action == "" {
		fmt.Println("Usage: admin -action=<action> [-reference=REF]")
		fmt.Println("Actions:")
		fmt.Println("  staged-list   - List staged orders awaiting reconciliation")
		fmt.Println("  staged-show   - Print one staged order")
		fmt.Println("  staged-delete - Discard a staged order after manual resolution")
		fmt.Println("  reconcile     - Verify with the gateway and finalize a staged order")
		os.Exit(1)
	}

	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logger.Environment, "warn")
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	portsLogger := logging.NewZapLogger(logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := bootstrap.OpenStore(ctx, cfg, portsLogger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	cli := &AdminCLI{store: store, out: os.Stdout}

	if *action == "reconcile" {
		secretKey, err := bootstrap.LoadGatewaySecret(ctx, cfg, logger)
		if err != nil {
			log.Fatalf("load gateway secret: %v", err)
		}
		gateway := paystack.NewAdapterWithDefaults(paystack.Config{
			BaseURL:   cfg.Gateway.BaseURL,
			SecretKey: secretKey,
			Currency:  cfg.Gateway.Currency,
		}, cfg.Gateway.Timeout, portsLogger)

		cleanups := shutdown.NewInFlightTracker("admin-cleanup", logger)
		defer func() { _ = cleanups.Shutdown(context.Background()) }()

		cli.reconciler = reconcileService.NewService(gateway, store, cleanups, resilience.DefaultTimeoutConfig(), portsLogger,
			reconcileService.WithPublisher(bootstrap.NewPublisher(cfg, portsLogger, logger)))
	}

	if err := cli.Run(ctx, *action, *reference); err != nil {
		logger.Error("Admin action failed", zap.String("action", *action), zap.Error(err))
		os.Exit(1)
	}
}

// Run dispatches one action
func (c *AdminCLI) Run(ctx context.Context, action, reference string) error {
	switch action {
	case "staged-list":
		return c.listStaged(ctx)
	case "staged-show":
		return c.showStaged(ctx, reference)
	case "staged-delete":
		return c.deleteStaged(ctx, reference)
	case "reconcile":
		return c.reconcile(ctx, reference)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func (c *AdminCLI) listStaged(ctx context.Context) error {
	docs, err := c.store.List(ctx, domain.CollectionPendingOrders)
	if err != nil {
		return err
	}

	orders := make([]domain.StagedOrder, 0, len(docs))
	for _, doc := range docs {
		var order domain.StagedOrder
		if err := json.Unmarshal(doc, &order); err != nil {
			return fmt.Errorf("decode staged order: %w", err)
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REFERENCE\tTOTAL\tDEBT\tRUN\tCUSTOMER\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n",
			o.Reference, o.Total.StringFixed(2), o.IsDebtPayment, o.RunID, o.CustomerID, o.CreatedAt.Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d staged order(s)\n", len(orders))
	return nil
}

func (c *AdminCLI) showStaged(ctx context.Context, reference string) error {
	if reference == "" {
		return domain.ErrReferenceRequired
	}
	var order domain.StagedOrder
	if err := c.store.Get(ctx, domain.CollectionPendingOrders, reference, &order); err != nil {
		return err
	}
	return c.printJSON(order)
}

func (c *AdminCLI) deleteStaged(ctx context.Context, reference string) error {
	if reference == "" {
		return domain.ErrReferenceRequired
	}
	var order domain.StagedOrder
	if err := c.store.Get(ctx, domain.CollectionPendingOrders, reference, &order); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, domain.CollectionPendingOrders, reference); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Deleted staged order %s\n", reference)
	return nil
}

func (c *AdminCLI) reconcile(ctx context.Context, reference string) error {
	if c.reconciler == nil {
		return fmt.Errorf("reconciler not configured")
	}
	outcome := c.reconciler.Reconcile(ctx, reference)
	if err := c.printJSON(outcome); err != nil {
		return err
	}
	if !outcome.IsSuccess() {
		return fmt.Errorf("reconciliation failed: %s", outcome.Message)
	}
	return nil
}

func (c *AdminCLI) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
