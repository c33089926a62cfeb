package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/meridian-commerce/api/internal/platform/config"
	"github.com/meridian-commerce/api/internal/repositories"
	"github.com/meridian-commerce/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in
// NewContainer.
type Services struct {
	Categories services.CategoryService
	Catalog    services.CatalogService
	Carts      services.CartService
	Orders     services.OrderService
	Requests   services.RequestService
	Profiles   services.ProfileService
	System     services.SystemService
	Reminders  services.CartReminderDispatcher
}

// Deps carries the external collaborators a container needs beyond the
// repository registry: the payment gateway and the asynchronous publishers.
// Nil collaborators disable the features that depend on them.
type Deps struct {
	Registry          repositories.Registry
	Gateway           services.PaymentGateway
	Notifier          services.NotificationDispatcher
	MailingList       services.MailingListSync
	ReminderPublisher services.CartReminderPublisher
	Logger            services.EventLogger
	Clock             func() time.Time
}

// Container wires repositories, services, and background infrastructure for
// runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring
// provides real implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	svc, err := buildServices(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, deps Deps) (Services, error) {
	var svc Services
	reg := deps.Registry
	newID := func() string { return ulid.Make().String() }

	categorySvc, err := services.NewCategoryService(services.CategoryServiceDeps{
		Categories:  reg.Categories(),
		Products:    reg.Products(),
		Clock:       deps.Clock,
		CacheTTL:    cfg.Commerce.SpecialSetCacheTTL,
		Logger:      deps.Logger,
		IDGenerator: newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build category service: %w", err)
	}
	svc.Categories = categorySvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:    reg.Products(),
		Categories:  reg.Categories(),
		Brands:      reg.Brands(),
		Counters:    reg.Counters(),
		Notifier:    deps.Notifier,
		Clock:       deps.Clock,
		CacheTTL:    cfg.Commerce.SpecialSetCacheTTL,
		Logger:      deps.Logger,
		IDGenerator: newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:       reg.Carts(),
		Products:    reg.Products(),
		Clock:       deps.Clock,
		Logger:      deps.Logger,
		IDGenerator: newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      reg.Orders(),
		Carts:       reg.Carts(),
		Products:    reg.Products(),
		Users:       reg.Users(),
		Gateway:     deps.Gateway,
		Notifier:    deps.Notifier,
		Currency:    cfg.Commerce.Currency,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
		IDGenerator: newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	requestSvc, err := services.NewRequestService(services.RequestServiceDeps{
		Requests:    reg.Requests(),
		Orders:      reg.Orders(),
		Clock:       deps.Clock,
		Logger:      deps.Logger,
		IDGenerator: newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build request service: %w", err)
	}
	svc.Requests = requestSvc

	profileSvc, err := services.NewProfileService(services.ProfileServiceDeps{
		Users:       reg.Users(),
		MailingList: deps.MailingList,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build profile service: %w", err)
	}
	svc.Profiles = profileSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            deps.Clock,
			Build: services.BuildInfo{
				Environment: cfg.Security.Environment,
				StartedAt:   deps.Clock().UTC(),
			},
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	if cfg.Features.EnableCartReminders && deps.ReminderPublisher != nil {
		reminderSvc, err := services.NewCartReminderDispatcher(services.CartReminderDeps{
			Carts:        reg.Carts(),
			Users:        reg.Users(),
			Publisher:    deps.ReminderPublisher,
			Clock:        deps.Clock,
			Logger:       deps.Logger,
			IdleAfter:    cfg.Commerce.CartIdleAfter,
			MaxReminders: cfg.Commerce.CartMaxReminders,
			SweepLimit:   cfg.Commerce.CartSweepLimit,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build cart reminder dispatcher: %w", err)
		}
		svc.Reminders = reminderSvc
	}

	return svc, nil
}
