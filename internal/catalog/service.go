package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"travel-booking/internal/catalog/db"
	"travel-booking/internal/config"
	"travel-booking/internal/logger"
	"travel-booking/internal/models"
)

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrNotOwner        = errors.New("package belongs to another agent")
	ErrInvalidPackage  = errors.New("invalid package data")
)

type DBLayer interface {
	CreatePackage(ctx context.Context, pkg models.TravelPackage) error
	GetPackageByID(ctx context.Context, id string) (*models.TravelPackage, error)
	ListPackages(ctx context.Context, city string) ([]models.TravelPackage, error)
	DeletePackage(ctx context.Context, id string) error
}

type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

type Broadcaster interface {
	EmitPackageEvent(event models.PackageEvent)
}

// Service owns the package catalog: agents create and delete listings,
// customers browse them filtered by city. Catalog changes are pushed to
// connected viewers over SSE and to Kafka.
type Service struct {
	DB          DBLayer
	Producer    Publisher
	Broadcaster Broadcaster
	Topics      config.TopicConfig
	Logger      *logger.Logger
}

func NewService(dbLayer DBLayer, producer Publisher, broadcaster Broadcaster, topics config.TopicConfig, log *logger.Logger) *Service {
	return &Service{
		DB:          dbLayer,
		Producer:    producer,
		Broadcaster: broadcaster,
		Topics:      topics,
		Logger:      log,
	}
}

// CreatePackage persists a new listing owned by the calling agent and
// announces it.
func (s *Service) CreatePackage(ctx context.Context, agentID string, req models.PackageRequest) (*models.TravelPackage, error) {
	if req.Destination == "" || req.Description == "" {
		return nil, fmt.Errorf("%w: destination and description are required", ErrInvalidPackage)
	}
	if req.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidPackage)
	}

	pkg := models.TravelPackage{
		PackageID:   uuid.NewString(),
		Destination: req.Destination,
		Price:       req.Price,
		Description: req.Description,
		AgentID:     agentID,
		City:        req.City,
		CreatedAt:   time.Now(),
	}

	if err := s.DB.CreatePackage(ctx, pkg); err != nil {
		return nil, fmt.Errorf("failed to create package: %w", err)
	}

	s.Logger.LogDatabase("INSERT", "packages", fmt.Sprintf("Package %s created by agent %s", pkg.PackageID, agentID))
	s.announce("package_created", s.Topics.PackageCreated, pkg)

	return &pkg, nil
}

// GetPackage returns one listing.
func (s *Service) GetPackage(ctx context.Context, id string) (*models.TravelPackage, error) {
	pkg, err := s.DB.GetPackageByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrPackageNotFound
		}
		return nil, fmt.Errorf("failed to load package %s: %w", id, err)
	}
	return pkg, nil
}

// ListPackages returns listings, optionally narrowed to a city.
func (s *Service) ListPackages(ctx context.Context, city string) ([]models.TravelPackage, error) {
	return s.DB.ListPackages(ctx, city)
}

// DeletePackage removes a listing. Only the owning agent may delete.
func (s *Service) DeletePackage(ctx context.Context, agentID, id string) error {
	pkg, err := s.GetPackage(ctx, id)
	if err != nil {
		return err
	}
	if pkg.AgentID != agentID {
		return ErrNotOwner
	}

	if err := s.DB.DeletePackage(ctx, id); err != nil {
		if db.IsNotFound(err) {
			return ErrPackageNotFound
		}
		return fmt.Errorf("failed to delete package %s: %w", id, err)
	}

	s.Logger.LogDatabase("DELETE", "packages", fmt.Sprintf("Package %s deleted by agent %s", id, agentID))
	s.announce("package_deleted", s.Topics.PackageDeleted, *pkg)

	return nil
}

func (s *Service) announce(eventType, topic string, pkg models.TravelPackage) {
	event := models.PackageEvent{
		Type:      eventType,
		Package:   pkg,
		Timestamp: time.Now(),
	}

	if s.Broadcaster != nil {
		s.Broadcaster.EmitPackageEvent(event)
	}

	if s.Producer != nil {
		value, err := json.Marshal(event)
		if err != nil {
			s.Logger.Error("CATALOG", fmt.Sprintf("Failed to marshal %s event: %v", eventType, err))
			return
		}
		if err := s.Producer.Publish(topic, pkg.PackageID, value); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s event: %v", eventType, err))
		}
	}
}
