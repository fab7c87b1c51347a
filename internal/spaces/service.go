package spaces

import (
	"context"
	"errors"
	"fmt"
	"math"

	"parktayo/internal/shared/apperr"
	"parktayo/internal/shared/constants"
	"parktayo/pkg/cache"
	"parktayo/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service interface {
	CreateSpace(ctx context.Context, landlordID uuid.UUID, req CreateSpaceRequest) (*ParkingSpace, error)
	GetSpace(ctx context.Context, id uuid.UUID) (*ParkingSpace, error)
	ListSpaces(ctx context.Context, page, limit int) (*PaginatedSpaces, error)
	ListMySpaces(ctx context.Context, landlordID uuid.UUID) ([]ParkingSpace, error)
	UpdateSpace(ctx context.Context, landlordID, id uuid.UUID, req UpdateSpaceRequest) (*ParkingSpace, error)
	GetAvailability(ctx context.Context, id uuid.UUID) (*AvailabilityResponse, error)

	// SpotTaken and SpotReturned keep the live counter mirror in step with
	// committed booking transitions. Mirror errors are logged, not returned.
	SpotTaken(ctx context.Context, spaceID uuid.UUID)
	SpotReturned(ctx context.Context, spaceID uuid.UUID)
}

type service struct {
	repo     Repository
	cache    cache.Service
	counters *LiveCounters
	log      *logger.Logger
}

func NewService(repo Repository, cacheService cache.Service, counters *LiveCounters) Service {
	return &service{
		repo:     repo,
		cache:    cacheService,
		counters: counters,
		log:      logger.GetDefault(),
	}
}

func (s *service) CreateSpace(ctx context.Context, landlordID uuid.UUID, req CreateSpaceRequest) (*ParkingSpace, error) {
	if err := validateSchedule(req.OperatingHours); err != nil {
		return nil, err
	}
	if math.Abs(req.Latitude) > 90 || math.Abs(req.Longitude) > 180 {
		return nil, apperr.New(apperr.KindInvalidInput, "invalid coordinates")
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "Asia/Manila"
	}
	surge := req.SurgeMultiplier
	if surge < 1 {
		surge = 1.0
	}

	space := &ParkingSpace{
		ID:              uuid.New(),
		LandlordID:      landlordID,
		Name:            req.Name,
		Address:         req.Address,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		TotalSpots:      req.TotalSpots,
		AvailableSpots:  req.TotalSpots,
		PricePer3Hours:  req.PricePer3Hours,
		DailyRate:       req.DailyRate,
		SurgeMultiplier: surge,
		OperatingHours:  req.OperatingHours,
		Timezone:        timezone,
		IsActive:        true,
	}

	if err := s.repo.Create(ctx, space); err != nil {
		return nil, fmt.Errorf("failed to create space: %w", err)
	}

	if err := s.counters.Seed(ctx, space.ID.String(), space.AvailableSpots); err != nil {
		s.log.Warn("failed to seed spot counter", "space_id", space.ID, "error", err)
	}
	s.invalidateListCache(ctx)

	return space, nil
}

func (s *service) GetSpace(ctx context.Context, id uuid.UUID) (*ParkingSpace, error) {
	cacheKey := constants.SpaceDetailKey(id.String())

	var cached ParkingSpace
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	space, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "space not found")
		}
		return nil, fmt.Errorf("failed to get space: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, space, constants.TTL_SPACE_DETAIL); err != nil {
			s.log.Warn("failed to cache space", "space_id", id, "error", err)
		}
	}
	return space, nil
}

func (s *service) ListSpaces(ctx context.Context, page, limit int) (*PaginatedSpaces, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	spaces, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}

	return &PaginatedSpaces{
		Spaces:     spaces,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func (s *service) ListMySpaces(ctx context.Context, landlordID uuid.UUID) ([]ParkingSpace, error) {
	return s.repo.ListByLandlord(ctx, landlordID)
}

func (s *service) UpdateSpace(ctx context.Context, landlordID, id uuid.UUID, req UpdateSpaceRequest) (*ParkingSpace, error) {
	space, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "space not found")
		}
		return nil, fmt.Errorf("failed to get space: %w", err)
	}
	if space.LandlordID != landlordID {
		return nil, apperr.New(apperr.KindForbidden, "space belongs to another landlord")
	}

	if req.Name != nil {
		space.Name = *req.Name
	}
	if req.Address != nil {
		space.Address = *req.Address
	}
	if req.PricePer3Hours != nil {
		space.PricePer3Hours = *req.PricePer3Hours
	}
	if req.DailyRate != nil {
		space.DailyRate = *req.DailyRate
	}
	if req.SurgeMultiplier != nil {
		if *req.SurgeMultiplier < 1 {
			return nil, apperr.New(apperr.KindInvalidInput, "surge multiplier must be at least 1.0")
		}
		space.SurgeMultiplier = *req.SurgeMultiplier
	}
	if req.OperatingHours != nil {
		if err := validateSchedule(*req.OperatingHours); err != nil {
			return nil, err
		}
		space.OperatingHours = *req.OperatingHours
	}
	if req.IsActive != nil {
		space.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, space); err != nil {
		return nil, fmt.Errorf("failed to update space: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, constants.SpaceDetailKey(id.String())); err != nil {
			s.log.Warn("failed to invalidate space cache", "space_id", id, "error", err)
		}
	}
	s.invalidateListCache(ctx)

	return space, nil
}

func (s *service) GetAvailability(ctx context.Context, id uuid.UUID) (*AvailabilityResponse, error) {
	space, err := s.GetSpace(ctx, id)
	if err != nil {
		return nil, err
	}

	available := space.AvailableSpots
	source := "database"
	if live, ok := s.counters.Get(ctx, id.String()); ok {
		available = live
		source = "live"
	} else if err := s.counters.Seed(ctx, id.String(), space.AvailableSpots); err != nil {
		s.log.Warn("failed to reseed spot counter", "space_id", id, "error", err)
	}

	return &AvailabilityResponse{
		SpaceID:        space.ID,
		TotalSpots:     space.TotalSpots,
		AvailableSpots: available,
		Source:         source,
	}, nil
}

func (s *service) SpotTaken(ctx context.Context, spaceID uuid.UUID) {
	if err := s.counters.Decrement(ctx, spaceID.String()); err != nil {
		s.log.Warn("failed to decrement live spot counter", "space_id", spaceID, "error", err)
	}
}

func (s *service) SpotReturned(ctx context.Context, spaceID uuid.UUID) {
	space, err := s.repo.GetByID(ctx, spaceID)
	if err != nil {
		s.log.Warn("failed to load space for counter sync", "space_id", spaceID, "error", err)
		return
	}
	if err := s.counters.Increment(ctx, spaceID.String(), space.TotalSpots); err != nil {
		s.log.Warn("failed to increment live spot counter", "space_id", spaceID, "error", err)
	}
}

func (s *service) invalidateListCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePattern(ctx, constants.KEY_SPACE_LIST+"*"); err != nil {
		s.log.Warn("failed to invalidate space list cache", "error", err)
	}
}

// validateSchedule checks every day window parses and closes after it opens.
func validateSchedule(oh OperatingHours) error {
	if oh.Is24Hours {
		return nil
	}
	if len(oh.Schedule) == 0 {
		return apperr.New(apperr.KindInvalidInput,
			"operating hours need is24Hours or a day schedule")
	}
	for day, window := range oh.Schedule {
		if _, ok := scheduleDays[day]; !ok {
			return apperr.Newf(apperr.KindInvalidInput, "unknown schedule day %q", day)
		}
		open, err := minutesOfDay(window.Open)
		if err != nil {
			return err
		}
		closeAt, err := minutesOfDay(window.Close)
		if err != nil {
			return err
		}
		if closeAt <= open {
			return apperr.Newf(apperr.KindInvalidInput,
				"%s closes before it opens", day)
		}
	}
	return nil
}

var scheduleDays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}
