package store

import (
	"context"
	"fmt"
	"time"

	"seanav/internal/tracking/models"
	id "seanav/pkg/domain"
)

// Demo holds the ids SeedDemo created so callers can log or reuse them.
type Demo struct {
	Company   *models.Company
	Sectors   []*models.Sector
	Itinerary *models.Itinerary
	Seaports  []*models.Seaport
}

// SeedDemo creates one company with two sectors, a handful of staff, the
// southern-route seaports and an active itinerary through them.
func SeedDemo(ctx context.Context, s Writer) (*Demo, error) {
	now := time.Now()
	demo := &Demo{}

	demo.Company = &models.Company{ID: id.NewCompanyID(), Name: "Naviera Austral", Description: "demo"}
	if err := s.CreateCompany(ctx, demo.Company); err != nil {
		return nil, fmt.Errorf("seed company: %w", err)
	}

	for _, name := range []string{"Muelle", "Bodega"} {
		sec := &models.Sector{ID: id.NewSectorID(), CompanyID: demo.Company.ID, Name: name}
		if err := s.CreateSector(ctx, sec); err != nil {
			return nil, fmt.Errorf("seed sector %s: %w", name, err)
		}
		demo.Sectors = append(demo.Sectors, sec)
	}

	staff := []struct {
		rut, name string
		category  models.Category
	}{
		{"11111111-1", "Carolina Soto", models.CategoryStaff},
		{"22222222-2", "Pedro Vidal", models.CategoryContractor},
		{"33333333-3", "Marta Diaz", models.CategoryVisitor},
	}
	for _, p := range staff {
		companyID := demo.Company.ID
		person := &models.Person{
			ID:        id.NewPersonID(),
			Name:      p.name,
			Rut:       p.rut,
			Category:  p.category,
			CompanyID: &companyID,
			Active:    true,
			CreatedAt: now,
		}
		if err := s.CreatePerson(ctx, person); err != nil {
			return nil, fmt.Errorf("seed person %s: %w", p.rut, err)
		}
	}

	ports := []struct {
		locationID int
		name       string
	}{
		{1, "Puerto Montt"},
		{2, "Puerto Chacabuco"},
		{3, "Puerto Natales"},
		{4, "Puerto Aguirre"},
	}
	for _, p := range ports {
		port := &models.Seaport{ID: id.NewSeaportID(), LocationID: p.locationID, LocationName: p.name}
		if err := s.CreateSeaport(ctx, port); err != nil {
			return nil, fmt.Errorf("seed seaport %s: %w", p.name, err)
		}
		demo.Seaports = append(demo.Seaports, port)
	}

	demo.Itinerary = &models.Itinerary{
		ID:         id.NewItineraryID(),
		RefID:      1001,
		Name:       "Puerto Montt - Puerto Natales",
		DepartAt:   now.Add(24 * time.Hour),
		ArrivalAt:  now.Add(96 * time.Hour),
		Active:     true,
		SeaportIDs: []id.SeaportID{demo.Seaports[0].ID, demo.Seaports[2].ID},
	}
	if err := s.CreateItinerary(ctx, demo.Itinerary); err != nil {
		return nil, fmt.Errorf("seed itinerary: %w", err)
	}
	return demo, nil
}
