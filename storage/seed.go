package storage

import (
	"context"
	"fmt"

	"github.com/canonical/sqlair"

	"github.com/c360studio/shelter/model"
)

// seedPet pairs a demo pet with the name of its shelter.
type seedPet struct {
	shelter string
	pet     model.Pet
}

// DemoShelters is the demo catalogue of shelters inserted by Seed.
var DemoShelters = []model.Shelter{
	{
		Name:    "cohort",
		Email:   "ivory-orchid@cohort.org",
		Phone:   "+156547896542",
		Address: "12 rue de Prony, 75017 Paris, France",
	},
	{
		Name:    "shelterB",
		Email:   "shelters@ivory.orchid.org",
		Phone:   "+156547896542",
		Address: "760 United Nations Plaza, New York, NY 10017, USA",
	},
	{
		Name:    "closedShelter",
		Email:   "automations@example.com",
		Phone:   "+0123456789",
		Address: "1600 Pennsylvania Ave NW, Washington, DC 20500, USA",
	},
}

var demoPets = []seedPet{
	{"cohort", model.Pet{Name: "rex", Animal: "dog", Sex: "male", Age: 10, Description: "calm border-collie", Size: 6.25, ImagePath: "Kripto.jpg", Status: model.PetStatusPending}},
	{"shelterB", model.Pet{Name: "max", Animal: "dog", Sex: "male", Age: 3, Description: "survived a car crash", Size: 2.1, ImagePath: "dogandcat.jpg", Status: model.PetStatusPending}},
	{"cohort", model.Pet{Name: "bella", Animal: "dog", Sex: "female", Age: 1, Description: "loves big walks, needs attention", Size: 6.25, ImagePath: "Kripto.jpg", Status: model.PetStatusPending}},
	{"shelterB", model.Pet{Name: "Snowball", Animal: "cat", Sex: "male", Age: 10, Description: "Full of energy", Size: 15, ImagePath: "dogandcat.jpg", Status: model.PetStatusPending}},
	{"cohort", model.Pet{Name: "fog", Animal: "cat", Sex: "female", Age: 10, Description: "has an interesting color", Size: 3, ImagePath: "snowball.jpg", Status: model.PetStatusPending}},
	{"closedShelter", model.Pet{Name: "sunny", Animal: "cat", Sex: "female", Age: 10, Description: "Very fat", Size: 8, ImagePath: "dogandcat.jpg", Status: model.PetStatusAvailable}},
}

// DemoPetCount is the number of pets inserted by Seed.
var DemoPetCount = len(demoPets)

// SeedResult reports what Seed inserted.
type SeedResult struct {
	Shelters int
	Pets     int
	Skipped  bool
}

// Seed inserts the demo catalogue in one transaction. A database that
// already holds shelters is left untouched.
func (s *Store) Seed(ctx context.Context) (SeedResult, error) {
	var result SeedResult
	err := s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		var count rowCount
		if err := tx.Query(ctx, s.stmts.countShelters).Get(&count); err != nil {
			return fmt.Errorf("count shelters: %w", err)
		}
		if count.Count > 0 {
			result.Skipped = true
			return nil
		}

		ids := make(map[string]int64, len(DemoShelters))
		for _, sh := range DemoShelters {
			id, err := s.insertShelter(ctx, tx, dbShelter{
				Name:    sh.Name,
				Email:   sh.Email,
				Phone:   sh.Phone,
				Address: sh.Address,
			})
			if err != nil {
				return err
			}
			ids[sh.Name] = id
			result.Shelters++
		}

		for _, sp := range demoPets {
			p := sp.pet
			if _, err := s.insertPet(ctx, tx, dbPet{
				Name:        p.Name,
				Animal:      p.Animal,
				Sex:         p.Sex,
				Age:         p.Age,
				Description: p.Description,
				Size:        p.Size,
				ImagePath:   p.ImagePath,
				Status:      string(p.Status),
				ShelterID:   ids[sp.shelter],
			}); err != nil {
				return err
			}
			result.Pets++
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}

	if result.Skipped {
		s.logger.Info("Catalogue already present, seed skipped")
	} else {
		s.logger.Info("Seeded demo catalogue", "shelters", result.Shelters, "pets", result.Pets)
	}
	return result, nil
}
