package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/canonical/sqlair"

	"github.com/c360studio/shelter/model"
)

// PetFilter narrows a pet listing. Zero values match everything.
type PetFilter struct {
	// Animal matches the pet type, ignoring case (e.g. "dog").
	Animal string
	// Status matches the adoption status.
	Status model.PetStatus
}

// ListShelters returns all shelters ordered by id.
func (s *Store) ListShelters(ctx context.Context) ([]model.Shelter, error) {
	var rows []dbShelter
	err := s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, s.stmts.selectShelters).GetAll(&rows)
		if err != nil && !errors.Is(err, sqlair.ErrNoRows) {
			return fmt.Errorf("list shelters: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	shelters := make([]model.Shelter, 0, len(rows))
	for _, r := range rows {
		shelters = append(shelters, r.toModel())
	}
	return shelters, nil
}

// GetShelter returns a shelter together with the pets it hosts.
func (s *Store) GetShelter(ctx context.Context, id int64) (model.Shelter, error) {
	var (
		row  = dbShelter{ID: id}
		pets []dbPet
	)
	err := s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		if err := tx.Query(ctx, s.stmts.selectShelter, row).Get(&row); err != nil {
			if errors.Is(err, sqlair.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("get shelter %d: %w", id, err)
		}
		err := tx.Query(ctx, s.stmts.selectShelterPets, row).GetAll(&pets)
		if err != nil && !errors.Is(err, sqlair.ErrNoRows) {
			return fmt.Errorf("list pets of shelter %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return model.Shelter{}, err
	}

	shelter := row.toModel()
	shelter.Pets = make([]model.Pet, 0, len(pets))
	for _, p := range pets {
		pet := p.toModel()
		pet.Shelter = &model.Shelter{ID: shelter.ID, Name: shelter.Name}
		shelter.Pets = append(shelter.Pets, pet)
	}
	return shelter, nil
}

// CreateShelter inserts a shelter and sets its ID.
func (s *Store) CreateShelter(ctx context.Context, shelter *model.Shelter) error {
	row := dbShelter{
		Name:    strings.TrimSpace(shelter.Name),
		Email:   strings.TrimSpace(shelter.Email),
		Phone:   strings.TrimSpace(shelter.Phone),
		Address: strings.TrimSpace(shelter.Address),
	}
	var id int64
	err := s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		var err error
		id, err = s.insertShelter(ctx, tx, row)
		return err
	})
	if err != nil {
		return err
	}
	shelter.ID = id
	return nil
}

func (s *Store) insertShelter(ctx context.Context, tx *sqlair.TX, row dbShelter) (int64, error) {
	var outcome sqlair.Outcome
	if err := tx.Query(ctx, s.stmts.insertShelter, row).Get(&outcome); err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("insert shelter %q: %w", row.Name, ErrConstraint)
		}
		return 0, fmt.Errorf("insert shelter %q: %w", row.Name, err)
	}
	return lastInsertID(outcome)
}

// ListPets returns pets ordered by id, each with its shelter name loaded.
func (s *Store) ListPets(ctx context.Context, filter PetFilter) ([]model.Pet, error) {
	var (
		rows     []dbPet
		shelters []dbShelter
	)
	in := petFilter{Animal: strings.TrimSpace(filter.Animal), Status: string(filter.Status)}
	err := s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, s.stmts.selectPets, in).GetAll(&rows)
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil
		} else if err != nil {
			return fmt.Errorf("list pets: %w", err)
		}
		err = tx.Query(ctx, s.stmts.selectShelters).GetAll(&shelters)
		if err != nil && !errors.Is(err, sqlair.ErrNoRows) {
			return fmt.Errorf("list shelters: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*model.Shelter, len(shelters))
	for _, r := range shelters {
		shelter := r.toModel()
		byID[r.ID] = &shelter
	}
	pets := make([]model.Pet, 0, len(rows))
	for _, r := range rows {
		pet := r.toModel()
		pet.Shelter = byID[r.ShelterID]
		pets = append(pets, pet)
	}
	return pets, nil
}

// GetPet returns a pet with its full shelter.
func (s *Store) GetPet(ctx context.Context, id int64) (model.Pet, error) {
	row := dbPet{ID: id}
	var shelter dbShelter
	err := s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		if err := tx.Query(ctx, s.stmts.selectPet, row).Get(&row); err != nil {
			if errors.Is(err, sqlair.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("get pet %d: %w", id, err)
		}
		shelter.ID = row.ShelterID
		if err := tx.Query(ctx, s.stmts.selectShelter, shelter).Get(&shelter); err != nil {
			return fmt.Errorf("get shelter of pet %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return model.Pet{}, err
	}

	pet := row.toModel()
	sh := shelter.toModel()
	pet.Shelter = &sh
	return pet, nil
}

// CreatePet inserts a pet and sets its ID. The shelter must exist.
func (s *Store) CreatePet(ctx context.Context, pet *model.Pet) error {
	if pet.Status == "" {
		pet.Status = model.PetStatusAvailable
	}
	row := dbPet{
		Name:        strings.TrimSpace(pet.Name),
		Animal:      strings.TrimSpace(pet.Animal),
		Sex:         strings.TrimSpace(pet.Sex),
		Age:         pet.Age,
		Description: strings.TrimSpace(pet.Description),
		Size:        pet.Size,
		ImagePath:   strings.TrimSpace(pet.ImagePath),
		Status:      string(pet.Status),
		ShelterID:   pet.ShelterID,
	}
	var id int64
	err := s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		var err error
		id, err = s.insertPet(ctx, tx, row)
		return err
	})
	if err != nil {
		return err
	}
	pet.ID = id
	return nil
}

func (s *Store) insertPet(ctx context.Context, tx *sqlair.TX, row dbPet) (int64, error) {
	var outcome sqlair.Outcome
	if err := tx.Query(ctx, s.stmts.insertPet, row).Get(&outcome); err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("insert pet %q: %w", row.Name, ErrConstraint)
		}
		return 0, fmt.Errorf("insert pet %q: %w", row.Name, err)
	}
	return lastInsertID(outcome)
}
