package storage

import (
	"fmt"
	"time"

	"github.com/canonical/sqlair"

	"github.com/c360studio/shelter/model"
)

// Row types mapped by sqlair. Tags name the table columns.

type dbShelter struct {
	ID      int64  `db:"id"`
	Name    string `db:"name"`
	Email   string `db:"email"`
	Phone   string `db:"phone"`
	Address string `db:"address"`
}

func (r dbShelter) toModel() model.Shelter {
	return model.Shelter{
		ID:      r.ID,
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Address: r.Address,
	}
}

type dbPet struct {
	ID          int64   `db:"id"`
	Name        string  `db:"name"`
	Animal      string  `db:"animal"`
	Sex         string  `db:"sex"`
	Age         int     `db:"age"`
	Description string  `db:"description"`
	Size        float64 `db:"size"`
	ImagePath   string  `db:"image_path"`
	Status      string  `db:"status"`
	ShelterID   int64   `db:"shelter_id"`
}

func (r dbPet) toModel() model.Pet {
	return model.Pet{
		ID:          r.ID,
		Name:        r.Name,
		Animal:      r.Animal,
		Sex:         r.Sex,
		Age:         r.Age,
		Description: r.Description,
		Size:        r.Size,
		ImagePath:   r.ImagePath,
		Status:      model.PetStatus(r.Status),
		ShelterID:   r.ShelterID,
	}
}

type petFilter struct {
	Animal string `db:"animal"`
	Status string `db:"status"`
}

type dbUser struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	Email     string `db:"email"`
	Age       int    `db:"age"`
	CreatedAt string `db:"created_at"`
}

func (r dbUser) toModel() (model.User, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return model.User{}, err
	}
	return model.User{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Age:       r.Age,
		CreatedAt: created,
	}, nil
}

type dbContact struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	Email     string `db:"email"`
	Message   string `db:"message"`
	CreatedAt string `db:"created_at"`
}

func (r dbContact) toModel() (model.Contact, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return model.Contact{}, err
	}
	return model.Contact{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Message:   r.Message,
		CreatedAt: created,
	}, nil
}

type rowCount struct {
	Count int `db:"count"`
}

// Timestamps are stored as RFC 3339 text in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// statements holds every query the store runs, prepared once at Open.
type statements struct {
	selectShelters    *sqlair.Statement
	selectShelter     *sqlair.Statement
	countShelters     *sqlair.Statement
	insertShelter     *sqlair.Statement
	selectPets        *sqlair.Statement
	selectPet         *sqlair.Statement
	selectShelterPets *sqlair.Statement
	insertPet         *sqlair.Statement
	selectUserByEmail *sqlair.Statement
	insertUser        *sqlair.Statement
	selectContacts    *sqlair.Statement
	insertContact     *sqlair.Statement
}

func prepareStatements() (*statements, error) {
	var s statements
	queries := []struct {
		dst   **sqlair.Statement
		query string
		types []any
	}{
		{&s.selectShelters, `SELECT &dbShelter.* FROM shelters ORDER BY id`, []any{dbShelter{}}},
		{&s.selectShelter, `SELECT &dbShelter.* FROM shelters WHERE id = $dbShelter.id`, []any{dbShelter{}}},
		{&s.countShelters, `SELECT count(*) AS &rowCount.count FROM shelters`, []any{rowCount{}}},
		{&s.insertShelter, `
INSERT INTO shelters (name, email, phone, address)
VALUES ($dbShelter.*)`, []any{dbShelter{}}},
		{&s.selectPets, `
SELECT &dbPet.* FROM pets
WHERE ($petFilter.animal = '' OR lower(animal) = lower($petFilter.animal))
AND ($petFilter.status = '' OR status = $petFilter.status)
ORDER BY id`, []any{dbPet{}, petFilter{}}},
		{&s.selectPet, `SELECT &dbPet.* FROM pets WHERE id = $dbPet.id`, []any{dbPet{}}},
		{&s.selectShelterPets, `
SELECT &dbPet.* FROM pets
WHERE shelter_id = $dbShelter.id
ORDER BY id`, []any{dbPet{}, dbShelter{}}},
		{&s.insertPet, `
INSERT INTO pets (name, animal, sex, age, description, size, image_path, status, shelter_id)
VALUES ($dbPet.*)`, []any{dbPet{}}},
		{&s.selectUserByEmail, `SELECT &dbUser.* FROM users WHERE email = $dbUser.email`, []any{dbUser{}}},
		{&s.insertUser, `
INSERT INTO users (name, email, age, created_at)
VALUES ($dbUser.*)`, []any{dbUser{}}},
		{&s.selectContacts, `SELECT &dbContact.* FROM contacts ORDER BY id`, []any{dbContact{}}},
		{&s.insertContact, `
INSERT INTO contacts (name, email, message, created_at)
VALUES ($dbContact.*)`, []any{dbContact{}}},
	}
	for _, q := range queries {
		stmt, err := sqlair.Prepare(q.query, q.types...)
		if err != nil {
			return nil, fmt.Errorf("prepare statement %q: %w", q.query, err)
		}
		*q.dst = stmt
	}
	return &s, nil
}
