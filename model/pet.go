package model

import (
	"fmt"
	"strings"
)

// PetStatus is the adoption state of a pet.
type PetStatus string

// PetStatusAvailable and PetStatusPending enumerate the adoption states.
const (
	PetStatusAvailable PetStatus = "available"
	PetStatusPending   PetStatus = "pending"
)

// ParsePetStatus parses a status name, ignoring case and surrounding space.
func ParsePetStatus(s string) (PetStatus, error) {
	switch PetStatus(strings.ToLower(strings.TrimSpace(s))) {
	case PetStatusAvailable:
		return PetStatusAvailable, nil
	case PetStatusPending:
		return PetStatusPending, nil
	default:
		return "", fmt.Errorf("unknown pet status %q", s)
	}
}

// Pet is an animal listed for adoption.
type Pet struct {
	ID          int64
	Name        string
	Animal      string
	Sex         string
	Age         int
	Description string
	Size        float64
	ImagePath   string
	Status      PetStatus
	ShelterID   int64

	// Shelter is set when the hosting shelter was loaded with the pet.
	Shelter *Shelter
}

// PetSummary is the short projection of a pet.
type PetSummary struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Sex     string    `json:"sex"`
	Age     int       `json:"age"`
	Image   string    `json:"image"`
	Status  PetStatus `json:"status"`
	Shelter string    `json:"shelter,omitempty"`
}

// PetDetail is the full projection of a pet.
type PetDetail struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Sex         string          `json:"sex"`
	Age         int             `json:"age"`
	Image       string          `json:"image"`
	Status      PetStatus       `json:"status"`
	Description string          `json:"description"`
	Size        float64         `json:"size"`
	Shelter     *ShelterSummary `json:"shelter,omitempty"`
}

// Summary returns the short projection.
func (p Pet) Summary() PetSummary {
	s := PetSummary{
		ID:     p.ID,
		Name:   p.Name,
		Type:   p.Animal,
		Sex:    p.Sex,
		Age:    p.Age,
		Image:  p.ImagePath,
		Status: p.Status,
	}
	if p.Shelter != nil {
		s.Shelter = p.Shelter.Name
	}
	return s
}

// Detail returns the full projection.
func (p Pet) Detail() PetDetail {
	d := PetDetail{
		ID:          p.ID,
		Name:        p.Name,
		Type:        p.Animal,
		Sex:         p.Sex,
		Age:         p.Age,
		Image:       p.ImagePath,
		Status:      p.Status,
		Description: p.Description,
		Size:        p.Size,
	}
	if p.Shelter != nil {
		summary := p.Shelter.Summary()
		d.Shelter = &summary
	}
	return d
}

// Project implements Projectable.
func (p Pet) Project(proj Projection) any {
	if proj == ProjectionFull {
		return p.Detail()
	}
	return p.Summary()
}
