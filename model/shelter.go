package model

// Shelter is an organisation hosting pets for adoption.
type Shelter struct {
	ID      int64
	Name    string
	Email   string
	Phone   string
	Address string

	// Pets is only populated when the shelter is loaded for a detail view.
	Pets []Pet
}

// ShelterSummary is the short projection of a shelter. The front-end
// shelter cards read these keys directly.
type ShelterSummary struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// ShelterDetail is the full projection of a shelter.
type ShelterDetail struct {
	ShelterSummary
	Pets []PetSummary `json:"pets"`
}

// Summary returns the short projection.
func (s Shelter) Summary() ShelterSummary {
	return ShelterSummary{
		ID:      s.ID,
		Name:    s.Name,
		Email:   s.Email,
		Phone:   s.Phone,
		Address: s.Address,
	}
}

// Detail returns the full projection, with the hosted pets in short form.
func (s Shelter) Detail() ShelterDetail {
	pets := make([]PetSummary, 0, len(s.Pets))
	for _, p := range s.Pets {
		if p.Shelter == nil {
			p.Shelter = &Shelter{ID: s.ID, Name: s.Name}
		}
		pets = append(pets, p.Summary())
	}
	return ShelterDetail{ShelterSummary: s.Summary(), Pets: pets}
}

// Project implements Projectable.
func (s Shelter) Project(p Projection) any {
	if p == ProjectionFull {
		return s.Detail()
	}
	return s.Summary()
}
