package model

import "time"

// User is a registered site user.
type User struct {
	ID        int64
	Name      string
	Email     string
	Age       int
	CreatedAt time.Time
}

// UserJSON is the wire form of a user.
type UserJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Age       int    `json:"age"`
	CreatedAt string `json:"created_at"`
}

// JSON returns the wire form of the user.
func (u User) JSON() UserJSON {
	return UserJSON{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Age:       u.Age,
		CreatedAt: FormatTime(u.CreatedAt),
	}
}

// Contact is a stored contact-form submission.
type Contact struct {
	ID        int64
	Name      string
	Email     string
	Message   string
	CreatedAt time.Time
}

// ContactJSON is the wire form of a contact submission.
type ContactJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// JSON returns the wire form of the contact submission.
func (c Contact) JSON() ContactJSON {
	return ContactJSON{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Message:   c.Message,
		CreatedAt: FormatTime(c.CreatedAt),
	}
}

// FormatTime renders a timestamp as RFC 3339 in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
