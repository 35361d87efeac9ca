package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/canonical/sqlair"

	"github.com/c360studio/shelter/model"
)

// now is replaced in tests.
var now = time.Now

// CreateUser registers a user, setting its ID and CreatedAt. A second user
// with the same email (ignoring case) fails with ErrDuplicateEmail.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	row := dbUser{
		Name:      strings.TrimSpace(u.Name),
		Email:     strings.TrimSpace(u.Email),
		Age:       u.Age,
		CreatedAt: formatTime(now()),
	}

	var id int64
	err := s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		existing := dbUser{Email: row.Email}
		err := tx.Query(ctx, s.stmts.selectUserByEmail, existing).Get(&existing)
		if err == nil {
			return ErrDuplicateEmail
		} else if !errors.Is(err, sqlair.ErrNoRows) {
			return fmt.Errorf("look up user email: %w", err)
		}

		var outcome sqlair.Outcome
		if err := tx.Query(ctx, s.stmts.insertUser, row).Get(&outcome); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateEmail
			}
			if isConstraintViolation(err) {
				return fmt.Errorf("insert user: %w", ErrConstraint)
			}
			return fmt.Errorf("insert user: %w", err)
		}
		id, err = lastInsertID(outcome)
		return err
	})
	if err != nil {
		return err
	}

	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return err
	}
	u.ID = id
	u.Name = row.Name
	u.Email = row.Email
	u.CreatedAt = created
	return nil
}

// GetUserByEmail looks a user up by email, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := dbUser{Email: strings.TrimSpace(email)}
	err := s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		if err := tx.Query(ctx, s.stmts.selectUserByEmail, row).Get(&row); err != nil {
			if errors.Is(err, sqlair.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("get user by email: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	return row.toModel()
}

// CreateContact stores a contact form submission, setting its ID and
// CreatedAt.
func (s *Store) CreateContact(ctx context.Context, c *model.Contact) error {
	row := dbContact{
		Name:      strings.TrimSpace(c.Name),
		Email:     strings.TrimSpace(c.Email),
		Message:   strings.TrimSpace(c.Message),
		CreatedAt: formatTime(now()),
	}

	var id int64
	err := s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		var outcome sqlair.Outcome
		if err := tx.Query(ctx, s.stmts.insertContact, row).Get(&outcome); err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("insert contact: %w", ErrConstraint)
			}
			return fmt.Errorf("insert contact: %w", err)
		}
		var err error
		id, err = lastInsertID(outcome)
		return err
	})
	if err != nil {
		return err
	}

	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return err
	}
	c.ID = id
	c.Name = row.Name
	c.Email = row.Email
	c.Message = row.Message
	c.CreatedAt = created
	return nil
}

// ListContacts returns all contact submissions, oldest first.
func (s *Store) ListContacts(ctx context.Context) ([]model.Contact, error) {
	var rows []dbContact
	err := s.txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, s.stmts.selectContacts).GetAll(&rows)
		if err != nil && !errors.Is(err, sqlair.ErrNoRows) {
			return fmt.Errorf("list contacts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	contacts := make([]model.Contact, 0, len(rows))
	for _, r := range rows {
		c, err := r.toModel()
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}
