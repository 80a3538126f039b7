package service

import "github.com/shopsphere/shopsphere-api/internal/model"

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   string
	Name string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }
