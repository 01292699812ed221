package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Staff is a municipal worker that issues can be assigned to.
type Staff struct {
	ID       primitive.ObjectID `json:"_id"`
	Name     string             `json:"name"`
	Email    string             `json:"email"`
	Phone    string             `json:"phone,omitempty"`
	PhotoURL string             `json:"photoURL,omitempty"`
}

func (s Staff) Identity() Identity {
	return Identity{ID: s.ID.Hex(), Name: s.Name, Email: s.Email}
}
