// Package idgen wraps the identifier schemes used by the messaging service.
package idgen

// Generator produces and checks one kind of identifier.
type Generator interface {
	Generate() (string, error)
	Validate(id string) (bool, string) // (valid, reason)
}
