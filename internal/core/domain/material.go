package domain

import "strings"

// Material is a recyclable item kind, e.g. "plastic" or "can".
type Material string

const (
	MaterialPlastic Material = "plastic"
	MaterialCan     Material = "can"
)

// ParseMaterial normalises user input into a Material. It does not check
// the value against any rate table.
func ParseMaterial(s string) Material {
	return Material(strings.ToLower(strings.TrimSpace(s)))
}

func (m Material) String() string {
	return string(m)
}
