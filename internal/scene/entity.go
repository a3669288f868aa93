// Package scene holds the authoritative scene graph that generated modules
// mutate and that browser clients mirror.
package scene

import "maps"

// EntityID identifies a live scene entity.
type EntityID string

// ResourceID identifies a disposable engine resource (geometry, material, texture).
type ResourceID string

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// V is shorthand for Vec3{x, y, z}.
func V(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

type Kind string

const (
	KindBox    Kind = "box"
	KindSphere Kind = "sphere"
	KindPlane  Kind = "plane"
	KindLabel  Kind = "label"
	KindLight  Kind = "light"
	KindModel  Kind = "model"
	KindGroup  Kind = "group"
	KindCustom Kind = "custom"
)

// Body is a physics body attached to an entity.
type Body struct {
	Type        string  `json:"type"` // "static", "dynamic" or "kinematic"
	Mass        float64 `json:"mass,omitempty"`
	Shape       string  `json:"shape,omitempty"`
	Restitution float64 `json:"restitution,omitempty"`
}

// Entity is one scene object. Module is the key of the generated module that
// created it.
type Entity struct {
	ID       EntityID       `json:"id"`
	Module   string         `json:"module"`
	Kind     Kind           `json:"kind"`
	Name     string         `json:"name,omitempty"`
	Parent   EntityID       `json:"parent,omitempty"`
	Position Vec3           `json:"position"`
	Rotation Vec3           `json:"rotation"`
	Scale    Vec3           `json:"scale"`
	Color    string         `json:"color,omitempty"`
	Text     string         `json:"text,omitempty"`
	URL      string         `json:"url,omitempty"`
	Geometry ResourceID     `json:"geometry,omitempty"`
	Material ResourceID     `json:"material,omitempty"`
	Body     *Body          `json:"body,omitempty"`
	Props    map[string]any `json:"props,omitempty"`

	seq uint64
}

func (e Entity) clone() Entity {
	out := e
	if e.Body != nil {
		b := *e.Body
		out.Body = &b
	}
	if e.Props != nil {
		out.Props = maps.Clone(e.Props)
	}
	return out
}

type ResourceKind string

const (
	ResourceGeometry ResourceKind = "geometry"
	ResourceMaterial ResourceKind = "material"
	ResourceTexture  ResourceKind = "texture"
)

// Resource is an engine-side allocation that must be disposed explicitly.
type Resource struct {
	ID     ResourceID     `json:"id"`
	Kind   ResourceKind   `json:"kind"`
	Module string         `json:"module"`
	Params map[string]any `json:"params,omitempty"`
}

// MeshSpec describes a primitive mesh for Runtime.Box, Sphere and Plane.
type MeshSpec struct {
	Name      string
	Position  Vec3
	Rotation  Vec3
	Scale     Vec3
	Size      Vec3    // box and plane dimensions
	Radius    float64 // sphere radius
	Color     string
	Metalness float64
	Roughness float64
	Parent    EntityID
	Body      *Body
}
