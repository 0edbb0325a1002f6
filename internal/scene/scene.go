// Package scene holds the objects the engine simulates. Each object is a
// list of primitives combined by set operations.
package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("scene: object not found")

type Operation int

const (
	OpUnion Operation = iota
	OpIntersection
	OpSubtraction
)

func (o Operation) String() string {
	switch o {
	case OpUnion:
		return "union"
	case OpIntersection:
		return "intersection"
	case OpSubtraction:
		return "subtraction"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// Primitive is a shape positioned relative to its object's origin.
type Primitive interface {
	Center() mgl32.Vec3
	// Bounds returns the axis-aligned box enclosing the shape.
	Bounds() (min, max mgl32.Vec3)
}

type Sphere struct {
	Centre mgl32.Vec3
	Radius float32
}

func (s Sphere) Center() mgl32.Vec3 { return s.Centre }

func (s Sphere) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	r := mgl32.Vec3{s.Radius, s.Radius, s.Radius}
	return s.Centre.Sub(r), s.Centre.Add(r)
}

type Cube struct {
	Centre     mgl32.Vec3
	Dimensions mgl32.Vec3
}

func (c Cube) Center() mgl32.Vec3 { return c.Centre }

func (c Cube) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	h := c.Dimensions.Mul(0.5)
	return c.Centre.Sub(h), c.Centre.Add(h)
}

type PrimitiveOp struct {
	ID        uuid.UUID
	Op        Operation
	Primitive Primitive
}

type Object struct {
	ID     uuid.UUID
	Name   string
	Origin mgl32.Vec3
	Ops    []PrimitiveOp
}

// AddOp appends a primitive operation and returns its id.
func (o *Object) AddOp(op Operation, p Primitive) uuid.UUID {
	id := uuid.New()
	o.Ops = append(o.Ops, PrimitiveOp{ID: id, Op: op, Primitive: p})
	return id
}

// Bounds encloses every primitive in world space. Subtractions never grow it.
func (o *Object) Bounds() (mgl32.Vec3, mgl32.Vec3, bool) {
	var lo, hi mgl32.Vec3
	found := false
	for _, op := range o.Ops {
		if op.Op == OpSubtraction {
			continue
		}
		pmin, pmax := op.Primitive.Bounds()
		pmin, pmax = pmin.Add(o.Origin), pmax.Add(o.Origin)
		if !found {
			lo, hi, found = pmin, pmax, true
			continue
		}
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], pmin[i])
			hi[i] = max(hi[i], pmax[i])
		}
	}
	return lo, hi, found
}

// Collection keeps objects in insertion order.
type Collection struct {
	objects map[uuid.UUID]*Object
	order   []uuid.UUID
}

func NewCollection() *Collection {
	return &Collection{objects: make(map[uuid.UUID]*Object)}
}

func (c *Collection) NewObject(name string, origin mgl32.Vec3) *Object {
	o := &Object{ID: uuid.New(), Name: name, Origin: origin}
	c.objects[o.ID] = o
	c.order = append(c.order, o.ID)
	return o
}

func (c *Collection) Get(id uuid.UUID) (*Object, error) {
	o, ok := c.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return o, nil
}

func (c *Collection) Remove(id uuid.UUID) error {
	if _, ok := c.objects[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(c.objects, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *Collection) Len() int { return len(c.order) }

// Objects returns the objects in insertion order.
func (c *Collection) Objects() []*Object {
	out := make([]*Object, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.objects[id])
	}
	return out
}

// Centroid is the mean origin of all objects, the zero vector when empty.
func (c *Collection) Centroid() mgl32.Vec3 {
	if len(c.order) == 0 {
		return mgl32.Vec3{}
	}
	var sum mgl32.Vec3
	for _, id := range c.order {
		sum = sum.Add(c.objects[id].Origin)
	}
	return sum.Mul(1 / float32(len(c.order)))
}

// Demo fills c with the startup scene.
func Demo(c *Collection) {
	a := c.NewObject("sphere with hole", mgl32.Vec3{-1.5, 0, 0})
	a.AddOp(OpUnion, Sphere{Radius: 1})
	a.AddOp(OpSubtraction, Cube{Dimensions: mgl32.Vec3{0.8, 0.8, 2.2}})

	b := c.NewObject("rounded box", mgl32.Vec3{1.5, 0, 0})
	b.AddOp(OpUnion, Cube{Dimensions: mgl32.Vec3{1.5, 1.5, 1.5}})
	b.AddOp(OpIntersection, Sphere{Radius: 1.0})
}
