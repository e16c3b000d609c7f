// Package models contains domain types for the kinematic replay.
package models

// NoParent is the handle value meaning "ground": no inherited translation or rotation.
const NoParent = -1

// BodyKind identifies the shape payload carried by a body.
type BodyKind string

const (
	BodyBall    BodyKind = "ball"
	BodyBlock   BodyKind = "block"
	BodyPolygon BodyKind = "polygon"
)

// ConnectorKind selects how a connector is drawn between its two attachments.
type ConnectorKind string

const (
	ConnectorLine   ConnectorKind = "line"
	ConnectorSpring ConnectorKind = "spring"
)

// GroundKind selects the ground decoration.
type GroundKind string

const (
	GroundLine GroundKind = "line"
	GroundHash GroundKind = "hash"
	GroundPin  GroundKind = "pin"
)

// Point is a 2D coordinate in whatever frame the owner states.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pose is a planar position plus heading, in radians.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Color holds red, green and blue components in [0,1].
type Color struct {
	R float64 `json:"r" yaml:"r"`
	G float64 `json:"g" yaml:"g"`
	B float64 `json:"b" yaml:"b"`
}

// Style holds display attributes shared by bodies, connectors and grounds.
type Style struct {
	Color     Color   `json:"color"`
	LineWidth float64 `json:"lineWidth"`
	Filled    bool    `json:"filled"`
	ShowCS    bool    `json:"showCs"`
	ShowName  bool    `json:"showName"`
	ShowID    bool    `json:"showId"`
}

// Body is a rigid body of the scene.
//
// Pose is relative to the parents. Offset maps the shape frame into the body
// frame and never changes after load. XYParent and ThetaParent are handles
// into the owning scene's body table, or NoParent.
type Body struct {
	ID     int      `json:"id"`
	Name   string   `json:"name,omitempty"`
	Kind   BodyKind `json:"kind"`
	Radius float64  `json:"radius,omitempty"`
	Width  float64  `json:"width,omitempty"`
	Height float64  `json:"height,omitempty"`
	Nodes  []Point  `json:"nodes,omitempty"`

	Pose   Pose `json:"pose"`
	Offset Pose `json:"offset"`

	XYParent    int `json:"xyParent"`
	ThetaParent int `json:"thetaParent"`

	Style Style `json:"style"`
}

// Attachment pins one end of a connector to a point in a body's shape frame.
// Body is a handle; NoParent attaches to the ground frame.
type Attachment struct {
	Body int     `json:"body"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Connector is a visual link between two attachment points.
type Connector struct {
	Kind  ConnectorKind `json:"kind"`
	Ends  [2]Attachment `json:"ends"`
	Style Style         `json:"style"`
}

// Ground is a fixed decoration expressed in the ground frame.
type Ground struct {
	ID    int        `json:"id,omitempty"`
	Kind  GroundKind `json:"kind"`
	P1    Point      `json:"p1"`
	P2    Point      `json:"p2"`
	Style Style      `json:"style"`
}

// Viewport is the user-coordinate window shown by a renderer.
type Viewport struct {
	XMin float64 `json:"xMin"`
	XMax float64 `json:"xMax"`
	YMin float64 `json:"yMin"`
	YMax float64 `json:"yMax"`
}

// DefaultViewport returns the ±10 window used when the scene does not set one.
func DefaultViewport() Viewport {
	return Viewport{XMin: -10, XMax: 10, YMin: -10, YMax: 10}
}
