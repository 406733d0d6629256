package board

import (
	"encoding/json"
	"fmt"

	"github.com/easeldraw/easel/backend/internal/schema"
)

// Shape payloads serialized into entity descriptors. The server treats
// descriptors as opaque strings; only clients decode them.

type Line struct {
	Stroke      string    `json:"stroke"`
	StrokeWidth float64   `json:"strokeWidth"`
	Points      []float64 `json:"points"`
}

type Rectangle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Fill   *string `json:"fill"`
	Stroke string  `json:"stroke"`
}

type Ellipse struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	RadiusX float64 `json:"radiusX"`
	RadiusY float64 `json:"radiusY"`
	Fill    *string `json:"fill"`
	Stroke  string  `json:"stroke"`
}

type Text struct {
	TranslateX float64 `json:"translateX"`
	TranslateY float64 `json:"translateY"`
	DefWidth   float64 `json:"defWidth"`
	DefHeight  float64 `json:"defHeight"`
	HTMLText   string  `json:"htmlText"`
}

type Segment struct {
	Stroke string  `json:"stroke"`
	Width  float64 `json:"width"`
	StartX float64 `json:"startX"`
	StartY float64 `json:"startY"`
	EndX   float64 `json:"endX"`
	EndY   float64 `json:"endY"`
}

// EncodeShape serializes a shape payload into a descriptor string.
func EncodeShape(shape interface{}) (string, error) {
	data, err := json.Marshal(shape)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeShape parses a descriptor according to its entity type tag.
func DecodeShape(entityType, descriptor string) (interface{}, error) {
	switch entityType {
	case schema.TypeLine:
		var s Line
		if err := json.Unmarshal([]byte(descriptor), &s); err != nil {
			return nil, err
		}
		return &s, nil
	case schema.TypeRectangle:
		var s Rectangle
		if err := json.Unmarshal([]byte(descriptor), &s); err != nil {
			return nil, err
		}
		return &s, nil
	case schema.TypeEllipse:
		var s Ellipse
		if err := json.Unmarshal([]byte(descriptor), &s); err != nil {
			return nil, err
		}
		return &s, nil
	case schema.TypeText:
		var s Text
		if err := json.Unmarshal([]byte(descriptor), &s); err != nil {
			return nil, err
		}
		return &s, nil
	case schema.TypeSegment:
		var s Segment
		if err := json.Unmarshal([]byte(descriptor), &s); err != nil {
			return nil, err
		}
		return &s, nil
	}
	return nil, fmt.Errorf("unknown entity type %q", entityType)
}
