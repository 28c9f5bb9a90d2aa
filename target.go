package planartrack

import (
	"errors"
	"fmt"
)

// TargetKind is the type of planar target being tracked
type TargetKind int

const (
	// TargetMarker is a binary square marker identified by dictionary and ID
	TargetMarker TargetKind = iota
	// TargetImage is a registered reference image identified by name
	TargetImage
)

// String returns a readable name of the target kind
func (k TargetKind) String() string {
	switch k {
	case TargetMarker:
		return "marker"
	case TargetImage:
		return "image"
	default:
		return fmt.Sprintf("unknown kind %d", int(k))
	}
}

// Target identifies a registered planar target.  Targets are immutable
// after registration
type Target struct {
	// Kind of the target
	Kind TargetKind
	// Dictionary name the marker belongs to, markers only
	Dictionary string
	// ID of the marker inside its dictionary, markers only
	ID int
	// Name of the reference image, image targets only
	Name string
	// Size is the physical longer dimension of the target in meters
	Size float32
}

// NewMarkerTarget returns a marker target for the given dictionary and ID.
// Size is the physical side length of the printed marker in meters
func NewMarkerTarget(dictionary string, id int, size float32) (Target, error) {

	if dictionary == "" {
		return Target{}, errors.New("dictionary name is empty")
	}

	if id < 0 {
		return Target{}, fmt.Errorf("marker ID %d is negative", id)
	}

	if size <= 0 {
		return Target{}, fmt.Errorf("target size %f must be positive", size)
	}

	return Target{
		Kind:       TargetMarker,
		Dictionary: dictionary,
		ID:         id,
		Size:       size,
	}, nil
}

// NewImageTarget returns an image target with the given name.  Size is the
// physical longer dimension of the printed image in meters
func NewImageTarget(name string, size float32) (Target, error) {

	if name == "" {
		return Target{}, errors.New("image target name is empty")
	}

	if size <= 0 {
		return Target{}, fmt.Errorf("target size %f must be positive", size)
	}

	return Target{
		Kind: TargetImage,
		Name: name,
		Size: size,
	}, nil
}

// Key returns the unique identity string of the target used to associate
// detections with tracks
func (t Target) Key() string {
	if t.Kind == TargetMarker {
		return fmt.Sprintf("marker/%s/%d", t.Dictionary, t.ID)
	}

	return fmt.Sprintf("image/%s", t.Name)
}

// String returns the target identity
func (t Target) String() string {
	return t.Key()
}
