package models

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-mcdetect/models/model"
)

// LabelMode selects how region labels are rendered.
type LabelMode string

const (
	// LabelsIndex renders the decimal class index, e.g. "5".
	LabelsIndex LabelMode = "index"
	// LabelsCOCO renders the COCO class name, e.g. "bus".
	LabelsCOCO LabelMode = "coco"
)

// ParseLabelMode validates a label mode. An empty string selects LabelsIndex.
func ParseLabelMode(s string) (LabelMode, error) {
	switch LabelMode(s) {
	case "", LabelsIndex:
		return LabelsIndex, nil
	case LabelsCOCO:
		return LabelsCOCO, nil
	default:
		return "", errors.Errorf("unknown label mode %q", s)
	}
}

// ClassSet ties a model family to its zero-based list of labels.
type ClassSet struct {
	// Family is the class set identifier.
	Family model.Family
	names  []string
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewClassSet builds a class set and its name index.
func NewClassSet(family model.Family, names []string) *ClassSet {
	s := &ClassSet{
		Family:    family,
		names:     names,
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, n := range names {
		s.nameToIdx[n] = i
	}
	return s
}

// Len is the number of classes.
func (s *ClassSet) Len() int { return len(s.names) }

// Name returns the class name for an index.
func (s *ClassSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.names) {
		return "", errors.Errorf("index %d out of range for %q", idx, s.Family)
	}
	return s.names[idx], nil
}

// Index returns the class index for a name.
func (s *ClassSet) Index(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found in %q", name, s.Family)
	}
	return idx, nil
}

// LabelFor renders the label of a detection.
//
// Arguments:
//   - classID: The zero-based class index.
//   - mode: The label mode.
//
// Returns:
//   - string: The COCO name in LabelsCOCO mode when the index is known,
//     the decimal index otherwise.
//
// Example:
//
// ```go
//
//	LabelFor(5, LabelsIndex) // "5"
//	LabelFor(5, LabelsCOCO)  // "bus"
//
// ```
func LabelFor(classID int, mode LabelMode) string {
	if mode == LabelsCOCO {
		if name, err := YOLOClasses.Name(classID); err == nil {
			return name
		}
	}
	return strconv.Itoa(classID)
}

// YOLOClasses is the 80 COCO classes without background.
// YOLO models index directly into this zero-based list.
var YOLOClasses = NewClassSet(model.ModelFamilyYOLO, []string{
	"person",
	"bicycle",
	"car",
	"motorcycle",
	"airplane",
	"bus",
	"train",
	"truck",
	"boat",
	"traffic light",
	"fire hydrant",
	"stop sign",
	"parking meter",
	"bench",
	"bird",
	"cat",
	"dog",
	"horse",
	"sheep",
	"cow",
	"elephant",
	"bear",
	"zebra",
	"giraffe",
	"backpack",
	"umbrella",
	"handbag",
	"tie",
	"suitcase",
	"frisbee",
	"skis",
	"snowboard",
	"sports ball",
	"kite",
	"baseball bat",
	"baseball glove",
	"skateboard",
	"surfboard",
	"tennis racket",
	"bottle",
	"wine glass",
	"cup",
	"fork",
	"knife",
	"spoon",
	"bowl",
	"banana",
	"apple",
	"sandwich",
	"orange",
	"broccoli",
	"carrot",
	"hot dog",
	"pizza",
	"donut",
	"cake",
	"chair",
	"couch",
	"potted plant",
	"bed",
	"dining table",
	"toilet",
	"tv",
	"laptop",
	"mouse",
	"remote",
	"keyboard",
	"cell phone",
	"microwave",
	"oven",
	"toaster",
	"sink",
	"refrigerator",
	"book",
	"clock",
	"vase",
	"scissors",
	"teddy bear",
	"hair drier",
	"toothbrush",
})
