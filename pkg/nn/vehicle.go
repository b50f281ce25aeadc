package nn

import "fmt"

// VehicleClass is one of the vehicle types that we count
type VehicleClass int

// SYNC-VEHICLE-CLASSES
const (
	VehicleCar VehicleClass = iota
	VehicleTruck
	VehicleBus
	VehicleMotorcycle
	VehicleBicycle
	NumVehicleClasses
)

var vehicleClassNames = [NumVehicleClasses]string{
	"car",
	"truck",
	"bus",
	"motorcycle",
	"bicycle",
}

// AllVehicleClasses lists the vehicle classes in report order
var AllVehicleClasses = []VehicleClass{VehicleCar, VehicleTruck, VehicleBus, VehicleMotorcycle, VehicleBicycle}

func (c VehicleClass) Valid() bool {
	return c >= 0 && c < NumVehicleClasses
}

func (c VehicleClass) String() string {
	if !c.Valid() {
		return fmt.Sprintf("VehicleClass(%d)", int(c))
	}
	return vehicleClassNames[c]
}

func (c VehicleClass) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("Invalid vehicle class %d", int(c))
	}
	return []byte(vehicleClassNames[c]), nil
}

func (c *VehicleClass) UnmarshalText(b []byte) error {
	v, ok := ParseVehicleClass(string(b))
	if !ok {
		return fmt.Errorf("Unknown vehicle class '%v'", string(b))
	}
	*c = v
	return nil
}

// ParseVehicleClass maps a class name such as "bus" to a VehicleClass
func ParseVehicleClass(name string) (VehicleClass, bool) {
	for i, n := range vehicleClassNames {
		if n == name {
			return VehicleClass(i), true
		}
	}
	return 0, false
}

// VehicleDetection is a detected object whose class is one of the vehicle classes
type VehicleDetection struct {
	Class      VehicleClass `json:"class"`
	Confidence float32      `json:"confidence"`
	Box        Box          `json:"box"`
}

// FilterVehicles converts raw detector output into vehicle detections.
// classes are the class names of the model (nil means COCO). Objects whose class
// is not a vehicle class, or whose box is malformed, or whose confidence is
// below minConfidence, are silently dropped.
func FilterVehicles(objects []ObjectDetection, classes []string, minConfidence float32) []VehicleDetection {
	if classes == nil {
		classes = COCOClasses
	}
	out := make([]VehicleDetection, 0, len(objects))
	for _, obj := range objects {
		if obj.Class < 0 || obj.Class >= len(classes) {
			continue
		}
		vc, ok := ParseVehicleClass(classes[obj.Class])
		if !ok {
			continue
		}
		if obj.Confidence < minConfidence || !obj.Box.IsValid() {
			continue
		}
		out = append(out, VehicleDetection{
			Class:      vc,
			Confidence: obj.Confidence,
			Box:        obj.Box,
		})
	}
	return out
}
