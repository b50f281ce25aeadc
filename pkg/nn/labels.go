package nn

// VideoLabels contains labels for each video frame.
// This is the on-disk format of a detection recording: the output of running
// an object detector over every frame of a video, which can be replayed
// through the counting pipeline without needing the video or the model.
type VideoLabels struct {
	Classes []string       `json:"classes"`          // Class names of the model that produced the labels. Empty means COCO.
	FPS     float64        `json:"fps,omitempty"`    // Frame rate of the source video
	Width   int            `json:"width,omitempty"`  // Frame width of the source video
	Height  int            `json:"height,omitempty"` // Frame height of the source video
	Frames  []*ImageLabels `json:"frames"`
}

type ImageLabels struct {
	Frame   int               `json:"frame,omitempty"` // For video, this is the frame number
	Objects []ObjectDetection `json:"objects"`
}

// ObjectDetection is an object that a neural network has found in an image
type ObjectDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Box     `json:"box"`
}
