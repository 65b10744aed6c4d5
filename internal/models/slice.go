package models

// Slice represents one registered histology section of a mouse
type Slice struct {
	// Mouse is the identifier of the animal the slice belongs to
	Mouse string

	// Name is the base filename shared by the image and its atlas annotation
	Name string

	// Index is the position of this slice in the mouse's sorted file list
	Index int

	// ImagePath is the path of the aligned multi-channel image
	ImagePath string

	// AtlasPath is the path of the exported atlas GeoJSON
	AtlasPath string
}

// SliceResult holds the region table of one processed slice, or the
// reason it could not be processed
type SliceResult struct {
	Slice   Slice
	Records []RegionRecord
	Err     error
}
