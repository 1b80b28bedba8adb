package record

// Record is one captured image with the counter and description it was taken under.
type Record struct {
	Counter     int
	Description string
	ImagePath   string
}
