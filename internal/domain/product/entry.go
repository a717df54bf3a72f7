package product

// Entry is a product paired with its vector for one modality index.
type Entry struct {
	Product Product
	Vector  []float32
}
