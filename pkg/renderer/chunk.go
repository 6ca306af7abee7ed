package renderer

// Chunk is a contiguous range of rays [Lo, Hi) of a batch
type Chunk struct {
	ID int
	Lo int
	Hi int
}

// Len returns the number of rays in the chunk
func (c Chunk) Len() int {
	return c.Hi - c.Lo
}

// NewChunkGrid splits n rays into consecutive chunks of at most size rays
func NewChunkGrid(n, size int) []Chunk {
	if size <= 0 {
		size = n
	}
	var chunks []Chunk
	for lo := 0; lo < n; lo += size {
		chunks = append(chunks, Chunk{
			ID: len(chunks),
			Lo: lo,
			Hi: min(lo+size, n), // Don't exceed the batch
		})
	}
	return chunks
}
