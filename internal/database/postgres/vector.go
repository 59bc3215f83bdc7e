package postgres

import (
	"github.com/pgvector/pgvector-go"
)

// nullVector scans a nullable pgvector column into a float32 slice.
type nullVector struct {
	vec   pgvector.Vector
	valid bool
}

func (n *nullVector) Scan(src any) error {
	if src == nil {
		n.valid = false
		return nil
	}
	n.valid = true
	return n.vec.Scan(src)
}

func (n *nullVector) slice() []float32 {
	if !n.valid {
		return nil
	}
	return n.vec.Slice()
}

// vectorValue converts an embedding to a driver value, NULL when empty.
func vectorValue(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}
