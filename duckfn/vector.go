package duckfn

import "fmt"

// ListValue builds a LIST value from its arguments. Each element is
// bound as its own parameter, so the list length is fixed at build
// time but the element values stay out of the SQL text.
func ListValue(vals ...any) Expr {
	return call("list_value", vals...)
}

// FloatArray casts e to a fixed-size FLOAT array. The array functions
// below require both operands to be cast to the same size.
func FloatArray(e Expr, n int) Expr {
	return Expr{SQL: fmt.Sprintf("%s::FLOAT[%d]", e.SQL, n), Args: e.Args}
}

// ArrayCosineSimilarity computes the cosine similarity of two arrays.
func ArrayCosineSimilarity(a, b Expr) Expr {
	return call("array_cosine_similarity", a, b)
}

// ArrayCosineDistance computes the cosine distance of two arrays.
func ArrayCosineDistance(a, b Expr) Expr {
	return call("array_cosine_distance", a, b)
}

// ArrayDistance computes the euclidean distance between two arrays.
func ArrayDistance(a, b Expr) Expr {
	return call("array_distance", a, b)
}

// ArrayInnerProduct computes the inner product of two arrays.
func ArrayInnerProduct(a, b Expr) Expr {
	return call("array_inner_product", a, b)
}
