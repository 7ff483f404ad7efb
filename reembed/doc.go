// Package reembed rebuilds the vectors of an existing item index, typically
// after switching embedding models.
//
// Records are read back from a source index in id order, their embedding
// text is rendered again from the stored metadata, and the new vectors are
// written to a target index. Source and target may be the same index when
// the new model keeps the dimension; otherwise the target is a fresh index
// sized for the new model and the caller switches over once the run
// completes.
package reembed
