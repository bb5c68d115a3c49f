// Package lib contain convenience functions used by other packages.
// Package shall not import packages other than golang's standard
// packages.
package lib
