// Package coerce implements the numeric conversions applied to host numbers.
//
// Host numbers are IEEE-754 doubles. Wrap conversions follow ECMAScript
// ToInt32/ToUint32: truncate toward zero, then reduce modulo 2^32, with NaN
// and infinities mapping to zero. Strict conversions reject any value that
// is not an integer inside the target range.
//
// This package is internal to the transcoder.
package coerce
