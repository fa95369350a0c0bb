// Package value implements the host-side Sass value model and its
// conversion to and from the wire representation in package protocol.
//
// Value is a closed union: booleans and null are process-wide singletons
// compared by identity, everything else is structural. Numbers and color
// channels compare within a fixed tolerance (Epsilon) per protocol
// convention. Maps enforce key uniqueness when built, not when read.
//
// Conversion is pure: ToWire and FromWire touch no shared mutable state and
// are safe to call from any number of in-flight compilations at once.
package value
