// Package security validates and escapes every value that reaches a shell
// or filesystem boundary. Execution ultimately lands on an unconstrained
// remote shell, so each function either returns a value that is safe to
// interpolate or fails with a VALIDATION error naming the parameter.
//
// None of the functions have side effects.
package security
