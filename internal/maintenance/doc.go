// Package maintenance runs the periodic sweeps that keep task rows healthy:
// redacting error text past its retention and failing generations whose
// worker disappeared.
package maintenance
