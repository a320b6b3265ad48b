// Package textutil sanitizes caller-supplied names before they touch the
// filesystem or object keys.
package textutil
