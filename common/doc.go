// Package common holds process-wide helpers shared by the binaries: build
// information and logger construction.
package common
