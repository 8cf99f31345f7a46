// Package buildinfo reports the version of the running binary.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/uacore-go/internal/infra/buildinfo.Version=v0.3.0" ./cmd/uacore-server
//
// Without them the module version and VCS revision recorded by the Go
// toolchain are used.
package buildinfo
